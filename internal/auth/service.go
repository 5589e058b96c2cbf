// Package auth はアカウント登録、ログイン、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/blogman/internal/identity"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// RegisterInput はアカウント登録フォームの入力値。
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider    identity.Provider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	provider identity.Provider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		provider:    provider,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// Register はIdPにアカウントを作成し、ユーザープロフィールを保存する。
// IdPのアカウント作成とプロフィール保存はトランザクションで結ばない。
// プロフィール保存に失敗した場合、IdP側のアカウントは残る。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	// 1. 入力検証
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = identity.NormalizeEmail(in.Email)
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.Password == "" {
		return nil, model.NewValidationError("All fields are required.")
	}
	if !strings.Contains(in.Email, "@") {
		return nil, model.NewValidationError("Please enter a valid email address.")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength))
	}

	// 2. IdPにアカウントを作成
	userID, err := s.provider.CreateAccount(ctx, in.Email, in.Password)
	if errors.Is(err, identity.ErrEmailExists) {
		return nil, model.NewEmailTakenError()
	}
	if err != nil {
		return nil, model.NewUpstreamError("Registration failed. Please try again later.", err)
	}

	// 3. プロフィールを保存
	now := s.now()
	user := &model.User{
		ID:        userID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Role:      model.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		slog.Error("profile creation failed after account creation",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamError("Registration failed. Please try again later.", err)
	}

	slog.Info("user registered", slog.String("user_id", userID))
	return user, nil
}

// Login は資格情報を検証し、ロールを保持したセッションを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, model.NewValidationError("Email and password are required.")
	}

	// 1. IdPで認証
	account, err := s.provider.Authenticate(ctx, email, password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		slog.Info("login failed", slog.String("reason", "invalid_credentials"))
		return nil, model.NewInvalidCredentialsError()
	}
	if err != nil {
		return nil, model.NewUpstreamError("Login failed. Please try again later.", err)
	}

	// 2. セッションを発行
	session, err := s.createSession(ctx, account)
	if err != nil {
		return nil, model.NewUpstreamError("Login failed. Please try again later.", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", account.UserID),
		slog.String("role", string(account.Role)),
	)
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// FindSession は有効なセッションを取得する。期限切れまたは未登録の場合はnilを返す。
func (s *Service) FindSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.sessionRepo.FindByID(ctx, sessionID)
}

// SessionMaxAge はセッション有効期間（秒）を返す。
func (s *Service) SessionMaxAge() int {
	return s.config.SessionMaxAge
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, account *identity.Account) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	role := account.Role
	if !role.Valid() {
		role = model.RoleUser
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    account.UserID,
		Role:      role,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
