// Package user はユーザープロフィールと管理者によるユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/blogman/internal/authz"
	"github.com/hitoshi/blogman/internal/identity"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// minPasswordLength はパスワード変更時の最小文字数。
const minPasswordLength = 6

const genericFailureMessage = "Something went wrong. Please try again later."

// SessionRevoker はユーザーの全セッション削除インターフェース。
// ロール変更後に古いロールのセッションを失効させるために使う。
type SessionRevoker interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileInput は本人によるプロフィール更新の入力値。
// NewPasswordが空の場合はパスワードを変更しない。
type ProfileInput struct {
	FirstName   string
	LastName    string
	Email       string
	NewPassword string
}

// AdminUserInput は管理者によるユーザー更新の入力値。
type AdminUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Role      model.Role
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	provider identity.Provider
	sessions SessionRevoker
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	provider identity.Provider,
	sessions SessionRevoker,
) *Service {
	return &Service{
		userRepo: userRepo,
		provider: provider,
		sessions: sessions,
		now:      time.Now,
	}
}

// Profile はログイン中のユーザーのプロフィールを返す。
func (s *Service) Profile(ctx context.Context, sess *model.Session) (*model.User, error) {
	userID, err := authz.RequireAuthenticated(sess)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, userID)
}

// UpdateProfile はログイン中のユーザーの氏名・メールアドレス・パスワードを更新する。
// メールアドレスとパスワードの変更はIdPにも反映する。
func (s *Service) UpdateProfile(ctx context.Context, sess *model.Session, in ProfileInput) (*model.User, error) {
	userID, err := authz.RequireAuthenticated(sess)
	if err != nil {
		return nil, err
	}

	// 1. 入力検証
	firstName, lastName, email, err := validateNames(in.FirstName, in.LastName, in.Email)
	if err != nil {
		return nil, err
	}
	if in.NewPassword != "" && len(in.NewPassword) < minPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
	}

	// 2. 現在のプロフィールを取得
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 3. IdP側の更新
	if err := s.syncEmail(ctx, user, email); err != nil {
		return nil, err
	}
	if in.NewPassword != "" {
		if err := s.provider.UpdatePassword(ctx, userID, in.NewPassword); err != nil {
			return nil, model.NewUpstreamError(genericFailureMessage, err)
		}
	}

	// 4. プロフィールを保存
	user.FirstName = firstName
	user.LastName = lastName
	user.Email = email
	user.UpdatedAt = s.now()
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("プロフィールを更新しました", slog.String("user_id", userID))
	return user, nil
}

// ListUsers は全ユーザーを返す。管理者のみ。
func (s *Service) ListUsers(ctx context.Context, sess *model.Session) ([]*model.User, error) {
	if err := authz.RequireAdmin(sess); err != nil {
		return nil, err
	}

	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, model.NewUpstreamError(genericFailureMessage, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err))
	}
	return users, nil
}

// User は指定ユーザーを返す。管理者のみ。
func (s *Service) User(ctx context.Context, sess *model.Session, userID string) (*model.User, error) {
	if err := authz.RequireAdmin(sess); err != nil {
		return nil, err
	}
	return s.find(ctx, userID)
}

// UpdateUser は管理者が指定ユーザーのプロフィールとロールを更新する。
// ロールが変わった場合はIdPのクレームを更新し、対象ユーザーのセッションを失効させる。
func (s *Service) UpdateUser(ctx context.Context, sess *model.Session, userID string, in AdminUserInput) (*model.User, error) {
	if err := authz.RequireAdmin(sess); err != nil {
		return nil, err
	}

	// 1. 入力検証
	firstName, lastName, email, err := validateNames(in.FirstName, in.LastName, in.Email)
	if err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, model.NewValidationError("Role must be either user or admin.")
	}

	// 2. 対象ユーザーを取得
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 3. IdP側の更新
	if err := s.syncEmail(ctx, user, email); err != nil {
		return nil, err
	}
	roleChanged := user.Role != in.Role
	if roleChanged {
		if err := s.provider.SetCustomClaim(ctx, userID, in.Role); err != nil {
			return nil, model.NewUpstreamError(genericFailureMessage, err)
		}
	}

	// 4. プロフィールを保存
	user.FirstName = firstName
	user.LastName = lastName
	user.Email = email
	user.Role = in.Role
	user.UpdatedAt = s.now()
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	// 5. ロール変更時はセッションを失効させる
	if roleChanged {
		if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
			return nil, model.NewUpstreamError(genericFailureMessage, fmt.Errorf("セッションの削除に失敗しました: %w", err))
		}
	}

	slog.Info("管理者がユーザーを更新しました",
		slog.String("admin_user_id", sess.UserID),
		slog.String("user_id", userID),
		slog.String("role", string(in.Role)),
	)
	return user, nil
}

// PromoteToAdmin は指定ユーザーを管理者に昇格する。
// HTTPからは到達できず、運用コマンドからのみ呼び出される。既に管理者でもエラーにしない。
func (s *Service) PromoteToAdmin(ctx context.Context, userID string) error {
	// 1. ユーザー存在確認
	if _, err := s.find(ctx, userID); err != nil {
		return err
	}

	// 2. usersドキュメントのロールを更新
	if err := s.userRepo.UpdateRole(ctx, userID, model.RoleAdmin); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError(userID)
		}
		return fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}

	// 3. IdPのクレームを更新
	if err := s.provider.SetCustomClaim(ctx, userID, model.RoleAdmin); err != nil {
		return fmt.Errorf("ロールクレームの設定に失敗しました: %w", err)
	}

	// 4. 既存セッションを失効させ、次回ログインで管理者ロールを反映する
	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザーを管理者に昇格しました", slog.String("user_id", userID))
	return nil
}

func (s *Service) find(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewUpstreamError(genericFailureMessage, fmt.Errorf("ユーザーの取得に失敗しました: %w", err))
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}
	return user, nil
}

func (s *Service) save(ctx context.Context, user *model.User) error {
	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError(user.ID)
		}
		return model.NewUpstreamError(genericFailureMessage, fmt.Errorf("ユーザーの更新に失敗しました: %w", err))
	}
	return nil
}

// syncEmail はメールアドレスが変わった場合にIdPへ反映する。
func (s *Service) syncEmail(ctx context.Context, user *model.User, email string) error {
	if user.Email == email {
		return nil
	}
	err := s.provider.UpdateEmail(ctx, user.ID, email)
	if errors.Is(err, identity.ErrEmailExists) {
		return model.NewEmailTakenError()
	}
	if err != nil {
		return model.NewUpstreamError(genericFailureMessage, err)
	}
	return nil
}

func validateNames(firstName, lastName, email string) (string, string, string, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	email = identity.NormalizeEmail(email)
	if firstName == "" || lastName == "" || email == "" {
		return "", "", "", model.NewValidationError("First name, last name and email are required.")
	}
	if !strings.Contains(email, "@") {
		return "", "", "", model.NewValidationError("Please enter a valid email address.")
	}
	return firstName, lastName, email, nil
}
