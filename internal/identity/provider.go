// Package identity はアカウント（メールアドレスとパスワード）とロールクレームを管理するIdPを提供する。
//
// アプリケーション本体はProviderインターフェースのみに依存し、
// パスワードの保存方式はこのパッケージの外に漏らさない。
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

var (
	// ErrEmailExists はメールアドレスが既に登録されていることを表す。
	ErrEmailExists = errors.New("identity: email already exists")
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを表す。
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrNotFound はアカウントが存在しないことを表す。
	ErrNotFound = errors.New("identity: account not found")
)

// Account は認証済みアカウントの公開情報を表す。
type Account struct {
	UserID string
	Email  string
	Role   model.Role
}

// Provider はIdPのインターフェース。
type Provider interface {
	// CreateAccount はアカウントを作成し、払い出したユーザーIDを返す。
	CreateAccount(ctx context.Context, email, password string) (string, error)
	// Authenticate はメールアドレスとパスワードを検証する。
	Authenticate(ctx context.Context, email, password string) (*Account, error)
	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// SetCustomClaim はロールクレームを設定する。
	SetCustomClaim(ctx context.Context, userID string, role model.Role) error
	// UpdatePassword はパスワードを変更する。
	UpdatePassword(ctx context.Context, userID, password string) error
	// UpdateEmail はメールアドレスを変更する。
	UpdateEmail(ctx context.Context, userID, email string) error
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalProvider はidentitiesテーブルにbcryptハッシュを保存するIdP実装。
type LocalProvider struct {
	repo  repository.IdentityRepository
	cost  int
	now   func() time.Time
	newID func() string

	dummyOnce sync.Once
	dummyHash []byte
}

// NewLocalProvider はLocalProviderを生成する。
// costが0以下の場合はbcrypt.DefaultCostを使う。
func NewLocalProvider(repo repository.IdentityRepository, cost int) *LocalProvider {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &LocalProvider{
		repo:  repo,
		cost:  cost,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// CreateAccount はアカウントを作成し、払い出したユーザーIDを返す。
func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)

	// 1. 重複チェック（一意制約でも検出するが、bcryptの計算を省くため先に確認する）
	existing, err := p.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to look up identity: %w", err)
	}
	if existing != nil {
		return "", ErrEmailExists
	}

	// 2. パスワードをハッシュ化
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	// 3. 永続化
	now := p.now()
	identity := &model.Identity{
		UserID:       p.newID(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", ErrEmailExists
		}
		return "", fmt.Errorf("failed to create identity: %w", err)
	}

	slog.Info("identity created", slog.String("user_id", identity.UserID))
	return identity.UserID, nil
}

// Authenticate はメールアドレスとパスワードを検証する。
// 未登録のメールアドレスでもbcryptの比較を行い、応答時間を揃える。
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	identity, err := p.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	if identity == nil {
		_ = bcrypt.CompareHashAndPassword(p.dummy(), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return toAccount(identity), nil
}

// FindByEmail はメールアドレスでアカウントを検索する。
func (p *LocalProvider) FindByEmail(ctx context.Context, email string) (*Account, error) {
	identity, err := p.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}
	if identity == nil {
		return nil, nil
	}
	return toAccount(identity), nil
}

// SetCustomClaim はロールクレームを設定する。
func (p *LocalProvider) SetCustomClaim(ctx context.Context, userID string, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	return mapNotFound(p.repo.UpdateRole(ctx, userID, role))
}

// UpdatePassword はパスワードを変更する。
func (p *LocalProvider) UpdatePassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return mapNotFound(p.repo.UpdatePasswordHash(ctx, userID, string(hash)))
}

// UpdateEmail はメールアドレスを変更する。
func (p *LocalProvider) UpdateEmail(ctx context.Context, userID, email string) error {
	err := p.repo.UpdateEmail(ctx, userID, NormalizeEmail(email))
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrEmailExists
	}
	return mapNotFound(err)
}

// dummy は未登録メールアドレス用の比較対象ハッシュを返す。
func (p *LocalProvider) dummy() []byte {
	p.dummyOnce.Do(func() {
		p.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("blogman-dummy-password"), p.cost)
	})
	return p.dummyHash
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("identity update failed: %w", err)
	}
	return nil
}

func toAccount(identity *model.Identity) *Account {
	return &Account{
		UserID: identity.UserID,
		Email:  identity.Email,
		Role:   identity.Role,
	}
}

// compile-time interface check
var _ Provider = (*LocalProvider)(nil)
