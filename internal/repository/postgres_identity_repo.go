package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

func (r *PostgresIdentityRepo) findOne(ctx context.Context, where string, arg string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, email, password_hash, role, created_at, updated_at
		 FROM identities WHERE `+where+` = $1`,
		arg,
	).Scan(&identity.UserID, &identity.Email, &identity.PasswordHash, &identity.Role, &identity.CreatedAt, &identity.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return identity, nil
}

// FindByUserID はユーザーIDでidentityを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByUserID(ctx context.Context, userID string) (*model.Identity, error) {
	if !isUUID(userID) {
		return nil, nil
	}
	return r.findOne(ctx, "user_id", userID)
}

// FindByEmail はメールアドレスでidentityを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	return r.findOne(ctx, "email", email)
}

// Create はidentityを作成する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (user_id, email, password_hash, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		identity.UserID, identity.Email, identity.PasswordHash, identity.Role, identity.CreatedAt, identity.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// UpdatePasswordHash はパスワードハッシュを更新する。
func (r *PostgresIdentityRepo) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	if !isUUID(userID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET password_hash = $2, updated_at = now() WHERE user_id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	return checkAffected(result)
}

// UpdateEmail はメールアドレスを更新する。
func (r *PostgresIdentityRepo) UpdateEmail(ctx context.Context, userID, email string) error {
	if !isUUID(userID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET email = $2, updated_at = now() WHERE user_id = $1`,
		userID, email,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update identity email: %w", err)
	}
	return checkAffected(result)
}

// UpdateRole はロールクレームを更新する。
func (r *PostgresIdentityRepo) UpdateRole(ctx context.Context, userID string, role model.Role) error {
	if !isUUID(userID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET role = $2, updated_at = now() WHERE user_id = $1`,
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to update identity role: %w", err)
	}
	return checkAffected(result)
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
