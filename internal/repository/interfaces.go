// Package repository はデータ永続化のインターフェースを定義する。
//
// users と blog_posts はドキュメントストア（PostgreSQL または MongoDB）に、
// identities と sessions は常にPostgreSQLに保存する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/blogman/internal/model"
)

var (
	// ErrNotFound は更新・削除対象のレコードが存在しないことを表す。
	// 検索系メソッドはこのエラーを返さず、nilを返す。
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("duplicate record")
)

// UserRepository はusersコレクションの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// Create はユーザーを作成する。IDはIdPが払い出したものを使う。
	Create(ctx context.Context, user *model.User) error
	// Update は氏名・メールアドレス・ロールを上書きする。
	// 該当ユーザーがない場合はErrNotFoundを返す。
	Update(ctx context.Context, user *model.User) error
	// UpdateRole はロールのみを更新する。
	// 該当ユーザーがない場合はErrNotFoundを返す。
	UpdateRole(ctx context.Context, id string, role model.Role) error
	// List は全ユーザーを作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.User, error)
}

// PostRepository はblog_postsコレクションの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)
	// FindBySlug はスラッグが一致する投稿のうち最初に作成されたものを返す。
	// スラッグは一意ではないため、2件目以降は無視する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Post, error)
	// Create は投稿を作成する。
	Create(ctx context.Context, post *model.Post) error
	// Update はタイトル・本文・画像URL・更新日時を上書きする。
	// スラッグ・投稿者は更新しない。該当投稿がない場合はErrNotFoundを返す。
	Update(ctx context.Context, post *model.Post) error
	// Delete は投稿を物理削除する。該当投稿がない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
	// List は全投稿を作成日時の降順で返す。
	// 作成日時が同じ投稿は作成順を維持する。
	List(ctx context.Context) ([]*model.Post, error)
}

// IdentityRepository はIdPアカウント情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByUserID はユーザーIDでidentityを検索する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Identity, error)
	// FindByEmail はメールアドレスでidentityを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Identity, error)
	// Create はidentityを作成する。メールアドレス重複時はErrDuplicateを返す。
	Create(ctx context.Context, identity *model.Identity) error
	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	// UpdateEmail はメールアドレスを更新する。重複時はErrDuplicateを返す。
	UpdateEmail(ctx context.Context, userID, email string) error
	// UpdateRole はロールクレームを更新する。
	UpdateRole(ctx context.Context, userID string, role model.Role) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
