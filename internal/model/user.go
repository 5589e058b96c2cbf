// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーのロール（IdPのカスタムクレーム）を表す。
type Role string

const (
	// RoleUser は一般ユーザー。登録時のデフォルト。
	RoleUser Role = "user"
	// RoleAdmin は管理者。全投稿の編集・削除とユーザー管理が可能。
	RoleAdmin Role = "admin"
)

// Valid はロールが既知の値かどうかを判定する。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User はブログの利用ユーザー（usersコレクションのドキュメント）を表す。
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName は投稿者名として表示する氏名を返す。
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdmin はユーザーが管理者かどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Identity はIdPが保持するアカウント情報を表す。
// パスワードはbcryptハッシュとしてのみ保持する。
type Identity struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// ログイン時点のロールを保持する。
type Session struct {
	ID        string
	UserID    string
	Role      Role
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsAdmin はセッションが管理者ロールを持つかどうかを返す。
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}
