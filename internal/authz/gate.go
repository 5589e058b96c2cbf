// Package authz は投稿・管理画面の操作に対する認可判定を提供する。
//
// 判定はセッションに保存されたユーザーIDとロールのみで行い、
// 失敗時は*model.APIErrorを返す。リダイレクトやフラッシュへの変換はハンドラー層が担う。
package authz

import "github.com/hitoshi/blogman/internal/model"

// RequireAuthenticated はログイン済みであることを要求し、ユーザーIDを返す。
func RequireAuthenticated(sess *model.Session) (string, error) {
	if sess == nil || sess.UserID == "" {
		return "", model.NewUnauthenticatedError()
	}
	return sess.UserID, nil
}

// RequireOwnerOrAdmin はリソース所有者または管理者であることを要求する。
// 未ログインの場合はForbiddenではなくUnauthenticatedを返す。
func RequireOwnerOrAdmin(sess *model.Session, ownerID string) error {
	userID, err := RequireAuthenticated(sess)
	if err != nil {
		return err
	}
	if userID == ownerID || sess.IsAdmin() {
		return nil
	}
	return model.NewForbiddenError()
}

// RequireAdmin は管理者ロールを要求する。
// 未ログインでも管理画面の存在を示さないようにForbiddenを返す。
func RequireAdmin(sess *model.Session) error {
	if sess == nil || sess.UserID == "" || !sess.IsAdmin() {
		return model.NewAdminRequiredError()
	}
	return nil
}
