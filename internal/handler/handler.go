// Package handler はHTMLページを返すHTTPハンドラーを提供する。
//
// サービス層のエラーは分類ごとにフラッシュメッセージとリダイレクトへ変換する。
// エラーページは404を除いて表示しない。
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/blogman/internal/auth"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/post"
	"github.com/hitoshi/blogman/internal/user"
)

const genericFailureMessage = "Something went wrong. Please try again later."

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, sess *model.Session, in post.CreateInput) (*model.Post, error)
	View(ctx context.Context, idOrSlug string) (*model.Post, error)
	Editable(ctx context.Context, sess *model.Session, id string) (*model.Post, error)
	Edit(ctx context.Context, sess *model.Session, id string, in post.EditInput) (*model.Post, error)
	Delete(ctx context.Context, sess *model.Session, id string) error
	List(ctx context.Context) ([]*model.Post, error)
}

// UserServiceInterface はプロフィール・管理画面が必要とするサービスインターフェース。
type UserServiceInterface interface {
	Profile(ctx context.Context, sess *model.Session) (*model.User, error)
	UpdateProfile(ctx context.Context, sess *model.Session, in user.ProfileInput) (*model.User, error)
	ListUsers(ctx context.Context, sess *model.Session) ([]*model.User, error)
	User(ctx context.Context, sess *model.Session, userID string) (*model.User, error)
	UpdateUser(ctx context.Context, sess *model.Session, userID string, in user.AdminUserInput) (*model.User, error)
}

// UploadServiceInterface は画像アップロードの受付インターフェース。
type UploadServiceInterface interface {
	Accept(ctx context.Context, file io.ReadSeeker, header *multipart.FileHeader) (string, error)
}

// base は各ハンドラーが共有する描画とフラッシュの処理を持つ。
type base struct {
	renderer *Renderer
	flashes  *middleware.FlashStore
}

// redirectWithFlash はメッセージを積んでリダイレクトする。
func (b *base) redirectWithFlash(w http.ResponseWriter, r *http.Request, url, category, message string) {
	b.flashes.Add(w, r, category, message)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// fail はサービス層のエラーを分類に応じたリダイレクトへ変換する。
// formURLは入力エラー時に戻すフォームのURL。
func (b *base) fail(w http.ResponseWriter, r *http.Request, err error, formURL string) {
	message := genericFailureMessage
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		message = apiErr.Message
	}

	switch model.CategoryOf(err) {
	case model.CategoryValidation:
		b.redirectWithFlash(w, r, formURL, middleware.FlashDanger, message)
	case model.CategoryUnauthenticated:
		b.redirectWithFlash(w, r, "/login", middleware.FlashWarning, message)
	case model.CategoryForbidden, model.CategoryNotFound:
		b.redirectWithFlash(w, r, "/", middleware.FlashDanger, message)
	default:
		// 原因はログにのみ残す
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
		if apiErr == nil {
			message = genericFailureMessage
		}
		b.redirectWithFlash(w, r, formURL, middleware.FlashDanger, message)
	}
}

// session はリクエストのセッションを返す。未ログインならnil。
func session(r *http.Request) *model.Session {
	return middleware.SessionFromContext(r.Context())
}
