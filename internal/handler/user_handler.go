package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/user"
)

// UserHandler はプロフィールと管理画面のHTTPハンドラー。
type UserHandler struct {
	base
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(b base, service UserServiceInterface) *UserHandler {
	return &UserHandler{base: b, service: service}
}

// ShowProfile はログイン中のユーザーのプロフィールを表示する。
// GET /profile
func (h *UserHandler) ShowProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Profile(r.Context(), session(r))
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageProfile, "Profile", u)
}

// UpdateProfile は氏名・メールアドレス・パスワードを更新する。
// POST /profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	_, err := h.service.UpdateProfile(r.Context(), session(r), user.ProfileInput{
		FirstName:   r.PostFormValue("first_name"),
		LastName:    r.PostFormValue("last_name"),
		Email:       r.PostFormValue("email"),
		NewPassword: r.PostFormValue("new_password"),
	})
	if err != nil {
		h.fail(w, r, err, "/profile")
		return
	}
	h.redirectWithFlash(w, r, "/profile", middleware.FlashSuccess, "Profile updated successfully")
}

// Dashboard は全ユーザーの一覧を表示する。管理者のみ。
// GET /admin
func (h *UserHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), session(r))
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageAdmin, "Admin Dashboard", users)
}

// ShowEditUser は他ユーザーの編集フォームを表示する。管理者のみ。
// GET /edit_user/{uid}
func (h *UserHandler) ShowEditUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.User(r.Context(), session(r), chi.URLParam(r, "uid"))
	if err != nil {
		h.fail(w, r, err, "/admin")
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageEditUser, "Edit User", u)
}

// EditUser は他ユーザーの氏名・メールアドレス・ロールを更新する。管理者のみ。
// POST /edit_user/{uid}
func (h *UserHandler) EditUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	_, err := h.service.UpdateUser(r.Context(), session(r), uid, user.AdminUserInput{
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		Email:     r.PostFormValue("email"),
		Role:      model.Role(r.PostFormValue("role")),
	})
	if err != nil {
		h.fail(w, r, err, "/edit_user/"+uid)
		return
	}
	h.redirectWithFlash(w, r, "/admin", middleware.FlashSuccess, "User updated successfully")
}
