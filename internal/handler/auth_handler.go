package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/blogman/internal/auth"
	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/middleware"
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は登録・ログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	base
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(b base, service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &AuthHandler{base: b, service: service, config: config, metrics: collector}
}

// ShowLogin はログインフォームを表示する。
// GET /login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageLogin, "Login", nil)
}

// Login は認証してセッションCookieを発行する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	// 1. 認証
	session, err := h.service.Login(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		h.metrics.RecordLogin(metrics.OutcomeFailure)
		h.fail(w, r, err, "/login")
		return
	}
	h.metrics.RecordLogin(metrics.OutcomeSuccess)

	// 2. セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.redirectWithFlash(w, r, "/", middleware.FlashSuccess, "Login successful")
}

// ShowRegister は登録フォームを表示する。
// GET /register
func (h *AuthHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageRegister, "Register", nil)
}

// Register はアカウントとプロフィールを作成する。ログインは別途行う。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	_, err := h.service.Register(r.Context(), auth.RegisterInput{
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		Email:     r.PostFormValue("email"),
		Password:  r.PostFormValue("password"),
	})
	if err != nil {
		h.fail(w, r, err, "/register")
		return
	}

	h.redirectWithFlash(w, r, "/login", middleware.FlashSuccess, "User registered successfully. Please log in.")
}

// Logout はセッションを破棄してCookieを削除する。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// 1. サーバー側のセッションを削除
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to delete session", slog.String("error", err.Error()))
		}
	}

	// 2. Cookieを削除
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.redirectWithFlash(w, r, "/", middleware.FlashInfo, "You have been logged out.")
}
