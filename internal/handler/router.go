package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/security"
)

// defaultMaxBodyBytes は画像の上限（16MiB）にフォーム項目分の余裕を足したもの。
const defaultMaxBodyBytes = 17 << 20

// HealthChecker はヘルスチェックで疎通確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger        *slog.Logger
	SessionFinder middleware.SessionFinder
	Flashes       *middleware.FlashStore
	RateLimiter   *middleware.RateLimiter
	CSRF          middleware.CSRFConfig
	MaxBodyBytes  int64
	// TrustProxy がtrueの場合のみchiのRealIPでRemoteAddrを転送ヘッダーから書き換える。
	// falseではクライアントが送るX-Forwarded-Forを無視し、接続元アドレスでレート制限する。
	TrustProxy bool

	// 監視
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 投稿
	PostService      PostServiceInterface
	UploadService    UploadServiceInterface
	ContentSanitizer security.ContentSanitizerService // 未指定ならNewContentSanitizer
	UploadFiles      http.Handler // ローカル保存時のみ。/uploads/* で配信する

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全ページのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP(TrustProxy時のみ) → Recovery → SecurityHeaders → Metrics →
//	BodyLimit → Session → Logging → RateLimit(General) → CSRF
//
// /health と /metrics はレート制限とCSRFの外に置く。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.RateLimiter == nil {
		deps.RateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.ContentSanitizer == nil {
		deps.ContentSanitizer = security.NewContentSanitizer()
	}

	renderer, err := NewRenderer(deps.Flashes, deps.ContentSanitizer)
	if err != nil {
		return nil, err
	}
	b := base{renderer: renderer, flashes: deps.Flashes}

	authHandler := NewAuthHandler(b, deps.AuthService, deps.AuthConfig, deps.Metrics)
	postHandler := NewPostHandler(b, deps.PostService, deps.UploadService)
	userHandler := NewUserHandler(b, deps.UserService)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))

	// --- 監視用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- ページ ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBodyLimitMiddleware(deps.MaxBodyBytes))
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		// 投稿
		r.Get("/", postHandler.Home)
		r.Get("/post/{idOrSlug}", postHandler.View)
		r.Get("/create", postHandler.ShowCreate)
		r.Post("/create", postHandler.Create)
		r.Get("/edit/{id}", postHandler.ShowEdit)
		r.Post("/edit/{id}", postHandler.Edit)
		r.Post("/delete/{id}", postHandler.Delete)

		// 認証（フォーム送信のみ専用のレート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.LoginMiddleware())
			r.Get("/login", authHandler.ShowLogin)
			r.Post("/login", authHandler.Login)
			r.Get("/register", authHandler.ShowRegister)
			r.Post("/register", authHandler.Register)
		})
		r.Get("/logout", authHandler.Logout)

		// プロフィール
		r.Get("/profile", userHandler.ShowProfile)
		r.Post("/profile", userHandler.UpdateProfile)

		// 管理画面
		r.Get("/admin", userHandler.Dashboard)
		r.Get("/edit_user/{uid}", userHandler.ShowEditUser)
		r.Post("/edit_user/{uid}", userHandler.EditUser)

		// アップロード画像
		if deps.UploadFiles != nil {
			r.Handle("/uploads/*", deps.UploadFiles)
		}

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			renderer.Render(w, r, http.StatusNotFound, pageNotFound, "Page Not Found", nil)
		})
	})

	return r, nil
}

// healthHandler はDBへの疎通を確認する。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("unavailable\n"))
				return
			}
		}
		w.Write([]byte("ok\n"))
	}
}
