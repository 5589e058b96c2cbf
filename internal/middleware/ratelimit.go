package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/hitoshi/blogman/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate  rate.Limit    // 全リクエストのレート（req/sec）
	GeneralBurst int           // 全リクエストのバーストサイズ
	LoginRate    rate.Limit    // ログイン・登録POSTのレート（req/sec）
	LoginBurst   int           // ログイン・登録POSTのバーストサイズ
	IdleTTL      time.Duration // 最終アクセスからリミッターを破棄するまでの時間
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 全般 120 req/min/IP、ログイン 10 req/min/IP。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 10)
}

// NewRateLimiterConfig はreq/min単位の指定から設定を組み立てる。
func NewRateLimiterConfig(generalPerMin, loginPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:  rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst: generalPerMin,
		LoginRate:    rate.Limit(float64(loginPerMin) / 60.0),
		LoginBurst:   loginPerMin,
		IdleTTL:      10 * time.Minute,
	}
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
// リミッターは最終アクセスからIdleTTL経過するとキャッシュから消える。
type RateLimiter struct {
	config  RateLimiterConfig
	general *cache.Cache
	login   *cache.Cache
}

// NewRateLimiter は新しいRateLimiterを生成する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		config:  config,
		general: cache.New(config.IdleTTL, config.IdleTTL/2),
		login:   cache.New(config.IdleTTL, config.IdleTTL/2),
	}
}

// GeneralMiddleware は全リクエストに対するレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, rl.config.GeneralRate, rl.config.GeneralBurst, "general", false)
}

// LoginMiddleware はログイン・登録フォームの送信に対するレート制限ミドルウェアを返す。
// GETによるフォーム表示は制限しない。
func (rl *RateLimiter) LoginMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.login, rl.config.LoginRate, rl.config.LoginBurst, "login", true)
}

func (rl *RateLimiter) middleware(c *cache.Cache, r rate.Limit, burst int, kind string, postOnly bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if postOnly && req.Method != http.MethodPost {
				next.ServeHTTP(w, req)
				return
			}

			ip := clientIP(req)
			if !limiterFor(c, ip, r, burst).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", kind),
				)
				writeRateLimitResponse(w, r)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// GeneralLimiterCount は現在保持しているリミッター数を返す。テスト用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.ItemCount()
}

// LoginLimiterCount は現在保持しているログイン用リミッター数を返す。テスト用。
func (rl *RateLimiter) LoginLimiterCount() int {
	return rl.login.ItemCount()
}

// limiterFor はキーに対応するリミッターを取得または作成し、有効期限を延長する。
func limiterFor(c *cache.Cache, key string, r rate.Limit, burst int) *rate.Limiter {
	if v, ok := c.Get(key); ok {
		c.SetDefault(key, v)
		return v.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(r, burst)
	if err := c.Add(key, limiter, cache.DefaultExpiration); err != nil {
		// 同時に作成された場合は先勝ち
		if v, ok := c.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// clientIP はRemoteAddrからホスト部分を取り出す。
// chiのRealIPミドルウェアを前段に置くとプロキシ越しのIPになる。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = max(1, int(math.Ceil(1.0/float64(r))))
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "Too many requests. Please try again later.",
		Category: model.CategoryValidation,
		Action:   "Please wait and retry after the specified time.",
	})
}
