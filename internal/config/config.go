package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ドキュメントストアの種別。
const (
	DocumentStorePostgres = "postgres"
	DocumentStoreMongo    = "mongo"
)

// アップロード先の種別。
const (
	UploadBackendLocal      = "local"
	UploadBackendCloudinary = "cloudinary"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL   string
	DocumentStore string
	MongoURI      string
	MongoDatabase string

	// Session
	SessionSecret          string
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Upload
	UploadBackend    string
	UploadDir        string
	UploadMaxSize    int64
	CloudinaryURL    string
	CloudinaryFolder string

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitLogin   int

	// Logging
	LogFormat string
	LogLevel  string

	// Server
	ServerPort string
	BaseURL    string
	// TrustProxy がtrueの場合のみX-Forwarded-For/X-Real-IPをクライアントIPとして使う。
	// リバースプロキシの背後で動かすときだけ有効にすること。
	TrustProxy bool

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// LoadDotEnv はpathsの.envファイルを環境変数へ読み込む。
// ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や、選択したバックエンドの設定が欠けている場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.DocumentStore = strings.ToLower(getEnvString("DOCUMENT_STORE", DocumentStorePostgres))
	cfg.MongoURI = os.Getenv("MONGODB_URI")
	cfg.MongoDatabase = getEnvString("MONGODB_DATABASE", "blogman")
	cfg.UploadBackend = strings.ToLower(getEnvString("UPLOAD_BACKEND", UploadBackendLocal))
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads")
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 16<<20)
	cfg.CloudinaryURL = os.Getenv("CLOUDINARY_URL")
	cfg.CloudinaryFolder = getEnvString("CLOUDINARY_FOLDER", "blogman")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.LogFormat = strings.ToLower(getEnvString("LOG_FORMAT", "json"))
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)

	// Backend-specific requirements
	switch cfg.DocumentStore {
	case DocumentStorePostgres:
	case DocumentStoreMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, "MONGODB_URI")
		}
	default:
		return nil, fmt.Errorf("unsupported DOCUMENT_STORE %q (want %s or %s)", cfg.DocumentStore, DocumentStorePostgres, DocumentStoreMongo)
	}

	switch cfg.UploadBackend {
	case UploadBackendLocal:
	case UploadBackendCloudinary:
		if cfg.CloudinaryURL == "" {
			missing = append(missing, "CLOUDINARY_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported UPLOAD_BACKEND %q (want %s or %s)", cfg.UploadBackend, UploadBackendLocal, UploadBackendCloudinary)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
