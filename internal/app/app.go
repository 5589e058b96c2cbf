package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/blogman/internal/auth"
	"github.com/hitoshi/blogman/internal/config"
	"github.com/hitoshi/blogman/internal/database"
	"github.com/hitoshi/blogman/internal/handler"
	"github.com/hitoshi/blogman/internal/identity"
	"github.com/hitoshi/blogman/internal/logger"
	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/post"
	"github.com/hitoshi/blogman/internal/repository"
	"github.com/hitoshi/blogman/internal/security"
	"github.com/hitoshi/blogman/internal/upload"
	"github.com/hitoshi/blogman/internal/user"
	"github.com/hitoshi/blogman/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（設定済みの環境変数が優先）
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.Options{
		Format: os.Getenv("LOG_FORMAT"),
		Level:  os.Getenv("LOG_LEVEL"),
	})

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	var promoteUserID string
	if cmd == CommandPromoteAdmin {
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			return errors.New("usage: blogman promote-admin <user-id>")
		}
		promoteUserID = strings.TrimSpace(args[1])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("document_store", cfg.DocumentStore),
		slog.String("upload_backend", cfg.UploadBackend),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandPromoteAdmin:
		return runPromoteAdmin(cfg, promoteUserID)
	default:
		return runServe(cfg)
	}
}

// openDB はPostgreSQLへ接続し、疎通を確認する。
// identities・sessionsは常にPostgreSQLに置く。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// documentStore はusersとblog_postsを保持するストア。
type documentStore struct {
	users repository.UserRepository
	posts repository.PostRepository
	ping  func(ctx context.Context) error
	close func()
}

// openDocumentStore はDOCUMENT_STOREに応じてユーザーと投稿のリポジトリを構築する。
func openDocumentStore(ctx context.Context, cfg *config.Config, db *sql.DB) (*documentStore, error) {
	if cfg.DocumentStore != config.DocumentStoreMongo {
		return &documentStore{
			users: repository.NewPostgresUserRepo(db),
			posts: repository.NewPostgresPostRepo(db),
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}

	client, mdb, err := database.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	if err := repository.EnsureMongoIndexes(ctx, mdb); err != nil {
		_ = database.CloseMongo(client)
		return nil, err
	}
	slog.Info("mongodb connection established", slog.String("database", cfg.MongoDatabase))

	return &documentStore{
		users: repository.NewMongoUserRepo(mdb),
		posts: repository.NewMongoPostRepo(mdb),
		ping:  func(ctx context.Context) error { return client.Ping(ctx, nil) },
		close: func() {
			if err := database.CloseMongo(client); err != nil {
				slog.Error("failed to close mongodb", slog.String("error", err.Error()))
			}
		},
	}, nil
}

// openUploadSink はUPLOAD_BACKENDに応じた保存先を返す。
// ローカル保存の場合は/uploads/*の配信ハンドラーも返す。
func openUploadSink(cfg *config.Config) (upload.Sink, http.Handler, error) {
	if cfg.UploadBackend == config.UploadBackendCloudinary {
		sink, err := upload.NewCloudinarySink(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			return nil, nil, err
		}
		return sink, nil, nil
	}

	sink, err := upload.NewLocalSink(cfg.UploadDir)
	if err != nil {
		return nil, nil, err
	}
	return sink, sink.Handler(), nil
}

// healthCheck はPostgreSQLとドキュメントストアの疎通をまとめて確認する。
type healthCheck struct {
	db    *sql.DB
	store *documentStore
}

func (h healthCheck) PingContext(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}
	return h.store.ping(ctx)
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := openDocumentStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer store.close()

	// 2. リポジトリとメトリクスの初期化
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. アップロード先の初期化
	sink, uploadFiles, err := openUploadSink(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize upload sink: %w", err)
	}

	// 4. ドメインサービスの初期化
	provider := identity.NewLocalProvider(identRepo, 0)
	authService := auth.NewService(provider, store.users, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	sanitizer := security.NewContentSanitizer()
	postService := post.NewService(store.posts, store.users, sanitizer, collector)
	userService := user.NewService(store.users, provider, sessionRepo)
	uploadService := upload.NewService(sink, cfg.UploadMaxSize, collector)

	// 5. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		SessionFinder: sessionRepo,
		Flashes:       middleware.NewFlashStore([]byte(cfg.SessionSecret), cfg.CookieSecure, cfg.CookieDomain),
		RateLimiter:   middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin)),
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		MaxBodyBytes: cfg.UploadMaxSize + 1<<20,
		TrustProxy:   cfg.TrustProxy,

		HealthChecker: healthCheck{db: db, store: store},
		Metrics:       collector,
		Gatherer:      registry,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		PostService:      postService,
		UploadService:    uploadService,
		UploadFiles:      uploadFiles,
		ContentSanitizer: sanitizer,

		UserService: userService,
	}

	router, err := handler.NewRouter(deps)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除ジョブを定期実行し、SIGINTまたはSIGTERMで終了する。
func runWorker(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewSessionCleanupJob(db, slog.Default(), cfg.SessionCleanupInterval)
	job.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if cfg.DocumentStore == config.DocumentStoreMongo {
		ctx := context.Background()
		client, mdb, err := database.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer database.CloseMongo(client)
		if err := repository.EnsureMongoIndexes(ctx, mdb); err != nil {
			return fmt.Errorf("failed to ensure mongodb indexes: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runPromoteAdmin は指定ユーザーのロールクレームとプロフィールをadminに更新する。
func runPromoteAdmin(cfg *config.Config, userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := openDocumentStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer store.close()

	provider := identity.NewLocalProvider(repository.NewPostgresIdentityRepo(db), 0)
	userService := user.NewService(store.users, provider, repository.NewPostgresSessionRepo(db))
	return promoteAdmin(ctx, userService, userID)
}

// adminPromoter は管理者昇格のインターフェース。
type adminPromoter interface {
	PromoteToAdmin(ctx context.Context, userID string) error
}

func promoteAdmin(ctx context.Context, promoter adminPromoter, userID string) error {
	if err := promoter.PromoteToAdmin(ctx, userID); err != nil {
		return fmt.Errorf("failed to promote user %s: %w", userID, err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
