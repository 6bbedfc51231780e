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
	"syscall"
	"time"

	"github.com/plowed/claimgate/internal/auth"
	"github.com/plowed/claimgate/internal/claim"
	"github.com/plowed/claimgate/internal/code"
	"github.com/plowed/claimgate/internal/config"
	"github.com/plowed/claimgate/internal/database"
	"github.com/plowed/claimgate/internal/discord"
	"github.com/plowed/claimgate/internal/handler"
	"github.com/plowed/claimgate/internal/logger"
	"github.com/plowed/claimgate/internal/metrics"
	"github.com/plowed/claimgate/internal/repository"
	"github.com/plowed/claimgate/internal/resume"
	"github.com/plowed/claimgate/internal/security"
	"github.com/plowed/claimgate/internal/session"
	"github.com/plowed/claimgate/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// followupHTTPTimeout はDiscordフォローアップ送信1回あたりのタイムアウト。
const followupHTTPTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// .envを読み込んだ後、JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envファイル（存在する場合）
	config.LoadDotEnv()

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

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

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("description", cmd.Description()),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// Server はワイヤリング済みのHTTPハンドラーと、シャットダウン時に待つ遅延タスクを持つ。
type Server struct {
	Handler http.Handler
	Gateway *discord.Gateway // DISCORD_PUBLIC_KEY未設定の場合nil
}

// NewServer は設定とストアから全依存関係をワイヤリングする。
// statesがnilの場合はPostgresのOAuthStateリポジトリを使う。
func NewServer(cfg *config.Config, db *sql.DB, states repository.OAuthStateRepository, reg *prometheus.Registry) (*Server, error) {
	// 1. リポジトリの初期化
	codeRepo := repository.NewPostgresCodeRepo(db)
	claimRepo := repository.NewPostgresClaimRepo(db)
	poolRepo := repository.NewPostgresDiscordPoolRepo(db)
	if states == nil {
		states = repository.NewPostgresOAuthStateRepo(db)
	}

	// 2. メトリクス・セキュリティ
	collector := metrics.NewCollector(reg)
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewProfileSanitizer(ssrfGuard)
	codec := session.NewCodec(cfg.AppSecret, time.Duration(cfg.SessionMaxAge)*time.Second)

	// 3. ドメインサービスの初期化
	validator := code.NewValidator(codeRepo, cfg.DefaultTier)
	allocator := claim.NewAllocator(validator, claimRepo, slog.Default())
	resolver := resume.NewResolver(validator, claimRepo)

	provider := auth.NewXOAuthProvider(auth.XOAuthConfig{
		ClientID:     cfg.TwitterClientID,
		ClientSecret: cfg.TwitterClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL(),
		Scopes:       cfg.TwitterScopes,
		AuthURL:      cfg.TwitterAuthURL,
		TokenURL:     cfg.TwitterTokenURL,
		UserInfoURL:  cfg.TwitterUserInfoURL,
		HTTPClient:   ssrfGuard.NewSafeClient(cfg.ProviderTimeout),
		Timeout:      cfg.ProviderTimeout,
		Metrics:      collector,
	})
	authService := auth.NewService(provider, states, claimRepo, sanitizer, codec,
		auth.ServiceConfig{StateTTL: cfg.OAuthStateTTL},
	)

	cookie := handler.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		SessionVerifier:   codec,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Cookie:            cookie,

		CodeValidator:  validator,
		ClaimAllocator: allocator,
		ResumeResolver: resolver,
		ClaimCookieAge: cfg.ClaimCookieMaxAge,

		OAuthService:  authService,
		BaseURL:       cfg.BaseURL,
		SessionMaxAge: cfg.SessionMaxAge,

		ProfileStore: claimRepo,
		DefaultTier:  cfg.DefaultTier,

		HealthChecker: db,
	}

	// 4. Discord（公開鍵が設定されている場合のみ）
	srv := &Server{}
	if cfg.DiscordPublicKey != "" {
		verifier, err := discord.NewVerifier(cfg.DiscordPublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to configure discord: %w", err)
		}
		followups := discord.NewFollowupClient(
			ssrfGuard.NewSafeClient(followupHTTPTimeout),
			cfg.DiscordAPIBaseURL, cfg.DiscordFollowupRPS, slog.Default(),
		)
		srv.Gateway = discord.NewGateway(poolRepo, followups, discord.GatewayConfig{
			Mode:              discord.ResponseMode(cfg.DiscordResponseMode),
			AllowedChannelIDs: cfg.DiscordAllowedChannelIDs,
			ApplicationID:     cfg.DiscordApplicationID,
			ClaimURL:          cfg.BaseURL,
		}, collector, slog.Default())

		deps.DiscordVerifier = verifier
		deps.DiscordGateway = srv.Gateway
	} else {
		slog.Warn("DISCORD_PUBLIC_KEY is not set; /webhook/command will reject interactions")
	}

	srv.Handler = handler.NewRouter(deps)
	return srv, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. OAuthStateの保存先（REDIS_URLがあればRedis）
	var states repository.OAuthStateRepository
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := database.OpenRedis(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		states = repository.NewRedisOAuthStateRepo(client, cfg.OAuthStateTTL)
		slog.Info("oauth states stored in redis")
	}

	// 3. メトリクスレジストリ
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := NewServer(cfg, db, states, reg)
	if err != nil {
		return err
	}

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 遅延応答のフォローアップ送信を待つ
	if srv.Gateway != nil {
		if err := srv.Gateway.Wait(ctx); err != nil {
			slog.Warn("discord followups did not finish before shutdown", slog.String("error", err.Error()))
		}
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れOAuthStateのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), cfg.OAuthStateTTL)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("state_ttl", cfg.OAuthStateTTL),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

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

	slog.Info("database migrations completed successfully")
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
