package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/plowed/claimgate/internal/metrics"
	"github.com/plowed/claimgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	SessionVerifier   middleware.SessionVerifier
	CORSAllowedOrigin string
	Cookie            CookieConfig

	// 招待コード・claim
	CodeValidator  CodeValidator
	ClaimAllocator ClaimAllocator
	ResumeResolver ResumeResolver
	ClaimCookieAge int

	// X OAuth
	OAuthService  OAuthService
	BaseURL       string
	SessionMaxAge int

	// プロフィール
	ProfileStore ProfileStore
	DefaultTier  string

	// Discord（未設定の場合はPOSTに500を返す）
	DiscordVerifier SignatureVerifier
	DiscordGateway  InteractionGateway

	HealthChecker HealthChecker
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → Metrics → CORS(任意)
//
// /profile/* はSessionミドルウェアを、状態変更メソッドはさらにCSRFミドルウェアを通す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookie.Secure))
	r.Use(middleware.NewMetricsMiddleware(m))
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.Cookie.Secure,
		CookieDomain: deps.Cookie.Domain,
	}

	claimHandler := NewClaimHandler(deps.CodeValidator, deps.ClaimAllocator, deps.ResumeResolver, m, ClaimHandlerConfig{
		Cookie:         deps.Cookie,
		ClaimCookieAge: deps.ClaimCookieAge,
	})
	oauthHandler := NewOAuthHandler(deps.OAuthService, m, OAuthHandlerConfig{
		BaseURL:       deps.BaseURL,
		Cookie:        deps.Cookie,
		SessionMaxAge: deps.SessionMaxAge,
	})
	profileHandler := NewProfileHandler(deps.ProfileStore, deps.DefaultTier)
	sessionHandler := NewSessionHandler(deps.SessionVerifier, deps.Cookie)
	discordHandler := NewDiscordHandler(deps.DiscordVerifier, deps.DiscordGateway)

	// --- 認証不要のルート ---

	r.Post("/code/check", claimHandler.CheckCode)
	r.Post("/claim", claimHandler.Claim)
	r.Post("/resume", claimHandler.Resume)

	r.Route("/oauth", func(r chi.Router) {
		r.Get("/start", oauthHandler.Start)
		r.Get("/callback", oauthHandler.Callback)
	})

	// GETはリンクからのサインアウト用。Cookieを消すだけで他の状態は変えない。
	r.Get("/signout", sessionHandler.SignOutRedirect)
	r.With(middleware.NewCSRFMiddleware(csrfConfig)).Post("/signout", sessionHandler.SignOut)
	r.Get("/whoami", sessionHandler.WhoAmI)
	r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

	r.Route("/webhook/command", func(r chi.Router) {
		r.Get("/", discordHandler.Probe)
		r.Head("/", discordHandler.Probe)
		r.Post("/", discordHandler.Interactions)
	})

	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- セッションが必要なルート ---
	// ミドルウェアスタック: Session → CSRF
	r.Route("/profile/me", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier))
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		r.Get("/", profileHandler.Me)
		r.Patch("/wallet", profileHandler.UpdateWallet)
	})

	return r
}
