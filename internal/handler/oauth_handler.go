package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/plowed/claimgate/internal/auth"
	"github.com/plowed/claimgate/internal/metrics"
	"github.com/plowed/claimgate/internal/model"
	"github.com/plowed/claimgate/internal/session"
)

// profilePath はX連携・サインイン完了後のリダイレクト先。
const profilePath = "/profile"

// OAuthService はXのOAuthフローを処理するサービスインターフェース。
type OAuthService interface {
	Start(ctx context.Context, mode, claimID string) (string, error)
	Callback(ctx context.Context, params auth.CallbackParams) (*auth.CallbackResult, error)
}

// OAuthHandlerConfig はOAuthハンドラーの設定。
type OAuthHandlerConfig struct {
	BaseURL       string
	Cookie        CookieConfig
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// OAuthHandler はX OAuth2 (PKCE) フローのHTTPハンドラー。
type OAuthHandler struct {
	service OAuthService
	metrics metrics.MetricsCollector
	config  OAuthHandlerConfig
}

// NewOAuthHandler はOAuthHandlerを生成する。
func NewOAuthHandler(service OAuthService, m metrics.MetricsCollector, config OAuthHandlerConfig) *OAuthHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	return &OAuthHandler{
		service: service,
		metrics: m,
		config:  config,
	}
}

// Start はOAuthStateを保存し、Xの認可画面へリダイレクトする。
// GET /oauth/start?mode=link|signin|view&claim=<id>
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	claimID := q.Get("claim")
	if claimID == "" {
		if c, err := r.Cookie(claimCookieName); err == nil {
			claimID = c.Value
		}
	}

	authURL, err := h.service.Start(r.Context(), q.Get("mode"), claimID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
			return
		}
		slog.Error("failed to start oauth flow", slog.String("error", err.Error()))
		h.redirectError(w, r, auth.StageServerError)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback は認可コードを検証し、セッションCookieを設定してプロフィールへリダイレクトする。
// GET /oauth/callback?state=&code=
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.service.Callback(r.Context(), auth.CallbackParams{
		State: q.Get("state"),
		Code:  q.Get("code"),
	})
	if err != nil {
		stage := auth.StageServerError
		var stageErr *auth.StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		h.metrics.RecordOAuthCallback(string(stage))

		level := slog.LevelWarn
		if stage == auth.StageServerError || stage == auth.StageUpdateClaimFailed {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "oauth callback failed",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
		h.redirectError(w, r, stage)
		return
	}

	h.metrics.RecordOAuthCallback("success")
	slog.Info("oauth callback succeeded",
		slog.String("purpose", string(res.Purpose)),
		slog.String("x_user_id", res.XUserID),
		slog.String("claim_id", res.ClaimID),
	)

	http.SetCookie(w, h.config.Cookie.cookie(session.CookieName, res.SessionToken, h.config.SessionMaxAge))
	if res.Purpose == model.PurposeLink {
		// 連携済みのclaimを指すフォールバックCookieは不要になる
		http.SetCookie(w, h.config.Cookie.cookie(claimCookieName, "", -1))
	}

	http.Redirect(w, r, profilePath, http.StatusFound)
}

// redirectError はステージタグ付きのエラー表示ページへリダイレクトする。
func (h *OAuthHandler) redirectError(w http.ResponseWriter, r *http.Request, stage auth.Stage) {
	http.Redirect(w, r, h.config.BaseURL+"/?x=error&stage="+url.QueryEscape(string(stage)), http.StatusFound)
}
