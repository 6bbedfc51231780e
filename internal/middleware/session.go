// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/plowed/claimgate/internal/model"
	"github.com/plowed/claimgate/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストに検証済みセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionVerifier はセッショントークンの検証に必要なインターフェース。
type SessionVerifier interface {
	Verify(token string) (*session.Payload, error)
}

// NewSessionMiddleware はCookieのセッショントークンを検証するミドルウェアを返す。
// 検証済みペイロードをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(session.CookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			payload, err := verifier.Verify(cookie.Value)
			if err != nil {
				slog.Warn("session verification failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			setLogUserID(r.Context(), payload.XUserID)
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), payload)))
		})
	}
}

// SessionFromContext はリクエストコンテキストから検証済みセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*session.Payload, bool) {
	p, ok := ctx.Value(sessionContextKey).(*session.Payload)
	if !ok || p == nil || p.XUserID == "" {
		return nil, false
	}
	return p, true
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, p *session.Payload) context.Context {
	return context.WithValue(ctx, sessionContextKey, p)
}
