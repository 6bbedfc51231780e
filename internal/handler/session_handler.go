package handler

import (
	"net/http"

	"github.com/plowed/claimgate/internal/middleware"
	"github.com/plowed/claimgate/internal/session"
)

// SessionHandler はセッションCookieの破棄と診断用の確認を行う。
type SessionHandler struct {
	verifier middleware.SessionVerifier
	cookie   CookieConfig
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(verifier middleware.SessionVerifier, cookie CookieConfig) *SessionHandler {
	return &SessionHandler{verifier: verifier, cookie: cookie}
}

type whoamiResponse struct {
	HasCookie bool             `json:"hasCookie"`
	Session   *session.Payload `json:"session"`
}

// SignOut はセッションCookieを削除してJSONを返す。
// POST /signout
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.clear(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SignOutRedirect はセッションCookieを削除してトップへリダイレクトする。
// GET /signout
func (h *SessionHandler) SignOutRedirect(w http.ResponseWriter, r *http.Request) {
	h.clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// WhoAmI はセッションCookieの有無と検証済みペイロードを返す。
// 検証に失敗した場合sessionはnull。
// GET /whoami
func (h *SessionHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	resp := whoamiResponse{}
	if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
		resp.HasCookie = true
		if p, err := h.verifier.Verify(c.Value); err == nil {
			resp.Session = p
		}
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) clear(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie.cookie(session.CookieName, "", -1))
}
