package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/plowed/claimgate/internal/model"
)

func csrfCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethods_PassThroughAndIssueCookie(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := NewCSRFMiddleware(CSRFConfig{CookieSecure: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(method, "/profile/me", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !called || w.Code != http.StatusOK {
				t.Fatalf("called = %v, status = %d", called, w.Code)
			}
			c := csrfCookie(w.Result())
			if c == nil {
				t.Fatal("expected CSRF cookie")
			}
			if c.HttpOnly {
				t.Error("CSRF cookie must be readable by the frontend")
			}
			if !c.Secure {
				t.Error("CSRF cookie should be Secure when configured")
			}
			if len(c.Value) != 64 {
				t.Errorf("token length = %d, want 64 hex chars", len(c.Value))
			}
		})
	}
}

func TestCSRFMiddleware_ExistingCookie_NotReplaced(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/profile/me", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if csrfCookie(w.Result()) != nil {
		t.Error("CSRF cookie should not be re-set when already present")
	}
}

func TestCSRFMiddleware_MutatingMethods(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		header     string
		wantStatus int
	}{
		{"no cookie", "", "tok", http.StatusForbidden},
		{"no header", "tok", "", http.StatusForbidden},
		{"mismatch", "tok", "other", http.StatusForbidden},
		{"match", "tok", "tok", http.StatusOK},
	}

	for _, method := range []string{http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete} {
		for _, tt := range tests {
			t.Run(method+"/"+tt.name, func(t *testing.T) {
				called := false
				handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					called = true
					w.WriteHeader(http.StatusOK)
				}))

				req := httptest.NewRequest(method, "/profile/me/wallet", nil)
				if tt.cookie != "" {
					req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
				}
				if tt.header != "" {
					req.Header.Set(csrfHeaderName, tt.header)
				}
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				if w.Code != tt.wantStatus {
					t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
				}
				if called != (tt.wantStatus == http.StatusOK) {
					t.Errorf("handler called = %v", called)
				}
				if tt.wantStatus == http.StatusForbidden {
					var body ErrorResponseBody
					json.NewDecoder(w.Body).Decode(&body)
					if body.Code != model.ErrCodeCSRFFailed {
						t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCSRFFailed)
					}
				}
			})
		}
	}
}

func TestCSRFTokenHandler_IssuesAndReusesToken(t *testing.T) {
	h := NewCSRFTokenHandler(CSRFConfig{CookieDomain: "example.com"})

	req := httptest.NewRequest(http.MethodGet, "/csrf-token", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	c := csrfCookie(resp)
	if c == nil || c.Value == "" || c.Value != body.Token {
		t.Fatalf("cookie %+v does not match token %q", c, body.Token)
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}

	req = httptest.NewRequest(http.MethodGet, "/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-csrf-token"})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	json.NewDecoder(w.Body).Decode(&body)
	if body.Token != "existing-csrf-token" {
		t.Errorf("token = %q, want existing token", body.Token)
	}
}

func TestCheckCSRF_Reasons(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"missing cookie", "", "tok", "missing_cookie"},
		{"missing header", "tok", "", "missing_header"},
		{"mismatch", "tok", "tok2", "mismatch"},
		{"ok", "tok", "tok", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/signout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			if got := checkCSRF(req); got != tt.want {
				t.Errorf("checkCSRF = %q, want %q", got, tt.want)
			}
		})
	}
}
