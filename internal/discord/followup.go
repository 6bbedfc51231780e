package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

const (
	// DefaultAPIBaseURL はDiscord APIのベースURL。
	DefaultAPIBaseURL = "https://discord.com/api/v10"
	// defaultFollowupRPS はフォローアップ送信の既定レート（req/sec）。
	defaultFollowupRPS = 5
)

// FollowupClient は遅延応答のフォローアップメッセージを送信する。
// 送信はトークンバケットで平滑化する。
type FollowupClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	limiter    *rate.Limiter
}

// NewFollowupClient はFollowupClientを生成する。rpsが0以下の場合は既定値を使う。
func NewFollowupClient(httpClient *http.Client, baseURL string, rps float64, logger *slog.Logger) *FollowupClient {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if rps <= 0 {
		rps = defaultFollowupRPS
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &FollowupClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// SendFollowup は POST {base}/webhooks/{applicationID}/{token} でメッセージを送る。
func (c *FollowupClient) SendFollowup(ctx context.Context, applicationID, token string, msg MessageData) error {
	if applicationID == "" || token == "" {
		return fmt.Errorf("application id and interaction token are required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("followup rate limit wait: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode followup: %w", err)
	}

	endpoint := c.baseURL + "/webhooks/" + url.PathEscape(applicationID) + "/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create followup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("followup request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("discord followup returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("application_id", applicationID),
		)
		return fmt.Errorf("followup failed with status %d", resp.StatusCode)
	}

	return nil
}
