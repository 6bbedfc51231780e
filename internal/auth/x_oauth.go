package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/plowed/claimgate/internal/metrics"
	"github.com/plowed/claimgate/internal/model"
)

const (
	defaultXAuthURL     = "https://twitter.com/i/oauth2/authorize"
	defaultXTokenURL    = "https://api.twitter.com/2/oauth2/token"
	defaultXUserInfoURL = "https://api.twitter.com/2/users/me"
	defaultXScopes      = "tweet.read users.read offline.access"

	defaultProviderTimeout = 10 * time.Second

	// maxProviderResponseSize はプロバイダーのレスポンスとして読み込む最大バイト数。
	maxProviderResponseSize = 1 << 20
)

// XOAuthConfig はX OAuth 2.0プロバイダーの設定。
type XOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// HTTPClient が nil の場合はTimeoutを設定したクライアントを使う。
	HTTPClient *http.Client
	Timeout    time.Duration

	Metrics metrics.MetricsCollector
}

// XOAuthProvider はX（Twitter）のOAuth 2.0 + PKCEによる認可を提供する。
type XOAuthProvider struct {
	config  XOAuthConfig
	client  *http.Client
	metrics metrics.MetricsCollector
}

// NewXOAuthProvider はXOAuthProviderを生成する。
func NewXOAuthProvider(config XOAuthConfig) *XOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultXAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultXTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultXUserInfoURL
	}
	if config.Scopes == "" {
		config.Scopes = defaultXScopes
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultProviderTimeout
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	m := config.Metrics
	if m == nil {
		m = metrics.Nop{}
	}

	return &XOAuthProvider{config: config, client: client, metrics: m}
}

// AuthorizationURL はXの認可画面へのURLを生成する。
func (p *XOAuthProvider) AuthorizationURL(state, codeChallenge string) string {
	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {p.config.ClientID},
		"redirect_uri":          {p.config.RedirectURL},
		"scope":                 {p.config.Scopes},
		"state":                 {state},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {ChallengeMethod},
	}
	sep := "?"
	if strings.Contains(p.config.AuthURL, "?") {
		sep = "&"
	}
	return p.config.AuthURL + sep + params.Encode()
}

// xTokenResponse はXのトークンエンドポイントのレスポンス。
type xTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// xUserResponse はXの /2/users/me のレスポンス。
type xUserResponse struct {
	Data struct {
		ID              string `json:"id"`
		Username        string `json:"username"`
		Name            string `json:"name"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

// ExchangeToken は認可コードとcode_verifierをアクセストークンに交換する。
// クライアントシークレットが設定されている場合はBasic認証で送る。
func (p *XOAuthProvider) ExchangeToken(ctx context.Context, code, verifier string) (string, error) {
	start := time.Now()
	defer func() { p.metrics.RecordProviderLatency("token", time.Since(start)) }()

	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {p.config.RedirectURL},
		"client_id":     {p.config.ClientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.config.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
	}

	var tokenResp xTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

// FetchProfile はアクセストークンでXのプロフィールを取得する。
func (p *XOAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*model.XProfile, error) {
	start := time.Now()
	defer func() { p.metrics.RecordProviderLatency("userinfo", time.Since(start)) }()

	u, err := url.Parse(p.config.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("invalid user info url: %w", err)
	}
	q := u.Query()
	q.Set("user.fields", "name,username,profile_image_url")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d", resp.StatusCode)
	}

	var userResp xUserResponse
	if err := json.Unmarshal(body, &userResp); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if userResp.Data.ID == "" {
		return nil, fmt.Errorf("empty id in user info response")
	}

	return &model.XProfile{
		ID:        userResp.Data.ID,
		Username:  userResp.Data.Username,
		Name:      userResp.Data.Name,
		AvatarURL: userResp.Data.ProfileImageURL,
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*XOAuthProvider)(nil)
