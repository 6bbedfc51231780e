package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string
	RedisURL    string // 空の場合OAuthStateはPostgresに保存する

	// X OAuth
	TwitterClientID     string
	TwitterClientSecret string
	TwitterScopes       string
	TwitterAuthURL      string
	TwitterTokenURL     string
	TwitterUserInfoURL  string
	ProviderTimeout     time.Duration
	OAuthStateTTL       time.Duration

	// Session
	AppSecret         string
	SessionMaxAge     int // 秒
	ClaimCookieMaxAge int // 秒

	// Claim
	DefaultTier string

	// Discord
	DiscordPublicKey         string
	DiscordApplicationID     string
	DiscordAllowedChannelIDs []string
	DiscordResponseMode      string
	DiscordAPIBaseURL        string
	DiscordFollowupRPS       float64

	// Worker
	CleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv は.envファイルを環境変数に読み込む。
// ENV_FILEが指定されていればそのファイルを、無ければカレントディレクトリの.envを使う。
// 既に設定されている環境変数は上書きしない。ファイルが無いことはエラーとしない。
func LoadDotEnv() {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err == nil {
			return
		}
	}
	_ = godotenv.Load()
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TwitterClientID = os.Getenv("TW_CLIENT_ID")
	if cfg.TwitterClientID == "" {
		missing = append(missing, "TW_CLIENT_ID")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("APP_BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "APP_BASE_URL")
	}

	cfg.AppSecret = os.Getenv("APP_SECRET")
	if cfg.AppSecret == "" {
		missing = append(missing, "APP_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.TwitterClientSecret = getEnvString("TW_CLIENT_SECRET", "")
	cfg.TwitterScopes = getEnvString("TW_SCOPES", "tweet.read users.read offline.access")
	cfg.TwitterAuthURL = getEnvString("TW_AUTH_URL", "")
	cfg.TwitterTokenURL = getEnvString("TW_TOKEN_URL", "")
	cfg.TwitterUserInfoURL = getEnvString("TW_USERINFO_URL", "")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.OAuthStateTTL = getEnvDuration("OAUTH_STATE_TTL", 15*time.Minute)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 7*24*60*60)
	cfg.ClaimCookieMaxAge = getEnvInt("CLAIM_COOKIE_MAX_AGE", 15*60)
	cfg.DefaultTier = getEnvString("DEFAULT_TIER", "Early Access")
	cfg.DiscordPublicKey = getEnvString("DISCORD_PUBLIC_KEY", "")
	cfg.DiscordApplicationID = getEnvString("DISCORD_APPLICATION_ID", "")
	cfg.DiscordAllowedChannelIDs = getEnvList("DISCORD_ALLOWED_CHANNEL_IDS")
	cfg.DiscordResponseMode = getEnvString("DISCORD_RESPONSE_MODE", "sync")
	cfg.DiscordAPIBaseURL = getEnvString("DISCORD_API_BASE_URL", "https://discord.com/api/v10")
	cfg.DiscordFollowupRPS = getEnvFloat("DISCORD_FOLLOWUP_RPS", 5)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 10*time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	if cfg.DiscordResponseMode != "sync" && cfg.DiscordResponseMode != "deferred" {
		return nil, fmt.Errorf("DISCORD_RESPONSE_MODE must be sync or deferred, got %q", cfg.DiscordResponseMode)
	}

	// 0以下の期間は鮮度チェックやtickerを無効化してしまうため起動時に拒否する
	var nonPositive []string
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"PROVIDER_TIMEOUT", cfg.ProviderTimeout},
		{"OAUTH_STATE_TTL", cfg.OAuthStateTTL},
		{"CLEANUP_INTERVAL", cfg.CleanupInterval},
		{"SESSION_MAX_AGE", time.Duration(cfg.SessionMaxAge) * time.Second},
		{"CLAIM_COOKIE_MAX_AGE", time.Duration(cfg.ClaimCookieMaxAge) * time.Second},
	} {
		if d.value <= 0 {
			nonPositive = append(nonPositive, d.key)
		}
	}
	if len(nonPositive) > 0 {
		return nil, fmt.Errorf("environment variables must be positive: %v", nonPositive)
	}

	return cfg, nil
}

// OAuthRedirectURL はXに登録するコールバックURLを返す。
func (c *Config) OAuthRedirectURL() string {
	return c.BaseURL + "/oauth/callback"
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
