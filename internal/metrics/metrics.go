// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、ミドルウェア、外部APIクライアントから利用する。
type MetricsCollector interface {
	RecordCodeCheck(result string)
	RecordClaim(result string)
	RecordResume(result string)
	RecordOAuthCallback(stage string)
	RecordDiscordInteraction(kind string)
	RecordDiscordAllocation(result string)
	RecordProviderLatency(endpoint string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	codeChecks          *prometheus.CounterVec
	claims              *prometheus.CounterVec
	resumes             *prometheus.CounterVec
	oauthCallbacks      *prometheus.CounterVec
	discordInteractions *prometheus.CounterVec
	discordAllocations  *prometheus.CounterVec
	providerLatency     *prometheus.HistogramVec
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		codeChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_code_checks_total",
			Help: "招待コード事前確認の結果別件数",
		}, []string{"result"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_claims_total",
			Help: "招待コード引き換えの結果別件数",
		}, []string{"result"}),
		resumes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_resume_total",
			Help: "X連携再開の結果別件数",
		}, []string{"result"}),
		oauthCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_oauth_callbacks_total",
			Help: "OAuthコールバックの終了ステージ別件数",
		}, []string{"stage"}),
		discordInteractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_discord_interactions_total",
			Help: "Discordインタラクションの種別件数",
		}, []string{"type"}),
		discordAllocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_discord_allocations_total",
			Help: "Discord経由のコード割り当て結果別件数",
		}, []string{"result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimgate_provider_request_duration_seconds",
			Help:    "外部API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.codeChecks,
		c.claims,
		c.resumes,
		c.oauthCallbacks,
		c.discordInteractions,
		c.discordAllocations,
		c.providerLatency,
		c.httpStatus,
	)

	return c
}

// RecordCodeCheck は事前確認の結果を記録する。
func (c *Collector) RecordCodeCheck(result string) {
	c.codeChecks.WithLabelValues(result).Inc()
}

// RecordClaim は引き換えの結果を記録する。
func (c *Collector) RecordClaim(result string) {
	c.claims.WithLabelValues(result).Inc()
}

// RecordResume は連携再開の結果を記録する。
func (c *Collector) RecordResume(result string) {
	c.resumes.WithLabelValues(result).Inc()
}

// RecordOAuthCallback はコールバックの終了ステージを記録する。成功時は"success"。
func (c *Collector) RecordOAuthCallback(stage string) {
	c.oauthCallbacks.WithLabelValues(stage).Inc()
}

// RecordDiscordInteraction はDiscordインタラクションの種別を記録する。
func (c *Collector) RecordDiscordInteraction(kind string) {
	c.discordInteractions.WithLabelValues(kind).Inc()
}

// RecordDiscordAllocation はコード割り当ての結果を記録する。
func (c *Collector) RecordDiscordAllocation(result string) {
	c.discordAllocations.WithLabelValues(result).Inc()
}

// RecordProviderLatency は外部API呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(endpoint string, duration time.Duration) {
	c.providerLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordCodeCheck(string)                      {}
func (Nop) RecordClaim(string)                          {}
func (Nop) RecordResume(string)                         {}
func (Nop) RecordOAuthCallback(string)                  {}
func (Nop) RecordDiscordInteraction(string)             {}
func (Nop) RecordDiscordAllocation(string)              {}
func (Nop) RecordProviderLatency(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int)                        {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
