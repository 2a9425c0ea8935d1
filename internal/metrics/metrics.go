// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証アクションの結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePanic   = "panic"
)

// MetricsCollector はメトリクス収集のインターフェース。
// アクション層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(action, outcome string)
	RecordAuthLatency(action string, duration time.Duration)
	RecordSessionLookup(found bool)
	RecordRateLimited(route string)
	RecordHTTPStatus(statusCode int)
	RecordExpiredSessionsDeleted(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts    *prometheus.CounterVec
	authLatency     *prometheus.HistogramVec
	sessionLookups  *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	sessionsExpired prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authflow_auth_attempts_total",
			Help: "サインイン・サインアップの試行数（結果別）",
		}, []string{"action", "outcome"}),
		authLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authflow_auth_latency_seconds",
			Help:    "認証アクションのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		sessionLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authflow_session_lookups_total",
			Help: "セッション取得の回数（有効なセッションの有無別）",
		}, []string{"found"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authflow_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}, []string{"route"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authflow_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authflow_expired_sessions_deleted_total",
			Help: "クリーンアップで削除した期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.authLatency,
		c.sessionLookups,
		c.rateLimited,
		c.httpStatus,
		c.sessionsExpired,
	)

	return c
}

// RecordAuthAttempt は認証アクションの結果を記録する。
func (c *Collector) RecordAuthAttempt(action, outcome string) {
	c.authAttempts.WithLabelValues(action, outcome).Inc()
}

// RecordAuthLatency は認証アクションのレイテンシを記録する。
func (c *Collector) RecordAuthLatency(action string, duration time.Duration) {
	c.authLatency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordSessionLookup はセッション取得の結果を記録する。
func (c *Collector) RecordSessionLookup(found bool) {
	c.sessionLookups.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordExpiredSessionsDeleted は削除した期限切れセッション数を記録する。
func (c *Collector) RecordExpiredSessionsDeleted(count int64) {
	c.sessionsExpired.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
