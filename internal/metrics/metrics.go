// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 操作結果のラベル値
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordPostOperation(op, outcome string)
	RecordUploadRejected(reason string)
	RecordLogin(outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	postOperations *prometheus.CounterVec
	uploadRejected *prometheus.CounterVec
	logins         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_http_requests_total",
			Help: "ルート・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blogman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		postOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_post_operations_total",
			Help: "投稿操作の結果別件数",
		}, []string{"op", "outcome"}),
		uploadRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_upload_rejected_total",
			Help: "拒否されたアップロードの理由別件数",
		}, []string{"reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_logins_total",
			Help: "ログイン試行の結果別件数",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.postOperations,
		c.uploadRejected,
		c.logins,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡し、ラベルのカーディナリティを抑える。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordPostOperation は投稿操作の結果を記録する。
func (c *Collector) RecordPostOperation(op, outcome string) {
	c.postOperations.WithLabelValues(op, outcome).Inc()
}

// RecordUploadRejected はアップロードの拒否を記録する。
func (c *Collector) RecordUploadRejected(reason string) {
	c.uploadRejected.WithLabelValues(reason).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやworkerコマンドで使う。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordPostOperation(string, string)                    {}
func (Nop) RecordUploadRejected(string)                           {}
func (Nop) RecordLogin(string)                                    {}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
