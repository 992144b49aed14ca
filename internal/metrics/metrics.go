// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はGameFlip APIクライアントのメトリクスを収集するPrometheus実装。
// gfapi.Metricsインターフェースを実装する。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamErrors   *prometheus.CounterVec
	rateLimitWait    prometheus.Histogram
	pagesFetched     prometheus.Counter
	paginationCeil   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gfbay_upstream_requests_total",
			Help: "GameFlip APIへのリクエスト数（HTTPメソッド別）",
		}, []string{"method"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gfbay_upstream_errors_total",
			Help: "GameFlip APIの正規化済みエラー数（エラーコード別）",
		}, []string{"code"}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gfbay_rate_limit_wait_seconds",
			Help:    "トークンバケット待機時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gfbay_pagination_pages_total",
			Help: "取得したページネーションページの合計数",
		}),
		paginationCeil: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gfbay_pagination_ceiling_total",
			Help: "ページネーション上限到達の合計数",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamErrors,
		c.rateLimitWait,
		c.pagesFetched,
		c.paginationCeil,
	)

	return c
}

// RecordUpstreamRequest はAPIリクエストの発行を記録する。
func (c *Collector) RecordUpstreamRequest(method string) {
	c.upstreamRequests.WithLabelValues(method).Inc()
}

// RecordUpstreamError は正規化済みエラーを記録する。
func (c *Collector) RecordUpstreamError(code int) {
	c.upstreamErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordRateLimitWait はレートリミッターの待機時間を記録する。
func (c *Collector) RecordRateLimitWait(d time.Duration) {
	c.rateLimitWait.Observe(d.Seconds())
}

// RecordPageFetched はページ取得を記録する。
func (c *Collector) RecordPageFetched() {
	c.pagesFetched.Inc()
}

// RecordPaginationCeiling はページネーション上限到達を記録する。
func (c *Collector) RecordPaginationCeiling() {
	c.paginationCeil.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
