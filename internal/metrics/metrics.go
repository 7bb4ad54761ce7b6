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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordFetchSuccess(feedID string)
	RecordFetchFailure(feedID string, reason string)
	RecordParseFailure(feedID string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordArticlesIngested(created, skipped, errors int)
	RecordGenerationOutcome(outcome string)
	RecordGenerationDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess       prometheus.Counter
	fetchFail          prometheus.Counter
	parseFail          prometheus.Counter
	httpStatus         *prometheus.CounterVec
	fetchLatency       prometheus.Histogram
	articlesIngested   *prometheus.CounterVec
	generationOutcome  *prometheus.CounterVec
	generationDuration prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "letterman_fetch_success_total",
			Help: "フィードフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "letterman_fetch_fail_total",
			Help: "フィードフェッチ失敗の合計数",
		}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "letterman_parse_fail_total",
			Help: "フィードパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "letterman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "letterman_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "letterman_articles_ingested_total",
			Help: "取り込み結果別の記事数",
		}, []string{"outcome"}),
		generationOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "letterman_generation_total",
			Help: "終了状態別のニュースレター生成数",
		}, []string{"outcome"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "letterman_generation_duration_seconds",
			Help:    "ニュースレター生成の所要時間（秒）",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.articlesIngested,
		c.generationOutcome,
		c.generationDuration,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(feedID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(feedID string, reason string) {
	c.fetchFail.Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(feedID string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordArticlesIngested は取り込みバッチの集計結果を記録する。
func (c *Collector) RecordArticlesIngested(created, skipped, errors int) {
	c.articlesIngested.WithLabelValues("created").Add(float64(created))
	c.articlesIngested.WithLabelValues("skipped").Add(float64(skipped))
	c.articlesIngested.WithLabelValues("errors").Add(float64(errors))
}

// RecordGenerationOutcome はニュースレター生成の終了状態を記録する。
// outcomeには complete / failed / timeout / cancelled のいずれかを渡す。
func (c *Collector) RecordGenerationOutcome(outcome string) {
	c.generationOutcome.WithLabelValues(outcome).Inc()
}

// RecordGenerationDuration はニュースレター生成の所要時間を記録する。
func (c *Collector) RecordGenerationDuration(duration time.Duration) {
	c.generationDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
