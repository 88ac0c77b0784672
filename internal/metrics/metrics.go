// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/bookman/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordBorrow()
	RecordBorrowRejected(code string)
	RecordReturn(fees model.FeeBreakdown)
	RecordEventHandlerFailure(handler string)
	RecordRemindersSent(count int)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loansBorrowed  prometheus.Counter
	loansReturned  prometheus.Counter
	borrowRejected *prometheus.CounterVec
	feesCharged    *prometheus.CounterVec
	handlerFailure *prometheus.CounterVec
	remindersSent  prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loansBorrowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_loans_borrowed_total",
			Help: "貸出の合計数",
		}),
		loansReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_loans_returned_total",
			Help: "返却の合計数",
		}),
		borrowRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_borrow_rejected_total",
			Help: "エラーコード別の貸出拒否数",
		}, []string{"code"}),
		feesCharged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_fees_charged_total",
			Help: "種別ごとの請求料金の合計額",
		}, []string{"kind"}),
		handlerFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_event_handler_failures_total",
			Help: "購読者別のイベント処理失敗数",
		}, []string{"handler"}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_overdue_reminders_total",
			Help: "送信した延滞督促の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loansBorrowed,
		c.loansReturned,
		c.borrowRejected,
		c.feesCharged,
		c.handlerFailure,
		c.remindersSent,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordBorrow は貸出成功を記録する。
func (c *Collector) RecordBorrow() {
	c.loansBorrowed.Inc()
}

// RecordBorrowRejected は業務ルールによる貸出拒否を記録する。
func (c *Collector) RecordBorrowRejected(code string) {
	c.borrowRejected.WithLabelValues(code).Inc()
}

// RecordReturn は返却と請求料金を記録する。
func (c *Collector) RecordReturn(fees model.FeeBreakdown) {
	c.loansReturned.Inc()
	c.feesCharged.WithLabelValues("base").Add(fees.BaseFee)
	c.feesCharged.WithLabelValues("late").Add(fees.LateFee)
	c.feesCharged.WithLabelValues("reservation").Add(fees.ReservationFee)
}

// RecordEventHandlerFailure はイベント購読者の失敗を記録する。
func (c *Collector) RecordEventHandlerFailure(handler string) {
	c.handlerFailure.WithLabelValues(handler).Inc()
}

// RecordRemindersSent は送信した督促数を記録する。
func (c *Collector) RecordRemindersSent(count int) {
	c.remindersSent.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
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

var _ MetricsCollector = (*Collector)(nil)
