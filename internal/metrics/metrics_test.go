package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/bookman/internal/model"
)

// findFamily はレジストリから指定名のメトリクスファミリーを取得する。
func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labeledValues はラベル値ごとのカウンタ値を返す。
func labeledValues(mf *dto.MetricFamily) map[string]float64 {
	values := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		values[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	return values
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordBorrow_IncrementsCounter は貸出カウンタが増加することを検証する。
func TestRecordBorrow_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBorrow()
	c.RecordBorrow()

	mf := findFamily(t, reg, "bookman_loans_borrowed_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("loans_borrowed_total = %v, want 2", val)
	}
}

// TestRecordBorrowRejected_CountsByCode は貸出拒否がエラーコード別に記録されることを検証する。
func TestRecordBorrowRejected_CountsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBorrowRejected(model.ErrCodeBookUnavailable)
	c.RecordBorrowRejected(model.ErrCodeBookUnavailable)
	c.RecordBorrowRejected(model.ErrCodeBorrowLimitExceeded)

	values := labeledValues(findFamily(t, reg, "bookman_borrow_rejected_total"))
	if values[model.ErrCodeBookUnavailable] != 2 {
		t.Errorf("borrow_rejected_total{code=BOOK_UNAVAILABLE} = %v, want 2", values[model.ErrCodeBookUnavailable])
	}
	if values[model.ErrCodeBorrowLimitExceeded] != 1 {
		t.Errorf("borrow_rejected_total{code=BORROW_LIMIT_EXCEEDED} = %v, want 1", values[model.ErrCodeBorrowLimitExceeded])
	}
}

// TestRecordReturn_AccumulatesFees は返却数と種別ごとの料金が記録されることを検証する。
func TestRecordReturn_AccumulatesFees(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReturn(model.FeeBreakdown{BaseFee: 1, LateFee: 5, ReservationFee: 2, TotalFee: 8})
	c.RecordReturn(model.FeeBreakdown{LateFee: 5, TotalFee: 5})

	returned := findFamily(t, reg, "bookman_loans_returned_total")
	if val := returned.GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("loans_returned_total = %v, want 2", val)
	}

	fees := labeledValues(findFamily(t, reg, "bookman_fees_charged_total"))
	want := map[string]float64{"base": 1, "late": 10, "reservation": 2}
	for kind, v := range want {
		if fees[kind] != v {
			t.Errorf("fees_charged_total{kind=%s} = %v, want %v", kind, fees[kind], v)
		}
	}
}

// TestRecordEventHandlerFailure_CountsByHandler は購読者別の失敗数が記録されることを検証する。
func TestRecordEventHandlerFailure_CountsByHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEventHandlerFailure("waitlist")

	values := labeledValues(findFamily(t, reg, "bookman_event_handler_failures_total"))
	if values["waitlist"] != 1 {
		t.Errorf("event_handler_failures_total{handler=waitlist} = %v, want 1", values["waitlist"])
	}
}

// TestRecordRemindersSent_IncrementsCounter は督促数が加算されることを検証する。
func TestRecordRemindersSent_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRemindersSent(3)
	c.RecordRemindersSent(4)

	mf := findFamily(t, reg, "bookman_overdue_reminders_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 7 {
		t.Errorf("overdue_reminders_total = %v, want 7", val)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)

	mf := findFamily(t, reg, "bookman_http_status_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	values := labeledValues(mf)
	if values["200"] != 2 {
		t.Errorf("http_status_total{status_code=200} = %v, want 2", values["200"])
	}
	if values["409"] != 1 {
		t.Errorf("http_status_total{status_code=409} = %v, want 1", values["409"])
	}
}

// TestRecordRequestLatency_ObservesHistogram はリクエスト処理時間のヒストグラムに値が記録されることを検証する。
func TestRecordRequestLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(100 * time.Millisecond)
	c.RecordRequestLatency(2 * time.Second)

	h := findFamily(t, reg, "bookman_http_request_duration_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBorrow()
	c.RecordBorrowRejected(model.ErrCodeReservedByOther)
	c.RecordReturn(model.FeeBreakdown{LateFee: 5, TotalFee: 5})
	c.RecordHTTPStatus(200)
	c.RecordRequestLatency(500 * time.Millisecond)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"bookman_loans_borrowed_total",
		"bookman_borrow_rejected_total",
		"bookman_loans_returned_total",
		"bookman_fees_charged_total",
		"bookman_http_status_total",
		"bookman_http_request_duration_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordBorrow()
	c2.RecordBorrow()
	c2.RecordBorrow()

	val1 := findFamily(t, reg1, "bookman_loans_borrowed_total").GetMetric()[0].GetCounter().GetValue()
	val2 := findFamily(t, reg2, "bookman_loans_borrowed_total").GetMetric()[0].GetCounter().GetValue()

	if val1 != 1 {
		t.Errorf("reg1 loans_borrowed = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 loans_borrowed = %v, want 2", val2)
	}
}
