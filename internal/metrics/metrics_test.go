package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewMetrics_PrivateRegistries(t *testing.T) {
	// Two instances in one process must not panic on duplicate registration.
	a := NewMetrics()
	b := NewMetrics()
	a.BarsTotal.WithLabelValues("60").Inc()
	b.BarsTotal.WithLabelValues("60").Add(3)

	if got := counterValue(t, a, "indengine_bars_total"); got != 1 {
		t.Errorf("a bars = %v, want 1", got)
	}
	if got := counterValue(t, b, "indengine_bars_total"); got != 3 {
		t.Errorf("b bars = %v, want 3", got)
	}
}

func TestHandler_ExposesIndicatorMetrics(t *testing.T) {
	m := NewMetrics()
	m.ResultsTotal.WithLabelValues("VWAP").Add(2)
	m.VWAPResetsTotal.WithLabelValues("VWAP_daily").Inc()
	m.IndicatorComputeDur.Observe(0.00002)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`indengine_results_total{kind="VWAP"} 2`,
		`indengine_vwap_resets_total{name="VWAP_daily"} 1`,
		"indengine_compute_duration_seconds_count 1",
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHealthStatus_Statuses(t *testing.T) {
	tests := []struct {
		name       string
		redis      bool
		sqlite     bool
		indicator  bool
		wantStatus string
		wantCode   int
	}{
		{"all up", true, true, true, "healthy", http.StatusOK},
		{"sqlite down", true, false, true, "degraded", http.StatusOK},
		{"redis down", false, true, true, "degraded", http.StatusServiceUnavailable},
		{"everything down", false, false, false, "unhealthy", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus()
			h.SetRedisConnected(tt.redis)
			h.SetSQLiteOK(tt.sqlite)
			h.SetIndicatorOK(tt.indicator)
			h.SetEnabledTFs([]int{60, 300})
			h.SetLastBarTime(time.Now().Add(-2 * time.Second))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status     string `json:"status"`
				EnabledTFs []int  `json:"enabled_tfs"`
				BarAge     string `json:"bar_age"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if len(body.EnabledTFs) != 2 || body.BarAge == "" {
				t.Errorf("unexpected body %+v", body)
			}
		})
	}
}

func counterValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
	}
	return sum
}
