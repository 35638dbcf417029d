// internal/utils/metrics_test.go
package utils

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsCollectorConcurrentCounters(t *testing.T) {
	m := NewMetricsCollector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.IncrementCounter("hits")
			}
		}()
	}
	wg.Wait()
	if got := m.GetCounterValue("hits"); got != 1000 {
		t.Errorf("hits = %d, want 1000", got)
	}
	if got := m.GetCounterValue("missing"); got != 0 {
		t.Errorf("missing counter = %d", got)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetricsCollector()
	m.SetGauge("g", 5)
	m.IncGauge("g")
	m.DecGauge("other")
	m.RecordHistogram("h", 30)
	m.RecordHistogram("h", 10)
	m.RecordHistogram("h", 20)

	snap := m.GetMetrics()
	gauges := snap["gauges"].(map[string]int64)
	if gauges["g"] != 6 || gauges["other"] != -1 {
		t.Errorf("gauges = %v", gauges)
	}
	h := snap["histograms"].(map[string]map[string]int64)["h"]
	if h["count"] != 3 || h["sum"] != 60 || h["min"] != 10 || h["max"] != 30 {
		t.Errorf("histogram = %v", h)
	}
}

func TestAppMetrics(t *testing.T) {
	am := NewAppMetrics(NewMetricsCollector())
	am.RecordAPIRequest("/api/health", "GET", 200, 3*time.Millisecond)
	am.RecordAPIRequest("/api/pitch", "POST", 429, time.Millisecond)
	am.RecordGenerationStarted("upload")
	am.RecordGenerationFinished("completed", time.Second, 12)
	am.RecordExport("pdf")

	c := am.Collector()
	checks := map[string]int64{
		"api_requests_total":           2,
		"api_requests_GET /api/health": 1,
		"api_responses_2xx":            1,
		"api_responses_4xx":            1,
		"generations_started_total":    1,
		"generations_completed_total":  1,
		"images_processed_total":       12,
		"exports_pdf":                  1,
	}
	for name, want := range checks {
		if got := c.GetCounterValue(name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
	if c.GetGauge("generations_running") != 0 {
		t.Errorf("running gauge = %d", c.GetGauge("generations_running"))
	}
}
