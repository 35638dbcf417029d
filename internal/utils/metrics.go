// internal/utils/metrics.go
package utils

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector keeps in-process counters, gauges and histograms.
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max of recorded values.
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector returns the process-wide collector.
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// value returns the cell of name in table, creating it under the write lock.
func (m *MetricsCollector) value(table map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, ok := table[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = table[name]; !ok {
		v = new(int64)
		table[name] = v
	}
	return v
}

func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

func (m *MetricsCollector) AddCounter(name string, delta int64) {
	atomic.AddInt64(m.value(m.counters, name), delta)
}

func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	v, ok := m.counters[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.value(m.gauges, name), value)
}

func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.value(m.gauges, name), 1)
}

func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.value(m.gauges, name), -1)
}

func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	v, ok := m.gauges[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if h, ok = m.histograms[name]; !ok {
			h = &Histogram{min: value, max: value}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	if value < h.min {
		h.min = value
	}
	if value > h.max {
		h.max = value
	}
}

// GetMetrics returns a snapshot suitable for JSON encoding.
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}
	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}
	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{"count": h.count, "sum": h.sum, "min": h.min, "max": h.max}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// AppMetrics records the events of the pitch generator.
type AppMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

func NewAppMetrics(collector *MetricsCollector) *AppMetrics {
	if collector == nil {
		collector = GetMetricsCollector()
	}
	return &AppMetrics{metrics: collector, logger: GetLogger()}
}

func (am *AppMetrics) Collector() *MetricsCollector {
	return am.metrics
}

// RecordAPIRequest counts one HTTP request. route is the gin route pattern.
func (am *AppMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	am.metrics.IncrementCounter("api_requests_total")
	am.metrics.IncrementCounter("api_requests_" + method + " " + route)
	am.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
	am.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
}

// RecordGenerationStarted marks one generation task as running.
func (am *AppMetrics) RecordGenerationStarted(source string) {
	am.metrics.IncrementCounter("generations_started_total")
	am.metrics.IncrementCounter("generations_source_" + source)
	am.metrics.IncGauge("generations_running")
}

// RecordGenerationFinished closes a task started with RecordGenerationStarted.
// outcome is "completed" or "failed".
func (am *AppMetrics) RecordGenerationFinished(outcome string, duration time.Duration, images int) {
	am.metrics.DecGauge("generations_running")
	am.metrics.IncrementCounter("generations_" + outcome + "_total")
	am.metrics.RecordHistogram("generation_duration_ms", duration.Milliseconds())
	if images > 0 {
		am.metrics.AddCounter("images_processed_total", int64(images))
	}
}

func (am *AppMetrics) RecordExport(format string) {
	am.metrics.IncrementCounter("exports_total")
	am.metrics.IncrementCounter("exports_" + format)
}

func (am *AppMetrics) RecordError(errorType, component string) {
	am.metrics.IncrementCounter("errors_total")
	am.metrics.IncrementCounter("errors_" + component + "_" + errorType)
}

// StartMetricsCollection logs a snapshot every interval until ctx is done.
func (am *AppMetrics) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				am.logger.Info("📊 Periodic metrics report", map[string]interface{}{
					"metrics": am.metrics.GetMetrics(),
				})
			}
		}
	}()
}
