package monitoring

import (
	"sync"
	"time"
)

// Metrics counts served predictions. Safe for concurrent use.
type Metrics struct {
	mu        sync.Mutex
	startTime time.Time
	requests  map[string]int64
	labels    map[string]map[string]int64
	errors    map[string]int64
	latency   latencyStats
}

type latencyStats struct {
	Count int64   `json:"count"`
	SumMS float64 `json:"sum_ms"`
	MaxMS float64 `json:"max_ms"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Uptime    string                      `json:"uptime"`
	Requests  map[string]int64            `json:"requests"`
	Labels    map[string]map[string]int64 `json:"labels"`
	Errors    map[string]int64            `json:"errors"`
	Latency   latencyStats                `json:"latency"`
	AvgMS     float64                     `json:"avg_latency_ms"`
	Timestamp time.Time                   `json:"timestamp"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		requests:  make(map[string]int64),
		labels:    make(map[string]map[string]int64),
		errors:    make(map[string]int64),
	}
}

func (m *Metrics) ObservePrediction(variant, label string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[variant]++
	if m.labels[variant] == nil {
		m.labels[variant] = make(map[string]int64)
	}
	m.labels[variant][label]++
	m.observeLatency(latency)
}

func (m *Metrics) ObserveError(variant, kind string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[variant]++
	m.errors[kind]++
	m.observeLatency(latency)
}

func (m *Metrics) observeLatency(latency time.Duration) {
	ms := float64(latency) / float64(time.Millisecond)
	m.latency.Count++
	m.latency.SumMS += ms
	if ms > m.latency.MaxMS {
		m.latency.MaxMS = ms
	}
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Uptime:    time.Since(m.startTime).Round(time.Second).String(),
		Requests:  make(map[string]int64, len(m.requests)),
		Labels:    make(map[string]map[string]int64, len(m.labels)),
		Errors:    make(map[string]int64, len(m.errors)),
		Latency:   m.latency,
		Timestamp: time.Now().UTC(),
	}
	for k, v := range m.requests {
		snap.Requests[k] = v
	}
	for variant, counts := range m.labels {
		copied := make(map[string]int64, len(counts))
		for label, n := range counts {
			copied[label] = n
		}
		snap.Labels[variant] = copied
	}
	for k, v := range m.errors {
		snap.Errors[k] = v
	}
	if m.latency.Count > 0 {
		snap.AvgMS = m.latency.SumMS / float64(m.latency.Count)
	}
	return snap
}
