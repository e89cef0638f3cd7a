// Package metrics implements the pipeline's performance monitor: it
// accumulates per-endpoint call stats, phase timings, and per-
// optimization savings in memory for the duration of a run, then
// flushes a structured summary through a Sink. Purely observational; it
// never affects control flow.
package metrics

import (
	"sync"
	"time"
)

// EndpointStats aggregates calls to one vendor endpoint
type EndpointStats struct {
	Calls     int           `json:"calls"`
	Failures  int           `json:"failures"`
	TotalTime time.Duration `json:"total_time_ns"`
}

// PhaseStats records wall time for a named pipeline phase
type PhaseStats struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
}

// OptimizationStats records the estimated savings from one optimization,
// e.g. batch EOD fetching or the staleness filter
type OptimizationStats struct {
	CallsSaved int           `json:"calls_saved"`
	TimeSaved  time.Duration `json:"time_saved_ns"`
	Applied    int           `json:"applied"`
}

// Summary is the end-of-run report
type Summary struct {
	Mode          string                       `json:"mode"`
	StartedAt     time.Time                    `json:"started_at"`
	FinishedAt    time.Time                    `json:"finished_at"`
	TotalCalls    int                          `json:"total_calls"`
	Endpoints     map[string]EndpointStats     `json:"endpoints"`
	Phases        map[string]PhaseStats        `json:"phases"`
	Optimizations map[string]OptimizationStats `json:"optimizations"`
}

// Monitor accumulates run metrics in memory
type Monitor struct {
	mode string
	sink Sink

	mu            sync.Mutex
	startedAt     time.Time
	endpoints     map[string]*EndpointStats
	phases        map[string]*PhaseStats
	optimizations map[string]*OptimizationStats
}

// NewMonitor creates a monitor for one pipeline run. A nil sink
// defaults to NoopSink.
func NewMonitor(mode string, sink Sink) *Monitor {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Monitor{
		mode:          mode,
		sink:          sink,
		startedAt:     time.Now(),
		endpoints:     make(map[string]*EndpointStats),
		phases:        make(map[string]*PhaseStats),
		optimizations: make(map[string]*OptimizationStats),
	}
}

// RecordCall records one vendor API call
func (m *Monitor) RecordCall(endpoint string, duration time.Duration, success bool) {
	m.mu.Lock()
	stats, ok := m.endpoints[endpoint]
	if !ok {
		stats = &EndpointStats{}
		m.endpoints[endpoint] = stats
	}
	stats.Calls++
	stats.TotalTime += duration
	if !success {
		stats.Failures++
	}
	m.mu.Unlock()

	_ = m.sink.Append(Event{
		Name:      "api_call",
		Endpoint:  endpoint,
		Duration:  duration,
		Success:   success,
		Timestamp: time.Now(),
	})
}

// StartPhase marks the start of a named phase
func (m *Monitor) StartPhase(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[name] = &PhaseStats{Started: time.Now()}
}

// EndPhase marks the end of a named phase
func (m *Monitor) EndPhase(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.phases[name]; ok {
		p.Duration = time.Since(p.Started)
	}
}

// RecordOptimization accumulates the estimated savings from applying a
// named optimization once
func (m *Monitor) RecordOptimization(name string, callsSaved int, timeSaved time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.optimizations[name]
	if !ok {
		stats = &OptimizationStats{}
		m.optimizations[name] = stats
	}
	stats.Applied++
	stats.CallsSaved += callsSaved
	stats.TimeSaved += timeSaved
}

// TotalCalls returns the number of API calls recorded so far
func (m *Monitor) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, s := range m.endpoints {
		total += s.Calls
	}
	return total
}

// Summary builds the current report snapshot
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		Mode:          m.mode,
		StartedAt:     m.startedAt,
		FinishedAt:    time.Now(),
		Endpoints:     make(map[string]EndpointStats, len(m.endpoints)),
		Phases:        make(map[string]PhaseStats, len(m.phases)),
		Optimizations: make(map[string]OptimizationStats, len(m.optimizations)),
	}
	for name, stats := range m.endpoints {
		s.Endpoints[name] = *stats
		s.TotalCalls += stats.Calls
	}
	for name, stats := range m.phases {
		s.Phases[name] = *stats
	}
	for name, stats := range m.optimizations {
		s.Optimizations[name] = *stats
	}
	return s
}

// Flush writes the final summary through the sink
func (m *Monitor) Flush() error {
	return m.sink.Flush(m.Summary())
}
