package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/domain/session"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal        atomic.Uint64
	RequestsInProgress   atomic.Int64
	RequestsSuccess      atomic.Uint64
	RequestsFailed       atomic.Uint64
	EvaluationsTotal     atomic.Uint64
	EvaluationsRunning   atomic.Int64
	EvaluationsSucceeded atomic.Uint64
	EvaluationsFailed    atomic.Uint64
	EvaluationsCancelled atomic.Uint64
	RateLimitedRuns      atomic.Uint64
	StartTime            time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// RunStarted and RunFinished feed the evaluation counters.
func (m *Metrics) RunStarted() {
	m.EvaluationsTotal.Add(1)
	m.EvaluationsRunning.Add(1)
}

func (m *Metrics) RunFinished(state session.RunState, kind evaluation.Kind) {
	m.EvaluationsRunning.Add(-1)
	switch state {
	case session.StateSucceeded:
		m.EvaluationsSucceeded.Add(1)
	case session.StateCancelled:
		m.EvaluationsCancelled.Add(1)
	default:
		m.EvaluationsFailed.Add(1)
	}
	if kind == evaluation.KindRateLimit {
		m.RateLimitedRuns.Add(1)
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"requests_total":           m.RequestsTotal.Load(),
		"requests_in_progress":     m.RequestsInProgress.Load(),
		"requests_success":         m.RequestsSuccess.Load(),
		"requests_failed":          m.RequestsFailed.Load(),
		"evaluations_total":        m.EvaluationsTotal.Load(),
		"evaluations_running":      m.EvaluationsRunning.Load(),
		"evaluations_succeeded":    m.EvaluationsSucceeded.Load(),
		"evaluations_failed":       m.EvaluationsFailed.Load(),
		"evaluations_cancelled":    m.EvaluationsCancelled.Load(),
		"evaluations_rate_limited": m.RateLimitedRuns.Load(),
		"uptime_seconds":           time.Since(m.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
