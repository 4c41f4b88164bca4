package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics. All counters use atomic
// operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	TotalConnections  atomic.Int64 // lifetime connections accepted
	ActiveConnections atomic.Int64 // currently serving connections

	LoginSuccess atomic.Int64 // successful logins
	LoginFailed  atomic.Int64 // rejected logins (bad name, duplicate, bad password)

	MessagesRelayed atomic.Int64 // chat messages accepted and stored
	PushesSent      atomic.Int64 // pushes acknowledged by peers
	PushesDropped   atomic.Int64 // pushes skipped or failed

	Kickouts atomic.Int64 // disconnect cleanups run
}

// NewMetrics creates a Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// MetricsSnapshot is a point-in-time, serializable view of all counters.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`

	LoginSuccess int64 `json:"login_success"`
	LoginFailed  int64 `json:"login_failed"`

	MessagesRelayed int64 `json:"messages_relayed"`
	PushesSent      int64 `json:"pushes_sent"`
	PushesDropped   int64 `json:"pushes_dropped"`

	Kickouts int64 `json:"kickouts"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		LoginSuccess:      m.LoginSuccess.Load(),
		LoginFailed:       m.LoginFailed.Load(),
		MessagesRelayed:   m.MessagesRelayed.Load(),
		PushesSent:        m.PushesSent.Load(),
		PushesDropped:     m.PushesDropped.Load(),
		Kickouts:          m.Kickouts.Load(),
	}
}

// JSON returns the snapshot as an indented JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"logins", s.LoginSuccess,
		"messages", s.MessagesRelayed,
		"pushes_sent", s.PushesSent,
		"pushes_dropped", s.PushesDropped,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval until
// done is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
