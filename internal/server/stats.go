package server

import (
	"sync/atomic"
	"time"

	"github.com/muurk/fieldsync/internal/broadcast"
)

// Stats records server activity for the metrics endpoint.
type Stats struct {
	ConnectionsAccepted atomic.Int64
	ConnectionsActive   atomic.Int64
	HTTPRequests        atomic.Int64
	HandshakeFailures   atomic.Int64
	SessionsStarted     atomic.Int64
	SessionsActive      atomic.Int64
	SessionErrors       atomic.Int64
}

// Metrics is the JSON document served on /metrics.
type Metrics struct {
	UptimeSeconds       int64           `json:"uptime_seconds"`
	ConnectionsAccepted int64           `json:"connections_accepted"`
	ConnectionsActive   int64           `json:"connections_active"`
	HTTPRequests        int64           `json:"http_requests"`
	HandshakeFailures   int64           `json:"handshake_failures"`
	SessionsStarted     int64           `json:"sessions_started"`
	SessionsActive      int64           `json:"sessions_active"`
	SessionErrors       int64           `json:"session_errors"`
	Players             int             `json:"players"`
	Bus                 broadcast.Stats `json:"bus"`
}

// Metrics returns a snapshot of the server counters.
func (s *Server) Metrics() Metrics {
	return Metrics{
		UptimeSeconds:       int64(time.Since(s.started).Seconds()),
		ConnectionsAccepted: s.stats.ConnectionsAccepted.Load(),
		ConnectionsActive:   s.stats.ConnectionsActive.Load(),
		HTTPRequests:        s.stats.HTTPRequests.Load(),
		HandshakeFailures:   s.stats.HandshakeFailures.Load(),
		SessionsStarted:     s.stats.SessionsStarted.Load(),
		SessionsActive:      s.stats.SessionsActive.Load(),
		SessionErrors:       s.stats.SessionErrors.Load(),
		Players:             s.players.Len(),
		Bus:                 s.bus.Stats(),
	}
}
