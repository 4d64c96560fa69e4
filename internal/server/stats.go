package server

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// stats are cheap aggregate counters, flushed to one log line per minute so
// steady-state traffic does not produce a log line per frame.
type stats struct {
	connects       atomic.Int64
	disconnects    atomic.Int64
	commands       atomic.Int64
	eventsIngested atomic.Int64
}

func newStats() *stats {
	return &stats{}
}

// RunStatsLogger emits the aggregate counters once a minute until ctx is
// cancelled.
func (s *Server) RunStatsLogger(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.log.Info("relay aggregate stats (per minute)",
				zap.Int64("connects", s.stats.connects.Swap(0)),
				zap.Int64("disconnects", s.stats.disconnects.Swap(0)),
				zap.Int64("commands", s.stats.commands.Swap(0)),
				zap.Int64("events_ingested", s.stats.eventsIngested.Swap(0)),
				zap.Int("live_connections", s.registry.Count()),
			)
		}
	}
}
