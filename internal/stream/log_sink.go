package stream

import (
	"context"
	"log/slog"

	"power-hmc-agent/internal/model"
)

// LogSink writes frames to the logger instead of a backend. It is meant for
// dry runs and debugging a new HMC.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	return &LogSink{logger: logger, level: level}
}

func (s *LogSink) SendHostCounters(ctx Context, hc model.HostCounters) error {
	for _, p := range hc.Points {
		s.logger.Log(context.Background(), s.level, "host counters",
			"host", hc.HostUUID, "host_name", hc.HostName, "ts", p.TimestampUnix, "values", p.Values)
	}
	return ctx.Err()
}

func (s *LogSink) SendHostStatus(ctx Context, st model.HostStatus) error {
	s.logger.Log(context.Background(), s.level, "host status",
		"host", st.HostUUID, "metrics_available", st.MetricsAvailable, "reason", st.Reason)
	return ctx.Err()
}

func (s *LogSink) Close(Context) error { return nil }
