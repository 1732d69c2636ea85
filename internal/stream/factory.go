package stream

import (
	"crypto/tls"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"power-hmc-agent/internal/config"
)

const (
	defaultCountersStreamMethod = "/powerhmc.counters.v1.CounterService/StreamHostCounters"
	defaultStatusStreamMethod   = "/powerhmc.counters.v1.CounterService/StreamHostStatus"
	defaultCountersTable        = "hmc_host_counters"
	defaultStatusTable          = "hmc_host_status"
)

func NewSinkFromConfig(cfg config.Config, tlsCfg *tls.Config, logger *slog.Logger) (Sink, error) {
	switch cfg.StreamMode {
	case config.StreamModeGRPC:
		return NewGRPCClient(
			cfg.BackendGRPCAddr,
			tlsCfg,
			cfg.BackendToken,
			orDefault(cfg.GRPCCountersStreamMethod, defaultCountersStreamMethod),
			orDefault(cfg.GRPCStatusStreamMethod, defaultStatusStreamMethod),
			logger,
		), nil
	case config.StreamModeWebSocket:
		return NewWebSocketClient(cfg.BackendWSURL, cfg.BackendToken, tlsCfg, cfg.WebSocketWriteTimeout, cfg.WebSocketPingInterval, logger), nil
	case config.StreamModeLog:
		return NewLogSink(logger, slog.LevelInfo), nil
	case config.StreamModeTimescale:
		db, err := sql.Open("postgres", cfg.TimescaleDSN)
		if err != nil {
			return nil, fmt.Errorf("open timescale: %w", err)
		}
		sink, err := NewTimescaleSink(db,
			orDefault(cfg.TimescaleCountersTable, defaultCountersTable),
			orDefault(cfg.TimescaleStatusTable, defaultStatusTable))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unsupported stream mode %q", cfg.StreamMode)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
