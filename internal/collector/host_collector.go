package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"power-hmc-agent/internal/counter"
	"power-hmc-agent/internal/hmc"
	"power-hmc-agent/internal/sample"
	"power-hmc-agent/internal/telemetry"
)

// SampleSource fetches processed PCM batches for one managed system.
type SampleSource interface {
	ManagedSystemMetrics(ctx context.Context, sysUUID string, start, end *time.Time) ([]sample.Value, error)
}

type HostCollector struct {
	source    SampleSource
	processor *counter.Processor
	prom      *telemetry.Prom
	logger    *slog.Logger
}

func NewHostCollector(source SampleSource, processor *counter.Processor, prom *telemetry.Prom, logger *slog.Logger) *HostCollector {
	if processor == nil {
		processor = counter.NewProcessor(nil, logger)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HostCollector{source: source, processor: processor, prom: prom, logger: logger}
}

// Capture acquires the samples of hostUUID between start and end and derives
// the named counters. A managed system with PCM disabled yields an empty
// series and no error.
func (c *HostCollector) Capture(ctx context.Context, hostUUID string, names []string, start, end *time.Time) (counter.Series, error) {
	began := time.Now()
	batches, err := c.source.ManagedSystemMetrics(ctx, hostUUID, start, end)
	if err != nil {
		if errors.Is(err, hmc.ErrMetricsUnavailable) {
			c.logger.Error("performance metrics are not enabled on managed system", "host", hostUUID, "error", err)
			c.observe(hostUUID, telemetry.ResultUnavailable, began)
			return counter.Series{}, nil
		}
		c.observe(hostUUID, telemetry.ResultError, began)
		return nil, fmt.Errorf("acquire samples for %s: %w", hostUUID, err)
	}

	series, err := c.processor.Process(names, batches)
	if err != nil {
		c.observe(hostUUID, telemetry.ResultError, began)
		return nil, fmt.Errorf("process samples for %s: %w", hostUUID, err)
	}
	c.observe(hostUUID, telemetry.ResultOK, began)
	if c.prom != nil {
		c.prom.AddPoints(hostUUID, len(series))
		if last, ok := series.Latest(); ok {
			for name, v := range last.Values {
				c.prom.SetCounterValue(hostUUID, name, v)
			}
		}
	}
	return series, nil
}

func (c *HostCollector) observe(host, result string, began time.Time) {
	if c.prom == nil {
		return
	}
	c.prom.ObserveCapture(host, result, time.Since(began))
}
