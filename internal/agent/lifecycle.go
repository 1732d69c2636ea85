package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"power-hmc-agent/internal/collector"
)

func (a *Agent) run(ctx context.Context) error {
	if err := a.hmc.Logon(ctx); err != nil {
		return fmt.Errorf("initial hmc logon: %w", err)
	}
	a.health.SetHMCConnected(true)
	a.health.SetStreamConnected(true)

	targets, err := resolveTargets(ctx, a.cfg.Hosts, a.hmc, a.logger)
	if err != nil {
		return err
	}
	a.targets = targets

	scheduler := collector.NewScheduler(a.logger, a.collector, a.sink, collector.SchedulerOptions{
		AgentID:      a.cfg.AgentID,
		Counters:     a.cfg.Counters,
		Targets:      targets,
		Interval:     a.cfg.CaptureInterval,
		Window:       a.cfg.CaptureWindow,
		ErrorBackoff: a.cfg.CollectorErrorBackoff,
		Prom:         a.prom,
		OnCapture:    a.health.MarkCapture,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	g.Go(func() error {
		return a.runProbeListener(gctx)
	})
	if a.cfg.MetricsListenAddr != "" {
		g.Go(func() error {
			return a.runMetricsServer(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := a.hmc.Healthy(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.Warn("hmc health check failed, logging on again", "error", err)
				a.health.SetHMCConnected(false)
				if recErr := a.hmc.Logon(ctx); recErr != nil {
					a.logger.Error("hmc logon failed", "error", recErr)
					continue
				}
				a.logHealth("recovered")
				a.health.SetHMCConnected(true)
			} else {
				a.health.SetHMCConnected(true)
				a.logHealth("ok")
			}
		}
	}
}

func (a *Agent) logHealth(status string) {
	a.logger.Log(context.Background(), slog.LevelDebug, "agent health", "status", status, "snapshot", a.health.Snapshot())
}

func (a *Agent) shutdown(ctx context.Context) {
	if err := a.sink.Close(ctx); err != nil {
		a.logger.Warn("stream sink close failed", "error", err)
	}
	a.health.SetStreamConnected(false)
	if err := a.hmc.Logoff(ctx); err != nil {
		a.logger.Warn("hmc logoff failed", "error", err)
	}
	a.health.SetHMCConnected(false)
}
