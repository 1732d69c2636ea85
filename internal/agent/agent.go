package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"power-hmc-agent/internal/collector"
	"power-hmc-agent/internal/config"
	"power-hmc-agent/internal/counter"
	"power-hmc-agent/internal/hmc"
	"power-hmc-agent/internal/model"
	"power-hmc-agent/internal/stream"
	"power-hmc-agent/internal/telemetry"
)

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	hmc       *hmc.Client
	collector *collector.HostCollector
	sink      stream.Sink
	health    *HealthStatus
	prom      *telemetry.Prom
	targets   []collector.Target
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	sink, err := stream.NewSinkFromConfig(cfg, tlsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("stream sink: %w", err)
	}

	client, err := hmc.NewClient(hmc.Config{
		BaseURL:    cfg.HMCURL,
		Username:   cfg.HMCUsername,
		Password:   cfg.HMCPassword,
		Timeout:    cfg.HMCTimeout,
		TLSConfig:  cfg.HMCTLSConfig(),
		RetryWait:  cfg.HMCRetryWait,
		MaxJitter:  cfg.HMCMaxJitter,
		MaxRetries: cfg.HMCMaxRetries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("hmc client: %w", err)
	}

	registry := counter.DefaultRegistry()
	for _, name := range cfg.Counters {
		if _, ok := registry.Lookup(name); !ok {
			logger.Warn("configured counter is not known and will be skipped", "counter", name, "known", registry.Names())
		}
	}

	prom := telemetry.NewProm()
	health := NewHealthStatus()
	return &Agent{
		cfg:       cfg,
		logger:    logger,
		hmc:       client,
		collector: collector.NewHostCollector(client, counter.NewProcessor(registry, logger), prom, logger),
		sink:      &healthSink{sink: sink, health: health},
		health:    health,
		prom:      prom,
	}, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting power-hmc-agent", "agent_id", a.cfg.AgentID, "hmc_url", a.cfg.HMCURL, "stream_mode", a.cfg.StreamMode)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("power-hmc-agent stopped")
	return nil
}

type systemLister interface {
	ManagedSystems(ctx context.Context) ([]hmc.ManagedSystem, error)
}

// resolveTargets returns the configured hosts, or every managed system the
// HMC knows about when none are configured.
func resolveTargets(ctx context.Context, hosts []config.Host, lister systemLister, logger *slog.Logger) ([]collector.Target, error) {
	if len(hosts) > 0 {
		out := make([]collector.Target, 0, len(hosts))
		for _, h := range hosts {
			out = append(out, collector.Target{UUID: h.UUID, Name: h.Name})
		}
		return out, nil
	}

	systems, err := lister.ManagedSystems(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover managed systems: %w", err)
	}
	out := make([]collector.Target, 0, len(systems))
	for _, sys := range systems {
		if sys.UUID == "" {
			continue
		}
		logger.Info("discovered managed system", "host", sys.UUID, "name", sys.Name, "state", sys.State)
		out = append(out, collector.Target{UUID: sys.UUID, Name: sys.Name})
	}
	if len(out) == 0 {
		return nil, errors.New("hmc reports no managed systems")
	}
	return out, nil
}

func (a *Agent) targetUUIDs() []string {
	out := make([]string, 0, len(a.targets))
	for _, t := range a.targets {
		out = append(out, t.UUID)
	}
	return out
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}

type healthSink struct {
	sink   stream.Sink
	health *HealthStatus
}

func (s *healthSink) SendHostCounters(ctx stream.Context, c model.HostCounters) error {
	err := s.sink.SendHostCounters(ctx, c)
	if err != nil {
		s.health.SetStreamConnected(false)
		return err
	}
	s.health.SetStreamConnected(true)
	s.health.MarkMetricsAvailable(c.HostUUID)
	return nil
}

func (s *healthSink) SendHostStatus(ctx stream.Context, st model.HostStatus) error {
	err := s.sink.SendHostStatus(ctx, st)
	if err != nil {
		s.health.SetStreamConnected(false)
		return err
	}
	s.health.SetStreamConnected(true)
	if !st.MetricsAvailable {
		s.health.MarkMetricsUnavailable(st.HostUUID)
	}
	return nil
}

func (s *healthSink) Close(ctx stream.Context) error {
	return s.sink.Close(ctx)
}
