package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"power-hmc-agent/internal/counter"
	"power-hmc-agent/internal/model"
	"power-hmc-agent/internal/stream"
	"power-hmc-agent/internal/telemetry"
)

// Target is a managed system the scheduler captures counters for.
type Target struct {
	UUID string
	Name string
}

type Capturer interface {
	Capture(ctx context.Context, hostUUID string, names []string, start, end *time.Time) (counter.Series, error)
}

type SchedulerOptions struct {
	AgentID      string
	Counters     []string
	Targets      []Target
	Interval     time.Duration
	Window       time.Duration
	ErrorBackoff time.Duration
	Prom         *telemetry.Prom
	// OnCapture is called after every capture whose frame reached the sink.
	OnCapture func(hostUUID string, at time.Time)
}

type Scheduler struct {
	logger   *slog.Logger
	capturer Capturer
	sink     stream.Sink
	opts     SchedulerOptions
	now      func() time.Time
}

func NewScheduler(logger *slog.Logger, capturer Capturer, sink stream.Sink, opts SchedulerOptions) *Scheduler {
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Window <= 0 {
		opts.Window = opts.Interval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		logger:   logger,
		capturer: capturer,
		sink:     sink,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run starts one capture loop per target and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.opts.Targets) == 0 {
		return errors.New("scheduler: no managed systems to capture")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.opts.Targets {
		g.Go(func() error {
			return s.runHostLoop(gctx, t)
		})
	}
	return g.Wait()
}

func (s *Scheduler) runHostLoop(ctx context.Context, t Target) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	log := s.logger.With("host", t.UUID)
	lastEnd := s.now().Add(-s.opts.Window)

	end, err := s.captureAndSend(ctx, t, lastEnd)
	if err != nil {
		log.Warn("initial capture failed", "error", err)
	} else {
		lastEnd = end
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			end, err := s.captureAndSend(ctx, t, lastEnd)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error("capture/send failed", "error", err, "window_start", lastEnd)
				s.sleepWithContext(ctx, s.opts.ErrorBackoff)
				continue
			}
			lastEnd = end
		}
	}
}

// captureAndSend captures [start, now] for t and returns the window end on
// success.
func (s *Scheduler) captureAndSend(ctx context.Context, t Target, start time.Time) (time.Time, error) {
	end := s.now()
	series, err := s.capturer.Capture(ctx, t.UUID, s.opts.Counters, &start, &end)
	if err != nil {
		return time.Time{}, err
	}

	at := s.now()
	if len(series) == 0 {
		err = s.sink.SendHostStatus(ctx, model.HostStatus{
			AgentID:          s.opts.AgentID,
			HostUUID:         t.UUID,
			CheckedAtUnix:    at.Unix(),
			MetricsAvailable: false,
			Reason:           "no processed samples in window",
		})
	} else {
		err = s.sink.SendHostCounters(ctx, model.NewHostCounters(s.opts.AgentID, t.UUID, t.Name, start, end, at, series))
	}
	if err != nil {
		if s.opts.Prom != nil {
			s.opts.Prom.IncSendFailure()
		}
		return time.Time{}, err
	}
	if s.opts.OnCapture != nil {
		s.opts.OnCapture(t.UUID, at)
	}
	return end, nil
}

func (s *Scheduler) sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
