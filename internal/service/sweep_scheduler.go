package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrSchedulerRunning indicates Start was called twice.
var ErrSchedulerRunning = errors.New("sweep scheduler already running")

// SweepScheduler ticks a Sweeper on a cron schedule.
type SweepScheduler struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewSweepScheduler accepts any robfig/cron spec, including descriptors
// such as "@every 1m". timeout bounds one cycle; zero means unbounded.
func NewSweepScheduler(sweeper Sweeper, schedule string, timeout time.Duration, logger zerolog.Logger) *SweepScheduler {
	return &SweepScheduler{
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger.With().Str("component", "sweep_scheduler").Logger(),
	}
}

// Start registers the job and starts ticking in the background.
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrSchedulerRunning
	}

	cronLogger := cronLogAdapter{logger: s.logger}
	scheduler := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	), cron.WithLogger(cronLogger))

	baseCtx, cancel := context.WithCancel(ctx)
	if _, err := scheduler.AddFunc(s.schedule, func() { s.tick(baseCtx) }); err != nil {
		cancel()
		return err
	}

	s.cron = scheduler
	s.cancel = cancel
	scheduler.Start()

	entries := scheduler.Entries()
	if len(entries) > 0 {
		s.logger.Info().Str("schedule", s.schedule).Time("next_run", entries[0].Next).Msg("sweep scheduler started")
	}
	return nil
}

// Stop halts ticking and waits for an in-flight cycle, bounded by ctx.
func (s *SweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	scheduler := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	if scheduler == nil {
		return nil
	}

	done := scheduler.Stop()
	select {
	case <-done.Done():
		cancel()
		s.logger.Info().Msg("sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (s *SweepScheduler) tick(ctx context.Context) {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.sweeper.RunOnce(runCtx); err != nil {
		s.logger.Error().Err(err).Msg("scheduled sweep failed")
	}
}

// cronLogAdapter routes robfig/cron's logger into zerolog.
type cronLogAdapter struct {
	logger zerolog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
