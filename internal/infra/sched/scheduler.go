package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron specs. Overlapping runs of the same job are
// skipped, and every run gets the scheduler's context.
type Scheduler struct {
	cron    *cron.Cron
	log     *zerolog.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a scheduler whose runs are bounded by timeout (0 means
// unbounded).
func NewScheduler(timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	l := logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: &l}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     &l,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under name on spec, e.g. "@every 15m" or "*/5 * * * *".
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Dur("duration", time.Since(start)).Msg("scheduled job failed")
			return
		}
		s.log.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("scheduled job done")
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels running jobs and waits for them, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{ log *zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
