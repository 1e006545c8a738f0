// Package scheduler runs the periodic maintenance jobs: the overdue-task
// sweep and the retry pass over FAILED settlements.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// JobFunc is one run of a job. The context is cancelled when the scheduler stops.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a cron runner. A job never overlaps with itself.
type Scheduler struct {
	cron    *cron.Cron
	log     logrus.FieldLogger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// New creates a Scheduler. Each run is bounded by timeout.
func New(log logrus.FieldLogger, timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
	}
}

// Add registers fn under spec ("@every 5m", "*/10 * * * *"). An empty spec
// or "off" leaves the job disabled.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if spec == "" || spec == "off" {
		s.log.WithField("job", name).Info("job disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.wrap(name, fn)); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.log.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("job scheduled")
	return nil
}

func (s *Scheduler) wrap(name string, fn JobFunc) func() {
	return func() {
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		start := time.Now()
		logger := s.log.WithField("job", name)
		if err := fn(ctx); err != nil {
			logger.WithError(err).Error("job failed")
			return
		}
		logger.WithField("duration", time.Since(start)).Debug("job finished")
	}
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}
