// Package scheduler runs the recurring billing and invoicing jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pik-ry/laskutin/internal/metrics"
	"github.com/pik-ry/laskutin/pkg/logger"
)

// Job is one recurring unit of work.
type Job struct {
	// Name labels log lines and metrics.
	Name string
	// Spec is a standard five-field cron expression.
	Spec string
	// Run does the work. Its context is cancelled on Stop.
	Run func(ctx context.Context) error
}

// Scheduler drives registered jobs on their cron schedules. It
// implements the system service interface so the application manager
// can own its lifecycle.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	jobs   int
	log    *logger.Logger
}

// New builds an empty scheduler.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Add registers a job. An empty spec skips the job, so settings disable
// a job by leaving its expression out.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		s.log.WithField("job", job.Name).Debug("job disabled, no schedule")
		return nil
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: no run function", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { s.runJob(job) }); err != nil {
		return fmt.Errorf("job %s: bad schedule %q: %w", job.Name, job.Spec, err)
	}
	s.jobs++
	s.log.WithFields(map[string]interface{}{
		"job":      job.Name,
		"schedule": job.Spec,
	}).Info("job scheduled")
	return nil
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int { return s.jobs }

func (s *Scheduler) runJob(job Job) {
	start := time.Now()
	log := s.log.WithField("job", job.Name)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordJobRun(job.Name, time.Since(start), fmt.Errorf("panic: %v", r))
			log.WithField("panic", r).Error("job panicked")
		}
	}()

	log.Info("job started")
	err := job.Run(s.ctx)
	duration := time.Since(start)
	metrics.RecordJobRun(job.Name, duration, err)
	if err != nil {
		log.WithError(err).WithField("duration", duration.String()).Error("job failed")
		return
	}
	log.WithField("duration", duration.String()).Info("job finished")
}

// Name implements the system service interface.
func (s *Scheduler) Name() string { return "scheduler" }

// Start begins firing jobs on their schedules.
func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	s.log.WithField("jobs", s.jobs).Info("scheduler started")
	return nil
}

// Stop cancels job contexts and waits for running jobs, giving up when
// ctx expires first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}
