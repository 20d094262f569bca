// Package scheduler runs the periodic ledger jobs on cron schedules.
// A Redis advisory lock keeps replicas from running the same job at once.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"anoa.com/gamiledger/pkg/apperror"
	"anoa.com/gamiledger/pkg/logger"
	"anoa.com/gamiledger/pkg/marker"
	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"
)

// Job is one periodic task. Jobs with an empty schedule can only be run
// on demand through RunByName.
type Job interface {
	Name() string
	Schedule() string
	Execute(ctx context.Context) error
}

type Options struct {
	LockTTL  time.Duration
	MaxTries uint
	// Backoff builds the retry policy for one run. Defaults to exponential.
	Backoff func() backoff.BackOff
	// Location decides when cron expressions fire.
	Location *time.Location
}

type Scheduler struct {
	cron  *cron.Cron
	jobs  []Job
	locks *marker.Store
	opts  Options
	log   *logger.Logger
}

func NewScheduler(locks *marker.Store, log *logger.Logger, opts Options) *Scheduler {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = 3
	}
	if opts.Backoff == nil {
		opts.Backoff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		cron:  cron.New(cron.WithLocation(opts.Location)),
		jobs:  make([]Job, 0),
		locks: locks,
		opts:  opts,
		log:   log.With("component", "scheduler"),
	}
}

// RegisterJob adds a job. Jobs with a schedule are put on the cron.
func (s *Scheduler) RegisterJob(job Job) error {
	schedule := job.Schedule()
	if schedule == "" {
		s.jobs = append(s.jobs, job)
		s.log.Info("registered on-demand job", "job", job.Name())
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(context.Background(), job); err != nil {
			s.log.Error("scheduled job failed", "job", job.Name(), "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %s with %q: %w", job.Name(), schedule, err)
	}
	s.jobs = append(s.jobs, job)
	s.log.Info("scheduled job", "job", job.Name(), "cron", schedule)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop halts the cron and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
	s.log.Info("scheduler stopped")
}

// RunByName runs a registered job now, under the same lock and retry policy.
func (s *Scheduler) RunByName(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name() == name {
			return s.run(ctx, job)
		}
	}
	return fmt.Errorf("job %q: %w", name, apperror.ErrNotFound)
}

func (s *Scheduler) Names() []string {
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name()
	}
	return names
}

// run takes the job's lock and retries transient store failures. A run that
// finds the lock held is skipped, not failed.
func (s *Scheduler) run(ctx context.Context, job Job) error {
	log := s.log.With("job", job.Name())

	unlock, ok, err := s.locks.Lock(ctx, job.Name(), s.opts.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("job already running elsewhere, skipping")
		return nil
	}
	defer unlock()

	started := time.Now()
	log.Info("job started")

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := job.Execute(ctx)
		if err != nil && !apperror.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(s.opts.Backoff()),
		backoff.WithMaxTries(s.opts.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn("job failed, retrying", "error", err, "wait", wait)
		}),
	)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name(), err)
	}

	log.Info("job completed", "took", time.Since(started))
	return nil
}
