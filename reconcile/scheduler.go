// Package reconcile auto-closes OT sessions that were never ended.
//
// A run scans every attendance record in a multi-day lookback window and
// moves overdue in_progress sessions to PENDING_REVIEW with zero hours. Runs
// are serialized; the next tick retries anything a failed run left behind.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"otengine/repository"
	"otengine/timeutil"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSchedule      = "@every 1h"
	DefaultLookbackDays  = 3
	DefaultFlatThreshold = 5 * time.Hour
	DefaultEarlyLead     = 5 * time.Minute
	DefaultConcurrency   = 8
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("reconciliation run already in progress")

type LockChecker interface {
	IsLocked(ctx context.Context, date time.Time) bool
}

type Options struct {
	Schedule       string
	LookbackDays   int
	FlatThreshold  time.Duration
	EarlyLead      time.Duration
	Concurrency    int
	DefaultCheckIn timeutil.Clock
	Location       *time.Location
	Now            func() time.Time
	Logger         logrus.FieldLogger
}

type Scheduler struct {
	repo  repository.Repository
	locks LockChecker
	opts  Options
	log   logrus.FieldLogger

	running sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	catchUp sync.WaitGroup
}

func NewScheduler(repo repository.Repository, locks LockChecker, opts Options) *Scheduler {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}
	if opts.FlatThreshold <= 0 {
		opts.FlatThreshold = DefaultFlatThreshold
	}
	if opts.EarlyLead <= 0 {
		opts.EarlyLead = DefaultEarlyLead
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.DefaultCheckIn == (timeutil.Clock{}) {
		opts.DefaultCheckIn = timeutil.Clock{Hour: 9}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Scheduler{
		repo:  repo,
		locks: locks,
		opts:  opts,
		log:   opts.Logger.WithField("component", "reconcile"),
	}
}

// Start registers the periodic tick and kicks off the startup catch-up run in
// the background. Runs ignore cancellation of ctx once they have begun.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("reconcile scheduler already started")
	}

	runCtx := context.WithoutCancel(ctx)
	cronLog := cron.PrintfLogger(s.log)
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(s.opts.Schedule, func() { s.tick(runCtx, "schedule") }); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", s.opts.Schedule, err)
	}

	s.catchUp.Add(1)
	go func() {
		defer s.catchUp.Done()
		s.tick(runCtx, "startup")
	}()

	c.Start()
	s.cron = c
	s.log.WithFields(logrus.Fields{
		"schedule":      s.opts.Schedule,
		"lookback_days": s.opts.LookbackDays,
	}).Info("reconcile scheduler started")
	return nil
}

// Stop halts the tick and waits for any active run to finish its batch.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.catchUp.Wait()
	s.log.Info("reconcile scheduler stopped")
}

// RunNow performs one run at the current time. It is the manual trigger.
func (s *Scheduler) RunNow(ctx context.Context) (RunSummary, error) {
	return s.RunAt(ctx, s.opts.Now())
}

// RunAt performs one run as if the clock read now. It returns
// ErrRunInProgress instead of waiting when another run holds the guard.
// Cancelling ctx does not interrupt a run once it has started.
func (s *Scheduler) RunAt(ctx context.Context, now time.Time) (RunSummary, error) {
	if !s.running.TryLock() {
		return RunSummary{}, ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.run(context.WithoutCancel(ctx), now.In(s.opts.Location))
}

func (s *Scheduler) tick(ctx context.Context, trigger string) {
	summary, err := s.RunNow(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.log.WithField("trigger", trigger).Info("reconcile run skipped; previous run still active")
	case err != nil:
		s.log.WithError(err).WithFields(logrus.Fields{
			"trigger": trigger,
			"run_id":  summary.RunID,
		}).Error("reconcile run aborted; next tick will retry")
	}
}
