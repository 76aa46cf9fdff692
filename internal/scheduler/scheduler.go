// Package scheduler runs the periodic sync sweep over every active account.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"absen/internal/metrics"
	"absen/internal/model"
	"absen/internal/notify"
	"absen/internal/portal"
	"absen/internal/snapshot"
)

// Portal is the slice of the portal client the sweep uses.
type Portal interface {
	Login(ctx context.Context, loginID, password string) (portal.LoginResult, error)
	ListCourses(ctx context.Context, session *model.Session) ([]model.Course, portal.Cookies, error)
	ListContentItems(ctx context.Context, session *model.Session, courseContentID string) ([]model.ContentItem, portal.Cookies, error)
	CheckIn(ctx context.Context, session *model.Session, link string) (portal.CheckIn, portal.Cookies, error)
	CheckAttendance(ctx context.Context, session *model.Session, rosterLink, loginID string) (model.Attendance, portal.Cookies, error)
}

// Accounts is the slice of the credential store the sweep uses.
type Accounts interface {
	ActiveIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (model.Account, error)
	Update(ctx context.Context, id string, mutate func(*model.Account)) (model.Account, error)
	IncrementStat(ctx context.Context, id string, stat model.Stat) (model.Stats, error)
	UpdateSession(ctx context.Context, id string, session *model.Session) error
}

// Config holds the sweep cadence and pauses.
type Config struct {
	Interval         time.Duration
	AccountDelay     time.Duration
	CourseDelay      time.Duration
	CheckInDelay     time.Duration
	VerifyFirstDelay time.Duration
	VerifyDelay      time.Duration
	VerifyAttempts   int
	// AccountTimeout bounds one account's processing, which keeps running
	// after shutdown is requested.
	AccountTimeout time.Duration
}

// DefaultConfig mirrors the portal's tolerated request rate.
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Minute,
		AccountDelay:     2 * time.Second,
		CourseDelay:      time.Second,
		CheckInDelay:     2 * time.Second,
		VerifyFirstDelay: 3 * time.Second,
		VerifyDelay:      5 * time.Second,
		VerifyAttempts:   3,
		AccountTimeout:   5 * time.Minute,
	}
}

// Scheduler drives sweeps. At most one sweep runs at a time; triggers that
// arrive while one is running are dropped.
type Scheduler struct {
	cfg       Config
	portal    Portal
	accounts  Accounts
	snapshots snapshot.Store
	sink      notify.Sink
	running   atomic.Bool
	wg        sync.WaitGroup
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	log       *zap.Logger
}

// New builds a scheduler. The sink is wrapped so that delivery failures never
// reach the sweep.
func New(cfg Config, p Portal, accounts Accounts, snapshots snapshot.Store, sink notify.Sink, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.VerifyAttempts <= 0 {
		cfg.VerifyAttempts = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.AccountTimeout <= 0 {
		cfg.AccountTimeout = 5 * time.Minute
	}
	return &Scheduler{
		cfg:       cfg,
		portal:    p,
		accounts:  accounts,
		snapshots: snapshots,
		sink:      notify.NewSafe(sink, log),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     portal.Sleep,
		log:       log.With(zap.String("component", "scheduler")),
	}
}

// Run sweeps once immediately and then on every interval until ctx ends. It
// returns after the in-flight sweep has finished its current account.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.Interval))
	s.Trigger(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping, waiting for current sweep")
			s.wg.Wait()
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger starts a sweep in the background unless one is already running, in
// which case the trigger is dropped. It reports whether a sweep started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		s.log.Info("sweep still running, skipping this tick")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		_, _ = s.sweep(ctx)
	}()
	return true
}

// Running reports whether a sweep is in progress.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Wait blocks until any in-flight sweep returns.
func (s *Scheduler) Wait() { s.wg.Wait() }

// SweepOnce runs one sweep synchronously, honouring the same guard as Trigger.
// ok is false when another sweep was already running.
func (s *Scheduler) SweepOnce(ctx context.Context) (report Report, ok bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		return Report{}, false, nil
	}
	defer s.running.Store(false)
	report, err = s.sweep(ctx)
	return report, true, err
}

// Report sums up one sweep.
type Report struct {
	Accounts  int
	Processed int
	Failed    int
	NewItems  int
	Confirmed int
}

func (s *Scheduler) sweep(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var report Report
	ids, err := s.accounts.ActiveIDs(ctx)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("aborted").Inc()
		s.log.Error("list active accounts", zap.Error(err))
		return report, err
	}
	report.Accounts = len(ids)
	s.log.Info("sweep started", zap.Int("accounts", len(ids)))

	for i, id := range ids {
		if ctx.Err() != nil {
			s.log.Info("shutdown requested, skipping remaining accounts", zap.Int("remaining", len(ids)-i))
			break
		}
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.AccountDelay); err != nil {
				break
			}
		}

		// The current account runs to completion even if shutdown arrives.
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.AccountTimeout)
		res, err := s.processAccount(actx, id)
		cancel()

		report.NewItems += res.newItems
		report.Confirmed += res.confirmed
		if err != nil {
			report.Failed++
			metrics.AccountsProcessedTotal.WithLabelValues("failed").Inc()
			s.log.Warn("account sync failed", zap.String("account_id", id), zap.Error(err))
			continue
		}
		report.Processed++
		metrics.AccountsProcessedTotal.WithLabelValues("ok").Inc()
	}

	result := "completed"
	if ctx.Err() != nil {
		result = "interrupted"
	}
	metrics.SweepsTotal.WithLabelValues(result).Inc()
	s.log.Info("sweep finished",
		zap.String("result", result),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Int("new_items", report.NewItems),
		zap.Int("confirmed", report.Confirmed),
		zap.Duration("took", time.Since(start)))
	return report, nil
}
