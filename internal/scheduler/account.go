package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"absen/internal/metrics"
	"absen/internal/model"
	"absen/internal/portal"
	"absen/internal/snapshot"
)

// Outcome is how one new content item ended.
type Outcome string

const (
	// OutcomeSkipped: manual attendance, closed window or no check-in link.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeConfirmed: check-in done and seen on the roster.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeUnverified: check-in done but the roster never showed it. Not a failure.
	OutcomeUnverified Outcome = "unverified"
	// OutcomeFailed: the check-in request itself failed.
	OutcomeFailed Outcome = "failed"
)

type accountResult struct {
	newItems  int
	confirmed int
}

// run carries one account's state through a sweep. The session is owned by
// the run; every portal call merges the cookies it returns.
type run struct {
	acc     model.Account
	session *model.Session
	dirty   bool
	log     *zap.Logger
}

func (r *run) merge(c portal.Cookies) {
	if len(c) == 0 {
		return
	}
	r.session.Merge(c)
	r.dirty = true
}

func (s *Scheduler) processAccount(ctx context.Context, id string) (accountResult, error) {
	var res accountResult
	log := s.log.With(zap.String("account_id", id))

	acc, err := s.accounts.Get(ctx, id)
	if err != nil {
		s.sink.NotifyError(ctx, id, fmt.Sprintf("cannot load account: %v", err))
		return res, fmt.Errorf("load account: %w", err)
	}
	if !acc.Active {
		log.Info("account deactivated since listing, skipping")
		return res, nil
	}

	acc, err = s.accounts.Update(ctx, id, func(a *model.Account) {
		now := s.now()
		a.LastCheck = &now
		a.Stats.Increment(model.StatChecks)
	})
	if err != nil {
		return res, fmt.Errorf("mark check: %w", err)
	}

	r := &run{acc: acc, session: acc.Session.Clone(), log: log.With(zap.String("login_id", acc.LoginID))}
	if r.session == nil {
		r.session = &model.Session{}
	}

	courses, err := s.listCourses(ctx, r)
	if err != nil {
		if _, serr := s.accounts.IncrementStat(ctx, id, model.StatFailed); serr != nil {
			r.log.Warn("record failed attempt", zap.Error(serr))
		}
		s.sink.NotifyError(ctx, id, fmt.Sprintf("cannot list courses: %v", err))
		return res, err
	}
	r.log.Info("courses listed", zap.Int("count", len(courses)))

	first := true
	for _, course := range courses {
		if course.Key() == "" {
			continue
		}
		if !first {
			if err := s.sleep(ctx, s.cfg.CourseDelay); err != nil {
				return res, err
			}
		}
		first = false

		newItems, confirmed, err := s.processCourse(ctx, r, course)
		res.newItems += newItems
		res.confirmed += confirmed
		if err != nil {
			r.log.Warn("course sync failed", zap.String("course", course.Name), zap.String("code", course.Code), zap.Error(err))
			s.sink.NotifyError(ctx, id, fmt.Sprintf("course %s (%s): %v", course.Name, course.Code, err))
		}
	}

	if r.dirty {
		session := r.session.Clone()
		if _, err := s.accounts.Update(ctx, id, func(a *model.Account) { a.Session = session }); err != nil {
			r.log.Warn("persist session cookies", zap.Error(err))
		}
	}

	if res.newItems > 0 {
		s.sink.NotifySweepSummary(ctx, id, res.newItems, res.confirmed)
	}
	r.log.Info("account synced", zap.Int("new_items", res.newItems), zap.Int("confirmed", res.confirmed))
	return res, nil
}

// listCourses tries the stored session and falls back to exactly one fresh
// login followed by one retry.
func (s *Scheduler) listCourses(ctx context.Context, r *run) ([]model.Course, error) {
	courses, cookies, err := s.portal.ListCourses(ctx, r.session)
	r.merge(cookies)
	if err == nil {
		return courses, nil
	}
	r.log.Info("course listing failed, logging in again", zap.Error(err))
	if errors.Is(err, portal.ErrSessionInvalid) && !r.session.Empty() {
		s.sink.NotifySessionExpired(ctx, r.acc.ID)
	}

	login, err := s.portal.Login(ctx, r.acc.LoginID, r.acc.Password)
	if err != nil {
		return nil, fmt.Errorf("re-login: %w", err)
	}
	r.session = login.Session.Clone()
	r.dirty = false
	if err := s.accounts.UpdateSession(ctx, r.acc.ID, r.session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	if login.StudentName != "" && r.acc.StudentName == "" {
		name := login.StudentName
		if _, err := s.accounts.Update(ctx, r.acc.ID, func(a *model.Account) { a.StudentName = name }); err != nil {
			r.log.Warn("store student name", zap.Error(err))
		}
	}

	courses, cookies, err = s.portal.ListCourses(ctx, r.session)
	r.merge(cookies)
	if err != nil {
		return nil, fmt.Errorf("list courses after re-login: %w", err)
	}
	return courses, nil
}

// processCourse diffs one course and handles its new items. The snapshot is
// written only when the listing was fetched and diffed.
func (s *Scheduler) processCourse(ctx context.Context, r *run, course model.Course) (newCount, confirmed int, err error) {
	items, cookies, err := s.portal.ListContentItems(ctx, r.session, course.Key())
	r.merge(cookies)
	if err != nil {
		return 0, 0, fmt.Errorf("list content: %w", err)
	}
	known, err := s.snapshots.Load(ctx, r.acc.ID, course.Key())
	if err != nil {
		return 0, 0, fmt.Errorf("load snapshot: %w", err)
	}

	fresh := snapshot.Diff(items, known)
	metrics.NewContentTotal.Add(float64(len(fresh)))
	for _, item := range fresh {
		if s.processItem(ctx, r, course, item) == OutcomeConfirmed {
			confirmed++
		}
	}

	if err := s.snapshots.Save(ctx, r.acc.ID, course.Key(), model.SnapshotFrom(items)); err != nil {
		return len(fresh), confirmed, fmt.Errorf("save snapshot: %w", err)
	}
	return len(fresh), confirmed, nil
}

func (s *Scheduler) processItem(ctx context.Context, r *run, course model.Course, item model.ContentItem) Outcome {
	log := r.log.With(zap.String("course", course.Name), zap.String("item_id", item.ID), zap.String("item", item.Title))
	s.sink.NotifyNewContent(ctx, r.acc.ID, course, item)

	if item.Manual || !item.Open || item.CheckInLink == "" {
		metrics.CheckInsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		log.Info("check-in not eligible", zap.Bool("manual", item.Manual), zap.Bool("open", item.Open))
		return OutcomeSkipped
	}

	outcome := s.checkIn(ctx, r, course, item, log)
	metrics.CheckInsTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (s *Scheduler) checkIn(ctx context.Context, r *run, course model.Course, item model.ContentItem, log *zap.Logger) Outcome {
	if err := s.sleep(ctx, s.cfg.CheckInDelay); err != nil {
		return OutcomeFailed
	}
	_, cookies, err := s.portal.CheckIn(ctx, r.session, item.CheckInLink)
	r.merge(cookies)
	if err != nil {
		log.Warn("check-in failed", zap.Error(err))
		s.sink.NotifyError(ctx, r.acc.ID, fmt.Sprintf("check-in %s / %s: %v", course.Name, item.Title, err))
		return OutcomeFailed
	}
	log.Info("check-in sent")

	if item.RosterLink == "" {
		log.Info("no roster link, cannot verify")
		s.sink.NotifyCheckInUnverified(ctx, r.acc.ID, course, item)
		return OutcomeUnverified
	}

	if err := s.sleep(ctx, s.cfg.VerifyFirstDelay); err != nil {
		return OutcomeUnverified
	}
	for attempt := 1; attempt <= s.cfg.VerifyAttempts; attempt++ {
		att, cookies, err := s.portal.CheckAttendance(ctx, r.session, item.RosterLink, r.acc.LoginID)
		r.merge(cookies)
		switch {
		case err != nil:
			log.Warn("roster read failed", zap.Int("attempt", attempt), zap.Error(err))
		case att.Present:
			if _, err := s.accounts.IncrementStat(ctx, r.acc.ID, model.StatAbsences); err != nil {
				log.Warn("record absence", zap.Error(err))
			}
			stamp := att.Timestamp
			if stamp == "" {
				stamp = s.now().Format("2006-01-02 15:04:05")
			}
			log.Info("check-in confirmed", zap.Int("attempt", attempt), zap.String("timestamp", stamp))
			s.sink.NotifyCheckInSuccess(ctx, r.acc.ID, course, item, stamp)
			return OutcomeConfirmed
		default:
			log.Info("not on roster yet", zap.Int("attempt", attempt))
		}
		if attempt < s.cfg.VerifyAttempts {
			if err := s.sleep(ctx, s.cfg.VerifyDelay); err != nil {
				break
			}
		}
	}

	s.sink.NotifyCheckInUnverified(ctx, r.acc.ID, course, item)
	return OutcomeUnverified
}
