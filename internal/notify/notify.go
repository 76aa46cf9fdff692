// Package notify delivers sync events to the account owner.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"absen/internal/metrics"
	"absen/internal/model"
)

// Sink receives sync events. Implementations may fail; callers that must not
// be interrupted wrap them with Safe.
type Sink interface {
	NotifyNewContent(ctx context.Context, accountID string, course model.Course, item model.ContentItem) error
	NotifyCheckInSuccess(ctx context.Context, accountID string, course model.Course, item model.ContentItem, timestamp string) error
	NotifyCheckInUnverified(ctx context.Context, accountID string, course model.Course, item model.ContentItem) error
	NotifySweepSummary(ctx context.Context, accountID string, newCount, confirmedCount int) error
	NotifyError(ctx context.Context, accountID, message string) error
	NotifyRegistered(ctx context.Context, account model.Account, courseCount int) error
	NotifySessionExpired(ctx context.Context, accountID string) error
}

// Multi fans every event out to all sinks and joins their errors.
type Multi []Sink

func (m Multi) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyNewContent(ctx context.Context, accountID string, course model.Course, item model.ContentItem) error {
	return m.each(func(s Sink) error { return s.NotifyNewContent(ctx, accountID, course, item) })
}

func (m Multi) NotifyCheckInSuccess(ctx context.Context, accountID string, course model.Course, item model.ContentItem, timestamp string) error {
	return m.each(func(s Sink) error { return s.NotifyCheckInSuccess(ctx, accountID, course, item, timestamp) })
}

func (m Multi) NotifyCheckInUnverified(ctx context.Context, accountID string, course model.Course, item model.ContentItem) error {
	return m.each(func(s Sink) error { return s.NotifyCheckInUnverified(ctx, accountID, course, item) })
}

func (m Multi) NotifySweepSummary(ctx context.Context, accountID string, newCount, confirmedCount int) error {
	return m.each(func(s Sink) error { return s.NotifySweepSummary(ctx, accountID, newCount, confirmedCount) })
}

func (m Multi) NotifyError(ctx context.Context, accountID, message string) error {
	return m.each(func(s Sink) error { return s.NotifyError(ctx, accountID, message) })
}

func (m Multi) NotifyRegistered(ctx context.Context, account model.Account, courseCount int) error {
	return m.each(func(s Sink) error { return s.NotifyRegistered(ctx, account, courseCount) })
}

func (m Multi) NotifySessionExpired(ctx context.Context, accountID string) error {
	return m.each(func(s Sink) error { return s.NotifySessionExpired(ctx, accountID) })
}

// Safe isolates the caller from a sink: errors and panics are logged,
// counted and swallowed, so every method returns nil.
type Safe struct {
	next Sink
	log  *zap.Logger
}

// NewSafe wraps next.
func NewSafe(next Sink, log *zap.Logger) *Safe {
	if log == nil {
		log = zap.NewNop()
	}
	return &Safe{next: next, log: log.With(zap.String("component", "notify"))}
}

func (s *Safe) guard(kind, accountID string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(kind, "error").Inc()
			s.log.Warn("notification failed", zap.String("kind", kind), zap.String("account_id", accountID), zap.Error(err))
		} else {
			metrics.NotificationsTotal.WithLabelValues(kind, "sent").Inc()
		}
		err = nil
	}()
	return fn()
}

func (s *Safe) NotifyNewContent(ctx context.Context, accountID string, course model.Course, item model.ContentItem) error {
	return s.guard(KindNewContent, accountID, func() error { return s.next.NotifyNewContent(ctx, accountID, course, item) })
}

func (s *Safe) NotifyCheckInSuccess(ctx context.Context, accountID string, course model.Course, item model.ContentItem, timestamp string) error {
	return s.guard(KindCheckInSuccess, accountID, func() error {
		return s.next.NotifyCheckInSuccess(ctx, accountID, course, item, timestamp)
	})
}

func (s *Safe) NotifyCheckInUnverified(ctx context.Context, accountID string, course model.Course, item model.ContentItem) error {
	return s.guard(KindCheckInUnverified, accountID, func() error {
		return s.next.NotifyCheckInUnverified(ctx, accountID, course, item)
	})
}

func (s *Safe) NotifySweepSummary(ctx context.Context, accountID string, newCount, confirmedCount int) error {
	return s.guard(KindSweepSummary, accountID, func() error {
		return s.next.NotifySweepSummary(ctx, accountID, newCount, confirmedCount)
	})
}

func (s *Safe) NotifyError(ctx context.Context, accountID, message string) error {
	return s.guard(KindError, accountID, func() error { return s.next.NotifyError(ctx, accountID, message) })
}

func (s *Safe) NotifyRegistered(ctx context.Context, account model.Account, courseCount int) error {
	return s.guard(KindRegistered, account.ID, func() error { return s.next.NotifyRegistered(ctx, account, courseCount) })
}

func (s *Safe) NotifySessionExpired(ctx context.Context, accountID string) error {
	return s.guard(KindSessionExpired, accountID, func() error { return s.next.NotifySessionExpired(ctx, accountID) })
}
