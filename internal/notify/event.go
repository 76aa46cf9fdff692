package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"absen/internal/model"
	"absen/internal/queue"
)

// Event kinds, also used as queue message types.
const (
	KindNewContent        = "new_content"
	KindCheckInSuccess    = "checkin_success"
	KindCheckInUnverified = "checkin_unverified"
	KindSweepSummary      = "sweep_summary"
	KindError             = "error"
	KindRegistered        = "registered"
	KindSessionExpired    = "session_expired"
)

// Event is the wire form of every notification.
type Event struct {
	AccountID   string             `json:"account_id"`
	Course      *model.Course      `json:"course,omitempty"`
	Item        *model.ContentItem `json:"item,omitempty"`
	Timestamp   string             `json:"timestamp,omitempty"`
	NewCount    int                `json:"new_count,omitempty"`
	Confirmed   int                `json:"confirmed,omitempty"`
	Message     string             `json:"message,omitempty"`
	LoginID     string             `json:"login_id,omitempty"`
	StudentName string             `json:"student_name,omitempty"`
	CourseCount int                `json:"course_count,omitempty"`
}

// QueueSink publishes events to a queue for an out-of-process deliverer.
type QueueSink struct {
	q   queue.Queue
	now func() time.Time
}

// NewQueueSink builds a publishing sink.
func NewQueueSink(q queue.Queue) *QueueSink {
	return &QueueSink{q: q, now: func() time.Time { return time.Now().UTC() }}
}

func (s *QueueSink) publish(ctx context.Context, kind string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encode %s: %w", kind, err)
	}
	return s.q.Publish(ctx, queue.Message{ID: uuid.NewString(), Type: kind, Time: s.now(), Body: body})
}

func (s *QueueSink) NotifyNewContent(ctx context.Context, accountID string, course model.Course, item model.ContentItem) error {
	return s.publish(ctx, KindNewContent, Event{AccountID: accountID, Course: &course, Item: &item})
}

func (s *QueueSink) NotifyCheckInSuccess(ctx context.Context, accountID string, course model.Course, item model.ContentItem, timestamp string) error {
	return s.publish(ctx, KindCheckInSuccess, Event{AccountID: accountID, Course: &course, Item: &item, Timestamp: timestamp})
}

func (s *QueueSink) NotifyCheckInUnverified(ctx context.Context, accountID string, course model.Course, item model.ContentItem) error {
	return s.publish(ctx, KindCheckInUnverified, Event{AccountID: accountID, Course: &course, Item: &item})
}

func (s *QueueSink) NotifySweepSummary(ctx context.Context, accountID string, newCount, confirmedCount int) error {
	return s.publish(ctx, KindSweepSummary, Event{AccountID: accountID, NewCount: newCount, Confirmed: confirmedCount})
}

func (s *QueueSink) NotifyError(ctx context.Context, accountID, message string) error {
	return s.publish(ctx, KindError, Event{AccountID: accountID, Message: message})
}

func (s *QueueSink) NotifyRegistered(ctx context.Context, account model.Account, courseCount int) error {
	return s.publish(ctx, KindRegistered, Event{
		AccountID:   account.ID,
		LoginID:     account.LoginID,
		StudentName: account.StudentName,
		CourseCount: courseCount,
	})
}

func (s *QueueSink) NotifySessionExpired(ctx context.Context, accountID string) error {
	return s.publish(ctx, KindSessionExpired, Event{AccountID: accountID})
}

// Dispatch replays a queued message onto sink.
func Dispatch(ctx context.Context, sink Sink, msg queue.Message) error {
	var ev Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return fmt.Errorf("notify: decode %s %s: %w", msg.Type, msg.ID, err)
	}
	var course model.Course
	if ev.Course != nil {
		course = *ev.Course
	}
	var item model.ContentItem
	if ev.Item != nil {
		item = *ev.Item
	}
	switch msg.Type {
	case KindNewContent:
		return sink.NotifyNewContent(ctx, ev.AccountID, course, item)
	case KindCheckInSuccess:
		return sink.NotifyCheckInSuccess(ctx, ev.AccountID, course, item, ev.Timestamp)
	case KindCheckInUnverified:
		return sink.NotifyCheckInUnverified(ctx, ev.AccountID, course, item)
	case KindSweepSummary:
		return sink.NotifySweepSummary(ctx, ev.AccountID, ev.NewCount, ev.Confirmed)
	case KindError:
		return sink.NotifyError(ctx, ev.AccountID, ev.Message)
	case KindRegistered:
		return sink.NotifyRegistered(ctx, model.Account{ID: ev.AccountID, LoginID: ev.LoginID, StudentName: ev.StudentName}, ev.CourseCount)
	case KindSessionExpired:
		return sink.NotifySessionExpired(ctx, ev.AccountID)
	default:
		return fmt.Errorf("notify: unknown event type %q", msg.Type)
	}
}

// Relay drains q onto sink until ctx ends or the queue closes.
func Relay(ctx context.Context, q queue.Queue, sink Sink, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	ch, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("notify: consume: %w", err)
	}
	for msg := range ch {
		if err := Dispatch(ctx, sink, msg); err != nil {
			log.Warn("relay dispatch failed", zap.String("id", msg.ID), zap.String("type", msg.Type), zap.Error(err))
		}
	}
	return ctx.Err()
}
