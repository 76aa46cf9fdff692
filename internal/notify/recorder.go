package notify

import (
	"context"
	"sync"

	"absen/internal/model"
)

// Recorded is one event captured by a Recorder.
type Recorded struct {
	Kind  string
	Event Event
}

// Recorder keeps every event in memory. Err, when set, is returned from
// every call after recording.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	Err    error
}

func (r *Recorder) add(kind string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Kind: kind, Event: ev})
	return r.Err
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Kind returns the recorded events of one kind.
func (r *Recorder) Kind(kind string) []Event {
	var out []Event
	for _, rec := range r.Events() {
		if rec.Kind == kind {
			out = append(out, rec.Event)
		}
	}
	return out
}

func (r *Recorder) NotifyNewContent(_ context.Context, accountID string, course model.Course, item model.ContentItem) error {
	return r.add(KindNewContent, Event{AccountID: accountID, Course: &course, Item: &item})
}

func (r *Recorder) NotifyCheckInSuccess(_ context.Context, accountID string, course model.Course, item model.ContentItem, timestamp string) error {
	return r.add(KindCheckInSuccess, Event{AccountID: accountID, Course: &course, Item: &item, Timestamp: timestamp})
}

func (r *Recorder) NotifyCheckInUnverified(_ context.Context, accountID string, course model.Course, item model.ContentItem) error {
	return r.add(KindCheckInUnverified, Event{AccountID: accountID, Course: &course, Item: &item})
}

func (r *Recorder) NotifySweepSummary(_ context.Context, accountID string, newCount, confirmedCount int) error {
	return r.add(KindSweepSummary, Event{AccountID: accountID, NewCount: newCount, Confirmed: confirmedCount})
}

func (r *Recorder) NotifyError(_ context.Context, accountID, message string) error {
	return r.add(KindError, Event{AccountID: accountID, Message: message})
}

func (r *Recorder) NotifyRegistered(_ context.Context, account model.Account, courseCount int) error {
	return r.add(KindRegistered, Event{AccountID: account.ID, LoginID: account.LoginID, StudentName: account.StudentName, CourseCount: courseCount})
}

func (r *Recorder) NotifySessionExpired(_ context.Context, accountID string) error {
	return r.add(KindSessionExpired, Event{AccountID: accountID})
}
