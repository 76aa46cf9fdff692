package model

import (
	"sort"
	"strings"
	"time"
)

// Stats are the cumulative per-account counters.
type Stats struct {
	TotalChecks    int `json:"total_checks"`
	TotalAbsences  int `json:"total_absences"`
	FailedAttempts int `json:"failed_attempts"`
}

// Stat names one counter in Stats.
type Stat string

const (
	StatChecks   Stat = "total_checks"
	StatAbsences Stat = "total_absences"
	StatFailed   Stat = "failed_attempts"
)

// Increment bumps the named counter by one.
func (s *Stats) Increment(stat Stat) {
	switch stat {
	case StatChecks:
		s.TotalChecks++
	case StatAbsences:
		s.TotalAbsences++
	case StatFailed:
		s.FailedAttempts++
	}
}

// Account is one registered portal account. Password and Session are plaintext
// in memory only; the credential store seals them before they reach storage.
type Account struct {
	ID           string     `json:"id"`
	Username     string     `json:"username,omitempty"`
	LoginID      string     `json:"login_id"`
	StudentName  string     `json:"student_name,omitempty"`
	Password     string     `json:"-"`
	Session      *Session   `json:"-"`
	Active       bool       `json:"active"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	LastCheck    *time.Time `json:"last_check,omitempty"`
	Stats        Stats      `json:"stats"`
}

// Session is the cookie set a portal login produced plus the user agent that
// obtained it.
type Session struct {
	Cookies   map[string]string `json:"cookies"`
	UserAgent string            `json:"user_agent"`
}

// NewSession returns an empty session bound to userAgent.
func NewSession(userAgent string) *Session {
	return &Session{Cookies: map[string]string{}, UserAgent: userAgent}
}

// Merge adds or overwrites cookies from other. Nil receivers are not allowed.
func (s *Session) Merge(other map[string]string) {
	if s.Cookies == nil {
		s.Cookies = map[string]string{}
	}
	for k, v := range other {
		s.Cookies[k] = v
	}
}

// Empty reports whether the session carries no cookie.
func (s *Session) Empty() bool {
	return s == nil || len(s.Cookies) == 0
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := NewSession(s.UserAgent)
	out.Merge(s.Cookies)
	return out
}

// Header renders the Cookie header value with names sorted for stable output.
func (s *Session) Header() string {
	if s.Empty() {
		return ""
	}
	names := make([]string, 0, len(s.Cookies))
	for name := range s.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+s.Cookies[name])
	}
	return strings.Join(parts, "; ")
}

// CourseLinks are the absolute action links of a course block.
type CourseLinks struct {
	Content    string `json:"content,omitempty"`
	Assignment string `json:"assignment,omitempty"`
	Discussion string `json:"discussion,omitempty"`
}

// Course is one enrolled class scraped from the listing page.
type Course struct {
	ContentID  string      `json:"content_id,omitempty"`
	Semester   string      `json:"semester"`
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Credits    string      `json:"credits"`
	Class      string      `json:"class"`
	Instructor string      `json:"instructor"`
	Contact    string      `json:"contact"`
	Links      CourseLinks `json:"links"`
}

// Key identifies the course in snapshots. Courses without a content listing
// have no key.
func (c Course) Key() string {
	return c.ContentID
}

// ContentItem is one published unit inside a course.
type ContentItem struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Topic            string    `json:"topic"`
	AttendanceWindow string    `json:"attendance_window"`
	DiscussionWindow string    `json:"discussion_window"`
	Manual           bool      `json:"manual"`
	Open             bool      `json:"open"`
	CheckInLink      string    `json:"check_in_link,omitempty"`
	RosterLink       string    `json:"roster_link,omitempty"`
	SeenAt           time.Time `json:"seen_at"`
}

// Attendance is the result of reading a roster for one login ID.
type Attendance struct {
	Present   bool   `json:"present"`
	Timestamp string `json:"timestamp,omitempty"`
}

// SnapshotEntry is one remembered content item.
type SnapshotEntry struct {
	ItemID    string    `json:"item_id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotFrom builds the snapshot entries for an observed item list,
// preserving order.
func SnapshotFrom(items []ContentItem) []SnapshotEntry {
	out := make([]SnapshotEntry, 0, len(items))
	for _, it := range items {
		out = append(out, SnapshotEntry{ItemID: it.ID, Title: it.Title, Timestamp: it.SeenAt})
	}
	return out
}
