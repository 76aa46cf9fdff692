package notify

import (
	"context"

	"go.uber.org/zap"

	"absen/internal/model"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink builds a log sink.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.With(zap.String("component", "notify"))}
}

func courseFields(course model.Course, item model.ContentItem) []zap.Field {
	return []zap.Field{
		zap.String("course", course.Name),
		zap.String("course_code", course.Code),
		zap.String("item_id", item.ID),
		zap.String("item", item.Title),
	}
}

func (s *LogSink) NotifyNewContent(_ context.Context, accountID string, course model.Course, item model.ContentItem) error {
	s.log.Info("new content", append(courseFields(course, item),
		zap.String("account_id", accountID),
		zap.String("window", item.AttendanceWindow),
		zap.Bool("manual", item.Manual))...)
	return nil
}

func (s *LogSink) NotifyCheckInSuccess(_ context.Context, accountID string, course model.Course, item model.ContentItem, timestamp string) error {
	s.log.Info("check-in confirmed", append(courseFields(course, item),
		zap.String("account_id", accountID),
		zap.String("timestamp", timestamp))...)
	return nil
}

func (s *LogSink) NotifyCheckInUnverified(_ context.Context, accountID string, course model.Course, item model.ContentItem) error {
	s.log.Warn("check-in unverified", append(courseFields(course, item), zap.String("account_id", accountID))...)
	return nil
}

func (s *LogSink) NotifySweepSummary(_ context.Context, accountID string, newCount, confirmedCount int) error {
	s.log.Info("sweep summary", zap.String("account_id", accountID), zap.Int("new", newCount), zap.Int("confirmed", confirmedCount))
	return nil
}

func (s *LogSink) NotifyError(_ context.Context, accountID, message string) error {
	s.log.Error("sync error", zap.String("account_id", accountID), zap.String("message", message))
	return nil
}

func (s *LogSink) NotifyRegistered(_ context.Context, account model.Account, courseCount int) error {
	s.log.Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("login_id", account.LoginID),
		zap.String("student_name", account.StudentName),
		zap.Int("courses", courseCount))
	return nil
}

func (s *LogSink) NotifySessionExpired(_ context.Context, accountID string) error {
	s.log.Warn("session expired, logging in again", zap.String("account_id", accountID))
	return nil
}
