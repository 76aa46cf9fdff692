// Package account implements the registration and management operations the
// API exposes for portal accounts.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"absen/internal/credential"
	"absen/internal/model"
	"absen/internal/notify"
	"absen/internal/portal"
	"absen/internal/snapshot"
)

// ErrInvalidInput is returned for missing registration fields.
var ErrInvalidInput = errors.New("account: invalid input")

// Portal is the part of the portal client registration needs.
type Portal interface {
	Login(ctx context.Context, loginID, password string) (portal.LoginResult, error)
	ListCourses(ctx context.Context, session *model.Session) ([]model.Course, portal.Cookies, error)
}

// Service coordinates the credential store, the portal and snapshots.
type Service struct {
	store     *credential.Store
	portal    Portal
	snapshots snapshot.Store
	sink      notify.Sink
	now       func() time.Time
	log       *zap.Logger
}

// NewService builds the service.
func NewService(store *credential.Store, p Portal, snapshots snapshot.Store, sink notify.Sink, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		portal:    p,
		snapshots: snapshots,
		sink:      notify.NewSafe(sink, log),
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With(zap.String("component", "account")),
	}
}

// RegisterInput is what an owner submits to enrol an account.
type RegisterInput struct {
	ID       string
	Username string
	LoginID  string
	Password string
}

// Registration is the result of a successful enrolment.
type Registration struct {
	Account model.Account
	Courses []model.Course
	Updated bool
}

// Register verifies the credentials with a live login and stores the account.
// Re-registering an existing id replaces its credentials and keeps its stats.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	in.LoginID = strings.TrimSpace(in.LoginID)
	if in.LoginID == "" || in.Password == "" {
		return Registration{}, fmt.Errorf("%w: login id and password required", ErrInvalidInput)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	log := s.log.With(zap.String("account_id", in.ID), zap.String("login_id", in.LoginID))

	login, err := s.portal.Login(ctx, in.LoginID, in.Password)
	if err != nil {
		log.Warn("registration login failed", zap.Error(err))
		return Registration{}, err
	}

	updated := false
	acc, err := s.store.Upsert(ctx, in.ID, func(a *model.Account, exists bool) {
		now := s.now()
		updated = exists
		if !exists {
			a.RegisteredAt = now
		}
		a.Username = in.Username
		a.LoginID = in.LoginID
		a.Password = in.Password
		a.Session = login.Session.Clone()
		a.Active = true
		a.LastLogin = &now
		if login.StudentName != "" {
			a.StudentName = login.StudentName
		}
	})
	if err != nil {
		return Registration{}, err
	}

	courses, cookies, err := s.portal.ListCourses(ctx, acc.Session)
	if err != nil {
		log.Warn("course listing after registration failed", zap.Error(err))
		courses = nil
	} else if len(cookies) > 0 {
		merged, err := s.store.Update(ctx, in.ID, func(a *model.Account) {
			if a.Session == nil {
				a.Session = model.NewSession(login.Session.UserAgent)
			}
			a.Session.Merge(cookies)
		})
		if err != nil {
			log.Warn("persist session cookies", zap.Error(err))
		} else {
			acc = merged
		}
	}

	_ = s.sink.NotifyRegistered(ctx, acc, len(courses))
	log.Info("account registered", zap.Bool("updated", updated), zap.Int("courses", len(courses)))
	return Registration{Account: acc, Courses: courses, Updated: updated}, nil
}

// SetActive switches syncing on or off.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (model.Account, error) {
	acc, err := s.store.Update(ctx, id, func(a *model.Account) { a.Active = active })
	if err != nil {
		return model.Account{}, err
	}
	s.log.Info("account active flag changed", zap.String("account_id", id), zap.Bool("active", active))
	return acc, nil
}

// Toggle flips the active flag.
func (s *Service) Toggle(ctx context.Context, id string) (model.Account, error) {
	var active bool
	acc, err := s.store.Update(ctx, id, func(a *model.Account) {
		a.Active = !a.Active
		active = a.Active
	})
	if err != nil {
		return model.Account{}, err
	}
	s.log.Info("account toggled", zap.String("account_id", id), zap.Bool("active", active))
	return acc, nil
}

// Status summarises an account and what the sync has seen for it.
type Status struct {
	Account        model.Account
	TrackedCourses int
	TrackedItems   int
}

// Status returns the account with its snapshot totals.
func (s *Service) Status(ctx context.Context, id string) (Status, error) {
	acc, err := s.store.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	snaps, err := s.snapshots.LoadAccount(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("load snapshots: %w", err)
	}
	st := Status{Account: acc, TrackedCourses: len(snaps)}
	for _, entries := range snaps {
		st.TrackedItems += len(entries)
	}
	return st, nil
}

// Remove deletes the account and its snapshots.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.snapshots.DeleteAccount(ctx, id); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}

// Courses lists the account's courses live, logging in again once when the
// stored session no longer works.
func (s *Service) Courses(ctx context.Context, id string) ([]model.Course, error) {
	acc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	courses, _, err := s.portal.ListCourses(ctx, acc.Session)
	if err == nil {
		return courses, nil
	}
	s.log.Info("stored session rejected, logging in again", zap.String("account_id", id), zap.Error(err))

	login, err := s.portal.Login(ctx, acc.LoginID, acc.Password)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateSession(ctx, id, login.Session); err != nil {
		return nil, err
	}
	courses, _, err = s.portal.ListCourses(ctx, login.Session)
	return courses, err
}

// Active lists every active account without secrets.
func (s *Service) Active(ctx context.Context) ([]model.Account, error) {
	return s.store.ListActive(ctx)
}
