package credential

import (
	"context"
	"errors"
	"time"

	"absen/internal/model"
)

// ErrNotFound is returned when no record exists for an account identifier.
var ErrNotFound = errors.New("credential: account not found")

// Record is the persisted form of an Account. Secrets only appear sealed.
type Record struct {
	ID           string
	Username     string
	LoginID      string
	StudentName  string
	Password     Envelope
	Session      *Envelope
	Active       bool
	RegisteredAt time.Time
	LastLogin    *time.Time
	LastCheck    *time.Time
	Stats        model.Stats
}

// Repository persists records keyed by account identifier.
type Repository interface {
	Get(ctx context.Context, id string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, activeOnly bool) ([]Record, error)
}
