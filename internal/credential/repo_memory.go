package credential

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps records in process; for dev and tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	recs map[string]Record
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{recs: make(map[string]Record)}
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (r *MemoryRepository) Put(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.ID] = copyRecord(rec)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[id]; !ok {
		return ErrNotFound
	}
	delete(r.recs, id)
	return nil
}

// List returns records in registration order, then by id.
func (r *MemoryRepository) List(_ context.Context, activeOnly bool) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.recs))
	for _, rec := range r.recs {
		if activeOnly && !rec.Active {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copyRecord(rec Record) Record {
	if rec.Session != nil {
		s := *rec.Session
		rec.Session = &s
	}
	if rec.LastLogin != nil {
		t := *rec.LastLogin
		rec.LastLogin = &t
	}
	if rec.LastCheck != nil {
		t := *rec.LastCheck
		rec.LastCheck = &t
	}
	return rec
}
