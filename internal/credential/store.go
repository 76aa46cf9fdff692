// Package credential persists portal accounts with their password and session
// sealed under a process-wide key.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"absen/internal/model"
)

// Store is the encrypted account store. Writes to one account are serialized
// in process; writers in other processes are not coordinated.
type Store struct {
	repo   Repository
	sealer *Sealer
	locks  *keyedMutex
	now    func() time.Time
	log    *zap.Logger
}

// NewStore wraps a repository with sealing.
func NewStore(repo Repository, sealer *Sealer, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		repo:   repo,
		sealer: sealer,
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
		log:    log.With(zap.String("component", "credential")),
	}
}

// Get loads and decrypts one account. Tampered envelopes fail with ErrDecryption.
func (s *Store) Get(ctx context.Context, id string) (model.Account, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	return s.open(rec)
}

// Save seals and writes the full account.
func (s *Store) Save(ctx context.Context, acc model.Account) error {
	unlock := s.locks.Lock(acc.ID)
	defer unlock()
	return s.save(ctx, acc)
}

// Update applies mutate to the current account and writes the result back.
// It is a read-modify-write over the full record.
func (s *Store) Update(ctx context.Context, id string, mutate func(*model.Account)) (model.Account, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	acc, err := s.Get(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	mutate(&acc)
	acc.ID = id
	if err := s.save(ctx, acc); err != nil {
		return model.Account{}, err
	}
	return acc, nil
}

// Upsert is Update for an account that may not exist yet. mutate sees the
// stored account, or a zero account with exists false when there is none or
// the stored record no longer decrypts.
func (s *Store) Upsert(ctx context.Context, id string, mutate func(acc *model.Account, exists bool)) (model.Account, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	acc, err := s.Get(ctx, id)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrDecryption) {
		return model.Account{}, err
	}
	if !exists {
		acc = model.Account{}
	}
	mutate(&acc, exists)
	acc.ID = id
	if err := s.save(ctx, acc); err != nil {
		return model.Account{}, err
	}
	return acc, nil
}

// IncrementStat bumps one counter and persists it immediately.
func (s *Store) IncrementStat(ctx context.Context, id string, stat model.Stat) (model.Stats, error) {
	acc, err := s.Update(ctx, id, func(a *model.Account) { a.Stats.Increment(stat) })
	if err != nil {
		return model.Stats{}, err
	}
	return acc.Stats, nil
}

// UpdateSession replaces the stored session and stamps the login time.
func (s *Store) UpdateSession(ctx context.Context, id string, session *model.Session) error {
	_, err := s.Update(ctx, id, func(a *model.Account) {
		a.Session = session.Clone()
		now := s.now()
		a.LastLogin = &now
	})
	return err
}

// Delete removes an account.
func (s *Store) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("account deleted", zap.String("account_id", id))
	return nil
}

// ListActive decrypts every active account. Any undecryptable record fails
// the whole call; use ActiveIDs with Get to isolate failures per account.
func (s *Store) ListActive(ctx context.Context) ([]model.Account, error) {
	recs, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]model.Account, 0, len(recs))
	for _, rec := range recs {
		acc, err := s.open(rec)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", rec.ID, err)
		}
		out = append(out, acc)
	}
	return out, nil
}

// ActiveIDs lists active account identifiers without decrypting anything.
func (s *Store) ActiveIDs(ctx context.Context) ([]string, error) {
	recs, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (s *Store) save(ctx context.Context, acc model.Account) error {
	if acc.ID == "" {
		return fmt.Errorf("credential: account id required")
	}
	if acc.RegisteredAt.IsZero() {
		acc.RegisteredAt = s.now()
	}
	rec, err := s.seal(acc)
	if err != nil {
		return err
	}
	if err := s.repo.Put(ctx, rec); err != nil {
		return fmt.Errorf("credential: save %s: %w", acc.ID, err)
	}
	return nil
}

func (s *Store) seal(acc model.Account) (Record, error) {
	password, err := s.sealer.Seal([]byte(acc.Password))
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:           acc.ID,
		Username:     acc.Username,
		LoginID:      acc.LoginID,
		StudentName:  acc.StudentName,
		Password:     password,
		Active:       acc.Active,
		RegisteredAt: acc.RegisteredAt,
		LastLogin:    acc.LastLogin,
		LastCheck:    acc.LastCheck,
		Stats:        acc.Stats,
	}
	if !acc.Session.Empty() {
		raw, err := json.Marshal(acc.Session)
		if err != nil {
			return Record{}, fmt.Errorf("%w: encode session: %v", ErrEncryption, err)
		}
		env, err := s.sealer.Seal(raw)
		if err != nil {
			return Record{}, err
		}
		rec.Session = &env
	}
	return rec, nil
}

func (s *Store) open(rec Record) (model.Account, error) {
	password, err := s.sealer.Open(rec.Password)
	if err != nil {
		return model.Account{}, fmt.Errorf("account %s password: %w", rec.ID, err)
	}
	acc := model.Account{
		ID:           rec.ID,
		Username:     rec.Username,
		LoginID:      rec.LoginID,
		StudentName:  rec.StudentName,
		Password:     string(password),
		Active:       rec.Active,
		RegisteredAt: rec.RegisteredAt,
		LastLogin:    rec.LastLogin,
		LastCheck:    rec.LastCheck,
		Stats:        rec.Stats,
	}
	if rec.Session != nil {
		raw, err := s.sealer.Open(*rec.Session)
		if err != nil {
			return model.Account{}, fmt.Errorf("account %s session: %w", rec.ID, err)
		}
		var session model.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			return model.Account{}, fmt.Errorf("account %s session: %w: %v", rec.ID, ErrDecryption, err)
		}
		acc.Session = &session
	}
	return acc, nil
}

// keyedMutex hands out one mutex per account id and drops it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
