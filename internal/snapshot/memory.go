package snapshot

import (
	"context"
	"sync"

	"absen/internal/model"
)

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]model.SnapshotEntry
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]model.SnapshotEntry)}
}

func (m *Memory) Load(_ context.Context, accountID, courseID string) ([]model.SnapshotEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.SnapshotEntry(nil), m.data[accountID][courseID]...), nil
}

func (m *Memory) Save(_ context.Context, accountID, courseID string, entries []model.SnapshotEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	courses, ok := m.data[accountID]
	if !ok {
		courses = make(map[string][]model.SnapshotEntry)
		m.data[accountID] = courses
	}
	courses[courseID] = append([]model.SnapshotEntry(nil), entries...)
	return nil
}

func (m *Memory) LoadAccount(_ context.Context, accountID string) (map[string][]model.SnapshotEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]model.SnapshotEntry, len(m.data[accountID]))
	for course, entries := range m.data[accountID] {
		out[course] = append([]model.SnapshotEntry(nil), entries...)
	}
	return out, nil
}

func (m *Memory) DeleteAccount(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, accountID)
	return nil
}
