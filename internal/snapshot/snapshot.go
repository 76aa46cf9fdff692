// Package snapshot remembers which content items were last seen per account
// and course, and computes what is new.
package snapshot

import (
	"context"

	"absen/internal/model"
)

// Store persists snapshots keyed by account then course.
type Store interface {
	Load(ctx context.Context, accountID, courseID string) ([]model.SnapshotEntry, error)
	Save(ctx context.Context, accountID, courseID string, entries []model.SnapshotEntry) error
	LoadAccount(ctx context.Context, accountID string) (map[string][]model.SnapshotEntry, error)
	DeleteAccount(ctx context.Context, accountID string) error
}

// Diff returns the items of current whose id is absent from known, in the
// order they appear in current.
func Diff(current []model.ContentItem, known []model.SnapshotEntry) []model.ContentItem {
	seen := make(map[string]struct{}, len(known))
	for _, e := range known {
		seen[e.ItemID] = struct{}{}
	}
	var fresh []model.ContentItem
	for _, it := range current {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		fresh = append(fresh, it)
	}
	return fresh
}
