package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"absen/internal/model"
)

func items(ids ...string) []model.ContentItem {
	out := make([]model.ContentItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.ContentItem{ID: id, Title: "Materi " + id, SeenAt: time.Unix(1700000000, 0).UTC()})
	}
	return out
}

func TestDiff(t *testing.T) {
	known := model.SnapshotFrom(items("a", "b"))
	fresh := Diff(items("a", "b", "c", "d"), known)
	require.Len(t, fresh, 2)
	assert.Equal(t, "c", fresh[0].ID)
	assert.Equal(t, "d", fresh[1].ID)
}

func TestDiff_EmptyBaselineIsAllNew(t *testing.T) {
	assert.Len(t, Diff(items("a", "b"), nil), 2)
}

func TestDiff_Idempotent(t *testing.T) {
	current := items("x", "y", "z")
	first := Diff(current, nil)
	assert.Len(t, first, 3)
	second := Diff(current, model.SnapshotFrom(current))
	assert.Empty(t, second)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	got, err := m.Load(ctx, "acc", "course")
	require.NoError(t, err)
	assert.Empty(t, got)

	entries := model.SnapshotFrom(items("1", "2"))
	require.NoError(t, m.Save(ctx, "acc", "course", entries))
	entries[0].ItemID = "mutated"

	got, err = m.Load(ctx, "acc", "course")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ItemID)

	all, err := m.LoadAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, m.DeleteAccount(ctx, "acc"))
	all, err = m.LoadAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Empty(t, all)
}
