package credential

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"absen/internal/model"
)

func newTestStore(t *testing.T) (*Store, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewStore(repo, testSealer(t), nil), repo
}

func sampleAccount() model.Account {
	session := model.NewSession("ua/1.0")
	session.Merge(map[string]string{"PHPSESSID": "cookie-value"})
	return model.Account{
		ID:       "user-1",
		LoginID:  "2024160008",
		Password: "s3cret",
		Session:  session,
		Active:   true,
	}
}

func TestStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore(t)
	require.NoError(t, store.Save(ctx, sampleAccount()))

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got.Password)
	assert.Equal(t, "cookie-value", got.Session.Cookies["PHPSESSID"])
	assert.Equal(t, "ua/1.0", got.Session.UserAgent)
	assert.False(t, got.RegisteredAt.IsZero())

	rec, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	raw := rec.Password.Ciphertext + rec.Password.Tag + rec.Session.Ciphertext
	assert.NotContains(t, raw, "s3cret")
	assert.NotContains(t, raw, "cookie-value")
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetTampered(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore(t)
	require.NoError(t, store.Save(ctx, sampleAccount()))

	rec, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	rec.Password.Tag = flipHex(t, rec.Password.Tag)
	require.NoError(t, repo.Put(ctx, rec))

	_, err = store.Get(ctx, "user-1")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(ctx, sampleAccount()))

	updated, err := store.Update(ctx, "user-1", func(a *model.Account) {
		a.Active = false
		a.StudentName = "Budi Santoso"
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "Budi Santoso", got.StudentName)
	assert.Equal(t, "s3cret", got.Password)
}

func TestStore_UpdateMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Update(context.Background(), "ghost", func(*model.Account) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_IncrementStatConcurrent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(ctx, sampleAccount()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementStat(ctx, "user-1", model.StatChecks)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Stats.TotalChecks)
}

func TestStore_UpdateSession(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	acc := sampleAccount()
	acc.Session = nil
	require.NoError(t, store.Save(ctx, acc))

	fresh := model.NewSession("ua/2.0")
	fresh.Merge(map[string]string{"PHPSESSID": "new"})
	require.NoError(t, store.UpdateSession(ctx, "user-1", fresh))

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Session.Cookies["PHPSESSID"])
	require.NotNil(t, got.LastLogin)
}

func TestStore_ListActiveAndDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	a := sampleAccount()
	b := sampleAccount()
	b.ID = "user-2"
	b.Active = false
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "user-1", active[0].ID)

	ids, err := store.ActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, ids)

	require.NoError(t, store.Delete(ctx, "user-1"))
	assert.ErrorIs(t, store.Delete(ctx, "user-1"), ErrNotFound)
}

func TestStore_ListActiveFailsOnCorruptRecord(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore(t)
	require.NoError(t, store.Save(ctx, sampleAccount()))
	rec, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	rec.Session.Ciphertext = strings.Repeat("0", len(rec.Session.Ciphertext))
	require.NoError(t, repo.Put(ctx, rec))

	_, err = store.ListActive(ctx)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestStore_Upsert(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	var seen []bool
	mutate := func(a *model.Account, exists bool) {
		seen = append(seen, exists)
		a.LoginID = "2024160008"
		a.Password = "s3cret"
	}
	_, err := store.Upsert(ctx, "user-1", mutate)
	require.NoError(t, err)
	_, err = store.IncrementStat(ctx, "user-1", model.StatChecks)
	require.NoError(t, err)

	acc, err := store.Upsert(ctx, "user-1", mutate)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, seen)
	assert.Equal(t, "user-1", acc.ID)
	assert.Equal(t, 1, acc.Stats.TotalChecks)
}

func TestStore_UpsertReplacesUndecryptable(t *testing.T) {
	ctx := context.Background()
	store, repo := newTestStore(t)
	require.NoError(t, store.Save(ctx, sampleAccount()))
	rec, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	rec.Password.Tag = flipHex(t, rec.Password.Tag)
	require.NoError(t, repo.Put(ctx, rec))

	_, err = store.Upsert(ctx, "user-1", func(a *model.Account, exists bool) {
		assert.False(t, exists)
		a.Password = "fresh"
	})
	require.NoError(t, err)
	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Password)
}
