package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parish-tools/rosterbot/internal/models"
)

func TestMemoryStoreGetCreatesIdleSession(t *testing.T) {
	store := NewMemoryStore(30 * time.Minute)

	session, err := store.Get(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), session.UserID)
	assert.Equal(t, models.StateIdle, session.State)
}

func TestMemoryStoreSaveRoundTrip(t *testing.T) {
	store := NewMemoryStore(30 * time.Minute)
	ctx := context.Background()

	session, err := store.Get(ctx, 100)
	require.NoError(t, err)

	session.State = models.StateBuilderMode
	session.Mode = models.ModeCreate
	session.Step = models.StepMenu
	session.Draft = map[string]string{"Имя": "Анна"}
	require.NoError(t, store.Save(ctx, session))

	loaded, err := store.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.StateBuilderMode, loaded.State)
	assert.Equal(t, "Анна", loaded.Draft["Имя"])
}

func TestMemoryStoreMutationsNeedSave(t *testing.T) {
	store := NewMemoryStore(30 * time.Minute)
	ctx := context.Background()

	session, err := store.Get(ctx, 100)
	require.NoError(t, err)
	session.State = models.StateAdminMenu
	// Not saved.

	loaded, err := store.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, loaded.State)
}

func TestMemoryStoreExpiredSessionReplaced(t *testing.T) {
	store := NewMemoryStore(30 * time.Minute)
	ctx := context.Background()

	session, err := store.Get(ctx, 100)
	require.NoError(t, err)
	session.State = models.StateViewingCard
	require.NoError(t, store.Save(ctx, session))

	now := time.Now()
	store.now = func() time.Time { return now.Add(31 * time.Minute) }

	loaded, err := store.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, loaded.State)
}

func TestMemoryStoreActivityExtendsLease(t *testing.T) {
	store := NewMemoryStore(30 * time.Minute)
	ctx := context.Background()

	session, err := store.Get(ctx, 100)
	require.NoError(t, err)
	session.State = models.StateViewingCard
	require.NoError(t, store.Save(ctx, session))

	base := time.Now()
	// Keep touching the session every 20 minutes.
	store.now = func() time.Time { return base.Add(20 * time.Minute) }
	_, err = store.Get(ctx, 100)
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(40 * time.Minute) }
	loaded, err := store.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.StateViewingCard, loaded.State)
}

func TestMemoryStoreSweepExpired(t *testing.T) {
	store := NewMemoryStore(30 * time.Minute)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, s))
	}

	base := time.Now()
	store.now = func() time.Time { return base.Add(20 * time.Minute) }
	_, err := store.Get(ctx, 3) // keep one alive
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(35 * time.Minute) }
	removed, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}
