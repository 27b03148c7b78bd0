package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samspacey/bsa-data/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetOrCreate(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	state, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, state.SessionID)
	assert.Zero(t, state.TurnCount)
	assert.Nil(t, state.LastIntent)

	// Same ID returns the same session
	again, err := store.GetOrCreate(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, state.SessionID, again.SessionID)
	assert.Equal(t, state.CreatedAt, again.CreatedAt)
}

func TestMemoryStore_SetIntentCommitsAtomically(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	state, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	intent := models.DefaultIntent()
	intent.PrimaryOrganizations = []string{"skipton"}
	require.NoError(t, store.SetIntent(ctx, state.SessionID, intent))

	loaded, err := store.GetOrCreate(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.TurnCount)
	require.NotNil(t, loaded.LastIntent)
	assert.Equal(t, []string{"skipton"}, loaded.LastIntent.PrimaryOrganizations)
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	state, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)
	require.NoError(t, store.SetIntent(ctx, state.SessionID, models.DefaultIntent()))

	loaded, err := store.GetOrCreate(ctx, state.SessionID)
	require.NoError(t, err)

	// Mutating the returned state must not leak into the store
	loaded.TurnCount = 99
	loaded.LastIntent.PrimaryOrganizations = []string{"mutated"}

	fresh, err := store.GetOrCreate(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TurnCount)
	assert.Empty(t, fresh.LastIntent.PrimaryOrganizations)
}

func TestMemoryStore_ConcurrentTurnsLoseNothing(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	state, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.SetIntent(ctx, state.SessionID, models.DefaultIntent())
		}()
	}
	wg.Wait()

	loaded, err := store.GetOrCreate(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, turns, loaded.TurnCount)
}

func TestMemoryStore_Reset(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	first, _ := store.GetOrCreate(ctx, "")
	second, _ := store.GetOrCreate(ctx, "")
	require.NoError(t, store.SetIntent(ctx, first.SessionID, models.DefaultIntent()))
	require.NoError(t, store.SetIntent(ctx, second.SessionID, models.DefaultIntent()))

	// Resetting one session leaves the other intact
	require.NoError(t, store.Reset(ctx, first.SessionID))
	reloaded, _ := store.GetOrCreate(ctx, first.SessionID)
	assert.Zero(t, reloaded.TurnCount)
	other, _ := store.GetOrCreate(ctx, second.SessionID)
	assert.Equal(t, 1, other.TurnCount)

	// Empty ID resets everything
	require.NoError(t, store.Reset(ctx, ""))
	other, _ = store.GetOrCreate(ctx, second.SessionID)
	assert.Zero(t, other.TurnCount)
}

func TestMemoryStore_ExpiresIdleSessions(t *testing.T) {
	store := NewMemoryStore(2 * time.Minute)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	state, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)
	require.NoError(t, store.SetIntent(ctx, state.SessionID, models.DefaultIntent()))

	// Within the TTL the session survives
	current = current.Add(time.Minute)
	loaded, err := store.GetOrCreate(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.TurnCount)

	// Past the TTL it starts over
	current = current.Add(5 * time.Minute)
	loaded, err = store.GetOrCreate(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Zero(t, loaded.TurnCount)
	assert.Nil(t, loaded.LastIntent)
}
