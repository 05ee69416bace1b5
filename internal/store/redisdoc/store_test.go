package redisdoc

import (
	"context"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usersync/internal/config"
	"usersync/internal/sync"
)

func openTestStore(t *testing.T) *Store {
	store, err := Open(&config.RedisConfig{Addr: "localhost:6379", DB: 1})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return store
}

func TestStore_UpsertFindMarkDeleted(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := store.DeriveKey(uuid.NewString())

	missing, err := store.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, missing)

	rec := &sync.Record{
		Key:            key,
		Email:          "ann@x.com",
		Username:       "ann",
		FirstName:      "Ann",
		LastName:       "Lee",
		FullName:       "Ann Lee",
		Role:           "ADMIN",
		Active:         true,
		SyncStatus:     sync.StatusSynced,
		LastEventID:    "e1",
		LastEventType:  "UserCreatedEvent",
		Source:         "user-management-service",
		SchemaVersion:  "1.0",
		EventTimestamp: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Upsert(ctx, rec))

	found, err := store.FindByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ann@x.com", found.Email)
	assert.Equal(t, "ann", found.Username)
	assert.True(t, found.Active)
	assert.False(t, found.SyncCreatedAt.IsZero(), "store must stamp sync_created_at")

	// Update must preserve the replica-local creation stamp.
	created := found.SyncCreatedAt
	rec.Email = "ann.lee@x.com"
	require.NoError(t, store.Upsert(ctx, rec))

	updated, err := store.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "ann.lee@x.com", updated.Email)
	assert.Equal(t, created, updated.SyncCreatedAt)

	// Soft delete: the document stays retrievable.
	require.NoError(t, store.MarkDeleted(ctx, key, sync.Provenance{
		EventID:   "e2",
		EventType: "UserDeletedEvent",
	}))

	deleted, err := store.FindByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, sync.StatusDeleted, deleted.SyncStatus)
	assert.False(t, deleted.Active)
	assert.Equal(t, "e2", deleted.LastEventID)
	assert.Equal(t, "ann.lee@x.com", deleted.Email, "delete patches lifecycle fields, not the profile")
	assert.Equal(t, created, deleted.SyncCreatedAt)
}

func TestStore_ConcurrentUpsertsPreserveCreationStamp(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := store.DeriveKey(uuid.NewString())

	// All writers race on a key none of them has seen; the creation
	// stamp set by whichever lands first must survive the rest.
	var wg gosync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Upsert(ctx, &sync.Record{
				Key:        key,
				Email:      fmt.Sprintf("w%d@x.com", i),
				Active:     true,
				SyncStatus: sync.StatusSynced,
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	found, err := store.FindByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.False(t, found.SyncCreatedAt.IsZero())

	created := found.SyncCreatedAt
	require.NoError(t, store.Upsert(ctx, &sync.Record{
		Key:        key,
		Email:      "final@x.com",
		Active:     true,
		SyncStatus: sync.StatusSynced,
	}))

	after, err := store.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "final@x.com", after.Email)
	assert.Equal(t, created, after.SyncCreatedAt)
}

func TestStore_MarkDeletedUnknownKey(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := store.MarkDeleted(ctx, uuid.NewString(), sync.Provenance{EventID: "e1"})
	assert.NoError(t, err, "deleting an unseen key is a no-op, not an error")
}

func TestStore_StatsTracksActiveSet(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	before, err := store.Stats(ctx)
	require.NoError(t, err)

	key := store.DeriveKey(uuid.NewString())
	require.NoError(t, store.Upsert(ctx, &sync.Record{
		Key:        key,
		Active:     true,
		SyncStatus: sync.StatusSynced,
	}))

	after, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Total+1, after.Total)
	assert.Equal(t, before.Active+1, after.Active)

	require.NoError(t, store.MarkDeleted(ctx, key, sync.Provenance{}))

	final, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, after.Total, final.Total, "soft delete must not remove the document")
	assert.Equal(t, after.Active-1, final.Active)
}
