package userstore_test

import (
	"context"
	"testing"

	"github.com/mpin-labs/mpinclient/internal/userstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_UpsertOverwritesSameKey(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewMemoryStore()

	rec := userstore.UserRecord{UserID: "alice", ProjectID: "p1", MpinID: []byte{1}, Token: []byte{2}, Dtas: "d"}
	require.NoError(t, userstore.Upsert(ctx, store, rec))

	rec.Dtas = "d2"
	require.NoError(t, userstore.Upsert(ctx, store, rec))

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "d2", all[0].Dtas)
}

func TestMemoryStore_GetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	store := userstore.NewMemoryStore()

	_, err := store.Get(ctx, "nobody", "p1")
	assert.ErrorIs(t, err, userstore.ErrNotFound)
}

func TestUserRecord_Usable(t *testing.T) {
	rec := userstore.UserRecord{}
	assert.ErrorIs(t, rec.Usable(), userstore.ErrInvalidUserData)

	rec = userstore.UserRecord{MpinID: []byte{1}, Token: []byte{2}, Dtas: "d"}
	assert.NoError(t, rec.Usable())
}

func TestUserRecord_CombinedMpinID(t *testing.T) {
	rec := userstore.UserRecord{MpinID: []byte{0x01, 0x02}}
	assert.Equal(t, []byte{0x01, 0x02}, rec.CombinedMpinID())

	rec.PublicKey = []byte{0xAA}
	assert.Equal(t, []byte{0x01, 0x02, 0xAA}, rec.CombinedMpinID())
}
