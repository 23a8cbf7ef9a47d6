package userstore_test

import (
	"testing"

	"github.com/mpin-labs/mpinclient/internal/userstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestTokenSealer_RoundTrip(t *testing.T) {
	sealer, err := userstore.NewTokenSealer(testMasterKey)
	require.NoError(t, err)

	sealed, err := sealer.Seal("alice@example.com", "proj-1", []byte("super-secret-token"))
	require.NoError(t, err)
	assert.Contains(t, sealed, "enc:")

	plain, err := sealer.Open("alice@example.com", "proj-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-token", string(plain))
}

func TestTokenSealer_WrongRecordFailsToOpen(t *testing.T) {
	sealer, err := userstore.NewTokenSealer(testMasterKey)
	require.NoError(t, err)

	sealed, err := sealer.Seal("alice@example.com", "proj-1", []byte("token"))
	require.NoError(t, err)

	_, err = sealer.Open("bob@example.com", "proj-1", sealed)
	assert.Error(t, err)
}

func TestTokenSealer_RejectsBadMasterKeyLength(t *testing.T) {
	_, err := userstore.NewTokenSealer("too-short")
	assert.Error(t, err)
}
