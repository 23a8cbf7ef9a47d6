package signing_test

import (
	"context"
	"testing"

	"github.com/mpin-labs/mpinclient/internal/authentication"
	"github.com/mpin-labs/mpinclient/internal/cryptoprovider/fake"
	"github.com/mpin-labs/mpinclient/internal/pin"
	"github.com/mpin-labs/mpinclient/internal/registration"
	"github.com/mpin-labs/mpinclient/internal/signing"
	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/mpin-labs/mpinclient/internal/transport/transporttest"
	"github.com/mpin-labs/mpinclient/internal/userstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPin(digits string) pin.Provider {
	return func(_ context.Context, consume func(string)) error {
		consume(digits)
		return nil
	}
}

func signableRecord() userstore.UserRecord {
	return userstore.UserRecord{
		UserID: "alice", ProjectID: "proj-1",
		PinLength: 4,
		MpinID:    []byte{0xaa, 0xbb},
		Token:     []byte{0x01, 0x02},
		Dtas:      "dtas-1",
		PublicKey: []byte{0xcc, 0xdd},
	}
}

func withPassAndAuthRoutes(ft *transporttest.Fake) {
	ft.OnJSON("/rps/v2/pass1", map[string]any{"Y": "010203"})
	ft.OnJSON("/rps/v2/pass2", map[string]any{"authOTT": "ott-1"})
	ft.OnJSON("/rps/v2/authenticate", map[string]any{"status": 200, "jwt": nil})
}

func TestSign_Success(t *testing.T) {
	ft := transporttest.New()
	withPassAndAuthRoutes(ft)

	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	rec := signableRecord()
	require.NoError(t, store.Add(context.Background(), rec))

	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)
	signer := signing.New(ft, crypto, store, auth, nil, nil)

	sig, err := signer.Sign(context.Background(), rec, []byte("document-digest"), fixedPin("1234"), "laptop", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, sig.U)
	assert.NotEmpty(t, sig.V)
	assert.Equal(t, "dtas-1", sig.Dtas)
}

func TestSign_EmptyMessage(t *testing.T) {
	ft := transporttest.New()
	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)
	signer := signing.New(ft, crypto, store, auth, nil, nil)

	_, err := signer.Sign(context.Background(), signableRecord(), nil, fixedPin("1234"), "laptop", nil)
	assert.ErrorIs(t, err, signing.ErrEmptyMessage)
}

func TestSign_NoPublicKey(t *testing.T) {
	ft := transporttest.New()
	withPassAndAuthRoutes(ft)
	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	rec := signableRecord()
	rec.PublicKey = nil
	require.NoError(t, store.Add(context.Background(), rec))

	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)
	signer := signing.New(ft, crypto, store, auth, nil, nil)

	_, err := signer.Sign(context.Background(), rec, []byte("digest"), fixedPin("1234"), "laptop", nil)
	require.Error(t, err)
}

func TestSign_SessionCompletion(t *testing.T) {
	ft := transporttest.New()
	withPassAndAuthRoutes(ft)
	ft.On("/dvs/session/sess-1", func(transporttest.Call) (transport.Response, error) {
		return transport.Response{StatusCode: 200, Body: []byte(`{"status":"signed"}`)}, nil
	})

	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	rec := signableRecord()
	require.NoError(t, store.Add(context.Background(), rec))

	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)
	signer := signing.New(ft, crypto, store, auth, nil, nil)

	_, err := signer.Sign(context.Background(), rec, []byte("digest"), fixedPin("1234"), "laptop", &signing.SessionDetails{SessionID: "sess-1"})
	require.NoError(t, err)
}

func TestSign_InvalidSigningSessionOnBadParams(t *testing.T) {
	ft := transporttest.New()
	withPassAndAuthRoutes(ft)
	ft.On("/dvs/session/sess-1", func(transporttest.Call) (transport.Response, error) {
		return transport.Response{}, &transport.ClientError{
			StatusCode: 400, Code: "INVALID_REQUEST_PARAMETERS",
			Context: transport.ErrorContext{"params": "id"},
		}
	})

	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	rec := signableRecord()
	require.NoError(t, store.Add(context.Background(), rec))

	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)
	signer := signing.New(ft, crypto, store, auth, nil, nil)

	_, err := signer.Sign(context.Background(), rec, []byte("digest"), fixedPin("1234"), "laptop", &signing.SessionDetails{SessionID: "sess-1"})
	assert.ErrorIs(t, err, signing.ErrInvalidSigningSession)
}

func TestSign_EmptySessionID(t *testing.T) {
	ft := transporttest.New()
	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)
	signer := signing.New(ft, crypto, store, auth, nil, nil)

	_, err := signer.Sign(context.Background(), signableRecord(), []byte("digest"), fixedPin("1234"), "laptop", &signing.SessionDetails{SessionID: ""})
	assert.ErrorIs(t, err, signing.ErrEmptySessionID)
}
