package authentication_test

import (
	"context"
	"testing"

	"github.com/mpin-labs/mpinclient/internal/authentication"
	"github.com/mpin-labs/mpinclient/internal/cryptoprovider/fake"
	"github.com/mpin-labs/mpinclient/internal/pin"
	"github.com/mpin-labs/mpinclient/internal/registration"
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

func baseRecord() userstore.UserRecord {
	return userstore.UserRecord{
		UserID: "alice", ProjectID: "proj-1",
		PinLength: 4,
		MpinID:    []byte{0xaa, 0xbb},
		Token:     []byte{0x01, 0x02},
		Dtas:      "dtas-1",
	}
}

func withPassRoutes(ft *transporttest.Fake, authOTT string, status int, jwt string) {
	ft.OnJSON("/rps/v2/pass1", map[string]any{"Y": "010203"})
	ft.OnJSON("/rps/v2/pass2", map[string]any{"authOTT": authOTT})
	ft.OnJSON("/rps/v2/authenticate", map[string]any{"status": status, "jwt": jwt})
}

func TestAuthenticate_Success(t *testing.T) {
	ft := transporttest.New()
	withPassRoutes(ft, "ott-1", 200, "jwt-token")

	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)

	rec := baseRecord()
	res, err := auth.Authenticate(context.Background(), rec, authentication.ScopeJWT, "", fixedPin("1234"), "laptop")
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "jwt-token", res.JWT)
}

func TestAuthenticate_RevokedRecordShortCircuits(t *testing.T) {
	ft := transporttest.New()
	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)

	rec := baseRecord()
	rec.Revoked = true
	_, err := auth.Authenticate(context.Background(), rec, authentication.ScopeJWT, "", fixedPin("1234"), "laptop")
	assert.ErrorIs(t, err, authentication.ErrRevoked)
	assert.Equal(t, 0, ft.CallCount("/rps/v2/pass1"))
}

func TestAuthenticate_Pass1RevealsRevocation(t *testing.T) {
	ft := transporttest.New()
	ft.On("/rps/v2/pass1", func(transporttest.Call) (transport.Response, error) {
		return transport.Response{}, &transport.ClientError{StatusCode: 400, Code: "MPINID_EXPIRED"}
	})
	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	rec := baseRecord()
	require.NoError(t, store.Add(context.Background(), rec))

	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)

	_, err := auth.Authenticate(context.Background(), rec, authentication.ScopeJWT, "", fixedPin("1234"), "laptop")
	assert.ErrorIs(t, err, authentication.ErrRevoked)

	stored, err := store.Get(context.Background(), "alice", "proj-1")
	require.NoError(t, err)
	assert.True(t, stored.Revoked)
}

func TestAuthenticate_InvalidPinLength(t *testing.T) {
	ft := transporttest.New()
	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)

	rec := baseRecord()
	_, err := auth.Authenticate(context.Background(), rec, authentication.ScopeJWT, "", fixedPin("12"), "laptop")
	assert.ErrorIs(t, err, authentication.ErrInvalidPin)
}

func TestAuthenticate_SecretRenewal(t *testing.T) {
	ft := transporttest.New()
	// Queued twice: once for the first attempt, once for the attempt that
	// follows the renewal.
	for i := 0; i < 2; i++ {
		ft.OnJSON("/rps/v2/pass1", map[string]any{"Y": "010203"})
		ft.OnJSON("/rps/v2/pass2", map[string]any{"authOTT": "ott-1"})
	}
	ft.On("/rps/v2/authenticate", func(transporttest.Call) (transport.Response, error) {
		return transport.Response{StatusCode: 200, Body: []byte(`{"status":200,"jwt":null,"dvsRegister":{"token":"renewal-tok"}}`)}, nil
	})
	ft.On("/rps/v2/authenticate", func(transporttest.Call) (transport.Response, error) {
		return transport.Response{StatusCode: 200, Body: []byte(`{"status":200,"jwt":"second-jwt"}`)}, nil
	})
	ft.OnJSON("/rps/v2/dvsregister", map[string]any{
		"dvsClientSecretShareURL": "/rps/v2/share2",
		"mpinId":                  "aabb",
		"dtas":                    "dtas-1",
	})
	ft.OnJSON("/rps/v2/share2", map[string]any{"clientSecretShare": "0506"})
	ft.OnJSON("/rps/v2/signature/aabb", map[string]any{
		"clientSecretShareURL": "/rps/v2/share1",
	})
	ft.OnJSON("/rps/v2/share1", map[string]any{"clientSecretShare": "0102"})

	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	rec := baseRecord()
	require.NoError(t, store.Add(context.Background(), rec))

	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)

	res, err := auth.Authenticate(context.Background(), rec, authentication.ScopeJWT, "", fixedPin("1234"), "laptop")
	require.NoError(t, err)
	assert.Equal(t, "second-jwt", res.JWT)

	stored, err := store.Get(context.Background(), "alice", "proj-1")
	require.NoError(t, err)
	assert.NotEqual(t, rec.Token, stored.Token)
}

func TestAuthenticateWithAppLink_MissingFragment(t *testing.T) {
	ft := transporttest.New()
	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)

	_, err := auth.AuthenticateWithAppLink(context.Background(), baseRecord(), "https://x.example/auth", fixedPin("1234"), "laptop")
	assert.ErrorIs(t, err, authentication.ErrInvalidAppLink)
	assert.Equal(t, 0, ft.CallCount("/rps/v2/pass1"))
}

func TestAuthenticateWithAppLink_ExtractsAccessID(t *testing.T) {
	ft := transporttest.New()
	withPassRoutes(ft, "ott-1", 200, "jwt-token")
	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)

	res, err := auth.AuthenticateWithAppLink(context.Background(), baseRecord(), "https://x.example/auth#ACC", fixedPin("1234"), "laptop")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", res.JWT)

	calls := ft.Calls
	require.NotEmpty(t, calls)
	// The extracted accessId triggers the session-status update before the PIN.
	assert.Equal(t, 1, ft.CallCount("/rps/v2/codeStatus"))
}

func TestAuthenticateWithNotificationPayload_UserNotFound(t *testing.T) {
	ft := transporttest.New()
	crypto := &fake.Provider{}
	store := userstore.NewMemoryStore()
	reg := registration.New(ft, crypto, store, nil, nil)
	auth := authentication.New(ft, crypto, store, reg, nil, nil)

	_, err := auth.AuthenticateWithNotificationPayload(context.Background(), authentication.NotificationPayload{
		ProjectID: "proj-1", UserID: "missing", QrURL: "https://x.example/auth#ACC",
	}, fixedPin("1234"), "laptop")
	assert.ErrorIs(t, err, authentication.ErrUserNotFound)
}
