package deeplink_test

import (
	"context"
	"testing"

	"github.com/mpin-labs/mpinclient/internal/session"
	"github.com/mpin-labs/mpinclient/internal/session/deeplink"
	"github.com/mpin-labs/mpinclient/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_DispatchAuth(t *testing.T) {
	ft := transporttest.New()
	ft.OnJSON("/rps/v2/codeStatus", map[string]any{"userId": "alice"})

	coordinator := session.New(ft)
	router := deeplink.NewRouter(coordinator)

	details, err := router.Dispatch(context.Background(), "https://x.example/auth#ACC")
	require.NoError(t, err)
	assert.Equal(t, "alice", details.UserID)
}

func TestRouter_DispatchCrossDevice(t *testing.T) {
	ft := transporttest.New()
	ft.OnJSON("/rps/v2/codeStatus", map[string]any{"userId": "alice"})

	coordinator := session.New(ft)
	router := deeplink.NewRouter(coordinator)

	details, err := router.Dispatch(context.Background(), "https://x.example/session#ACC")
	require.NoError(t, err)
	assert.Equal(t, "alice", details.UserID)
}

func TestRouter_DispatchSign(t *testing.T) {
	ft := transporttest.New()
	ft.OnJSON("/dvs/session/details", map[string]any{"sessionId": "sess-1"})

	coordinator := session.New(ft)
	router := deeplink.NewRouter(coordinator)

	details, err := router.Dispatch(context.Background(), "https://x.example/sign#sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", details.SessionID)
}

func TestRouter_DispatchUnregisteredPath(t *testing.T) {
	ft := transporttest.New()
	coordinator := session.New(ft)
	router := deeplink.NewRouter(coordinator)

	_, err := router.Dispatch(context.Background(), "https://x.example/unknown#ACC")
	assert.ErrorIs(t, err, session.ErrInvalidAppLink)
}

func TestRouter_DispatchMissingFragment(t *testing.T) {
	ft := transporttest.New()
	coordinator := session.New(ft)
	router := deeplink.NewRouter(coordinator)

	_, err := router.Dispatch(context.Background(), "https://x.example/auth")
	assert.ErrorIs(t, err, session.ErrInvalidAppLink)
}
