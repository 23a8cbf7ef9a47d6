package session_test

import (
	"context"
	"testing"

	"github.com/mpin-labs/mpinclient/internal/session"
	"github.com/mpin-labs/mpinclient/internal/signing"
	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/mpin-labs/mpinclient/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSession_Success(t *testing.T) {
	ft := transporttest.New()
	ft.OnJSON("/rps/v2/codeStatus", map[string]any{
		"userId": "alice", "projectId": "proj-1", "pinLength": 4,
		"verificationMethod": "StandardEmail", "identityType": "Email",
	})

	c := session.New(ft)
	details, err := c.GetSession(context.Background(), session.FamilyAuthentication, "ACC")
	require.NoError(t, err)
	assert.Equal(t, "alice", details.UserID)
	assert.Equal(t, session.StandardEmail, details.VerificationMethod)
	assert.False(t, details.LimitQuickCodeRegistration)
}

func TestGetSession_BlankID(t *testing.T) {
	ft := transporttest.New()
	c := session.New(ft)
	_, err := c.GetSession(context.Background(), session.FamilyAuthentication, "")
	assert.ErrorIs(t, err, session.ErrInvalidSessionDetails)
	assert.Equal(t, 0, ft.CallCount("/rps/v2/codeStatus"))
}

func TestAbortSession_BlankID(t *testing.T) {
	ft := transporttest.New()
	c := session.New(ft)
	err := c.AbortSession(context.Background(), session.FamilySigning, "")
	assert.ErrorIs(t, err, session.ErrInvalidSessionDetails)
}

func TestFromAppLink_ExtractsFragment(t *testing.T) {
	ft := transporttest.New()
	ft.OnJSON("/rps/v2/codeStatus", map[string]any{"userId": "alice"})

	c := session.New(ft)
	details, err := c.FromAppLink(context.Background(), session.FamilyAuthentication, "https://x.example/auth#ACC")
	require.NoError(t, err)
	assert.Equal(t, "alice", details.UserID)
}

func TestFromAppLink_NoFragment(t *testing.T) {
	ft := transporttest.New()
	c := session.New(ft)
	_, err := c.FromAppLink(context.Background(), session.FamilyAuthentication, "https://x.example/auth")
	assert.ErrorIs(t, err, session.ErrInvalidAppLink)
}

func TestCompleteCrossDeviceSigning_InvalidParams(t *testing.T) {
	ft := transporttest.New()
	ft.On("/rps/v2/codeStatus", func(transporttest.Call) (transport.Response, error) {
		return transport.Response{}, &transport.ClientError{
			StatusCode: 400, Code: "INVALID_REQUEST_PARAMETERS",
			Context: transport.ErrorContext{"params": "id"},
		}
	})

	c := session.New(ft)
	err := c.CompleteCrossDeviceSigning(context.Background(), "sess-1", signing.Signature{MpinID: "aa"})
	assert.ErrorIs(t, err, signing.ErrInvalidSigningSession)
}
