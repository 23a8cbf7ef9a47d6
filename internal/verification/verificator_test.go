package verification_test

import (
	"context"
	"testing"

	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/mpin-labs/mpinclient/internal/transport/transporttest"
	"github.com/mpin-labs/mpinclient/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendVerificationEmail_Success(t *testing.T) {
	fake := transporttest.New()
	fake.OnJSON("/verification/email", map[string]any{
		"backoff": 30, "verificationMethod": "StandardEmail",
	})

	v := verification.New(fake, nil)
	res, err := v.SendVerificationEmail(context.Background(), "alice@example.com", "proj-1", "laptop", "")
	require.NoError(t, err)
	assert.Equal(t, 30, res.Backoff)
	assert.Equal(t, verification.StandardEmail, res.VerificationMethod)
}

func TestSendVerificationEmail_MapsBackoff(t *testing.T) {
	fake := transporttest.New()
	fake.On("/verification/email", func(transporttest.Call) (transport.Response, error) {
		return transport.Response{}, &transport.ClientError{
			StatusCode: 400, Code: "REQUEST_BACKOFF",
			Context: transport.ErrorContext{"backoff": float64(12)},
		}
	})

	v := verification.New(fake, nil)
	_, err := v.SendVerificationEmail(context.Background(), "alice@example.com", "proj-1", "laptop", "")
	require.Error(t, err)

	var backoffErr *verification.RequestBackoffError
	require.ErrorAs(t, err, &backoffErr)
	assert.Equal(t, 12, backoffErr.Backoff)
}

func TestGetActivationTokenFromURI_MissingQueryFields(t *testing.T) {
	fake := transporttest.New()
	v := verification.New(fake, nil)

	_, err := v.GetActivationTokenFromURI(context.Background(), "https://x.example/confirm?code=abc")
	assert.ErrorIs(t, err, verification.ErrInvalidVerificationUri)
	assert.Equal(t, 0, fake.CallCount("/verification/confirmation"))
}

func TestGetActivationToken_UnsuccessfulVerification(t *testing.T) {
	fake := transporttest.New()
	fake.On("/verification/confirmation", func(transporttest.Call) (transport.Response, error) {
		return transport.Response{}, &transport.ClientError{
			StatusCode: 400, Code: "UNSUCCESSFUL_VERIFICATION",
			Context: transport.ErrorContext{"projectId": "p1", "userId": "u1", "accessId": "a1"},
		}
	})

	v := verification.New(fake, nil)
	_, err := v.GetActivationToken(context.Background(), "u1", "000000")

	var unsuccessful *verification.UnsuccessfulVerificationError
	require.ErrorAs(t, err, &unsuccessful)
	assert.Equal(t, "p1", unsuccessful.ProjectID)
	assert.Equal(t, "a1", unsuccessful.AccessID)
}
