package authentication_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mpin-labs/mpinclient/internal/authentication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJWTClaims_Success(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, authentication.Claims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("any-key-the-client-does-not-have"))
	require.NoError(t, err)

	claims, err := authentication.DecodeJWTClaims(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
}

func TestDecodeJWTClaims_Malformed(t *testing.T) {
	_, err := authentication.DecodeJWTClaims("not-a-jwt")
	require.Error(t, err)
}

func TestResult_Claims_NoJWT(t *testing.T) {
	res := authentication.Result{}
	claims, err := res.Claims()
	require.NoError(t, err)
	assert.Nil(t, claims)
}
