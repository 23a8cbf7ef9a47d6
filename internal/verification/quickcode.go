package verification

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"image/png"

	"github.com/mpin-labs/mpinclient/internal/pin"
	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/pquerna/otp"
)

// QuickCodeResult is the server-issued short code that lets a user
// register another device without re-verifying identity, plus the PNG QR
// code rendering a host app can show for "scan to pair a new device".
type QuickCodeResult struct {
	Code      string `json:"code"`
	ExpiresIn int    `json:"expiresIn"`
	QRPNG     []byte `json:"-"`
}

type generateQuickCodeRequest struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	AuthOTT   string `json:"authOTT"`
}

// PinProvider is an alias for pin.Provider so internal/authentication's
// AuthenticateRegCode method (which takes a pin.Provider) satisfies this
// package's Authenticator interface without a conversion at the call site.
type PinProvider = pin.Provider

// Authenticator is the minimal surface GenerateQuickCode needs from
// internal/authentication to obtain a reg-code-scope authOTT, kept narrow
// so the verification package doesn't import the authenticator and create
// a cycle.
type Authenticator interface {
	AuthenticateRegCode(ctx context.Context, userID, projectID string, pinProvider PinProvider) (authOTT string, err error)
}

// GenerateQuickCode authenticates in the "reg-code" scope and asks the
// platform for a short-lived pairing code, then renders it as a QR image,
// reusing pquerna/otp's key/QR machinery for a code that isn't a TOTP
// secret, only a scannable opaque string.
func (v *Verificator) GenerateQuickCode(ctx context.Context, auth Authenticator, userID, projectID string, pinProvider PinProvider, issuer string) (QuickCodeResult, error) {
	authOTT, err := auth.AuthenticateRegCode(ctx, userID, projectID, pinProvider)
	if err != nil {
		return QuickCodeResult{}, &VerificationFailError{Cause: err}
	}

	resp, err := v.Transport.Do(ctx, transportRequestFor(userID, projectID, authOTT))
	if err != nil {
		return QuickCodeResult{}, &VerificationFailError{Cause: err}
	}

	var out QuickCodeResult
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return QuickCodeResult{}, &VerificationFailError{Cause: err}
	}

	key, err := otp.NewKeyFromURL(fmt.Sprintf(
		"otpauth://totp/%s:%s?secret=%s&issuer=%s",
		issuer, userID, base32QuickCode(out.Code), issuer,
	))
	if err != nil {
		return out, nil // QR rendering is a convenience; the code itself is still valid.
	}
	img, err := key.Image(200, 200)
	if err != nil {
		return out, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return out, nil
	}
	out.QRPNG = buf.Bytes()
	return out, nil
}

func transportRequestFor(userID, projectID, authOTT string) transport.Request {
	return transport.Request{
		Method: "POST",
		Path:   "/verification/quickcode",
		Body:   generateQuickCodeRequest{UserID: userID, ProjectID: projectID, AuthOTT: authOTT},
	}
}

// base32QuickCode adapts the server-issued code to the base32 alphabet
// otp's key parser expects for its `secret` parameter; the result has no
// TOTP meaning, it is only a vessel so the QR rendering path can be reused.
func base32QuickCode(code string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(code))
}
