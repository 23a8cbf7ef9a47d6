// Package authentication implements the Authenticator component: the
// two-pass M-Pin protocol state machine, access-session binding,
// revocation side effects and secret-renewal recursion — a pass-1 →
// pass-2 → authenticate sequence gated by a short-lived intermediate
// authOTT artifact.
package authentication

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mpin-labs/mpinclient/internal/audit"
	"github.com/mpin-labs/mpinclient/internal/cryptoprovider"
	"github.com/mpin-labs/mpinclient/internal/pin"
	"github.com/mpin-labs/mpinclient/internal/registration"
	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/mpin-labs/mpinclient/internal/userstore"
)

// Scope selects the purpose an authentication attempt is minted for. The
// server treats this as an opaque enumeration.
type Scope string

const (
	ScopeJWT     Scope = "jwt"
	ScopeOIDC    Scope = "oidc"
	ScopeDVSAuth Scope = "dvs-auth"
	ScopeRegCode Scope = "reg-code"
)

const maxRenewalDepth = 1

// Sentinel and typed errors — spec.md §4.5/§7's authentication taxonomy.
var (
	ErrRevoked                        = errors.New("authentication: user record is revoked")
	ErrInvalidUserData                = errors.New("authentication: mpinId, token or dtas is empty")
	ErrPinCancelled                   = errors.New("authentication: pin acquisition was cancelled")
	ErrInvalidPin                     = errors.New("authentication: pin length or format mismatch")
	ErrInvalidAppLink                 = errors.New("authentication: app link has no accessId fragment")
	ErrInvalidQRCode                  = errors.New("authentication: qr payload has no accessId")
	ErrInvalidPushNotificationPayload = errors.New("authentication: notification payload missing projectId, userId or qrURL")
	ErrUserNotFound                   = errors.New("authentication: no UserRecord for that projectId/userId")
)

// InvalidAuthenticationSessionError is returned when the server rejects
// the authOTT as belonging to an unknown or expired session.
type InvalidAuthenticationSessionError struct{ Cause error }

func (e *InvalidAuthenticationSessionError) Error() string {
	return fmt.Sprintf("authentication: invalid authentication session: %v", e.Cause)
}
func (e *InvalidAuthenticationSessionError) Unwrap() error { return e.Cause }

// UnsuccessfulAuthenticationError is returned when pass-2/authenticate is
// rejected on its merits (wrong PIN, most commonly).
type UnsuccessfulAuthenticationError struct{ Cause error }

func (e *UnsuccessfulAuthenticationError) Error() string {
	return fmt.Sprintf("authentication: unsuccessful authentication: %v", e.Cause)
}
func (e *UnsuccessfulAuthenticationError) Unwrap() error { return e.Cause }

// AuthenticationFailError wraps any other server or crypto failure.
type AuthenticationFailError struct{ Cause error }

func (e *AuthenticationFailError) Error() string {
	return fmt.Sprintf("authentication: failed: %v", e.Cause)
}
func (e *AuthenticationFailError) Unwrap() error { return e.Cause }

// Result is what a successful (or server-rejected-but-well-formed)
// authenticate call returns.
type Result struct {
	Status  int
	Message string
	JWT     string

	// Record is the UserRecord this attempt authenticated with — it may
	// differ from the one the caller passed in if a secret renewal
	// replaced it.
	Record userstore.UserRecord

	// PinUsed is the PIN validated for this attempt. It is exposed only
	// so DocumentSigner can reuse it for crypto.Sign without a second
	// prompt (spec.md §4.6 step 4); callers other than the signer MUST
	// discard it immediately.
	PinUsed int
}

// Authenticator drives the pass-1/pass-2/authenticate sequence and the
// renewal recursion of spec.md §4.5.
type Authenticator struct {
	Transport   transport.Transport
	Crypto      cryptoprovider.Provider
	Store       userstore.Store
	Registrator *registration.Registrator
	Logger      *slog.Logger
	Audit       audit.Service
}

func New(t transport.Transport, c cryptoprovider.Provider, s userstore.Store, r *registration.Registrator, logger *slog.Logger, auditSvc audit.Service) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if auditSvc == nil {
		auditSvc = audit.New()
	}
	return &Authenticator{Transport: t, Crypto: c, Store: s, Registrator: r, Logger: logger, Audit: auditSvc}
}

type updateSessionRequest struct {
	AccessID string `json:"accessId"`
	UserID   string `json:"userId"`
	Status   string `json:"status"`
}

type pass1Request struct {
	MpinID    string `json:"mpinId"`
	Dtas      string `json:"dtas"`
	U         string `json:"U"`
	Scope     Scope  `json:"scope"`
	PublicKey string `json:"publicKey,omitempty"`
}

type pass1Response struct {
	Y string `json:"Y"`
}

type pass2Request struct {
	MpinID   string `json:"mpinId"`
	AccessID string `json:"accessId,omitempty"`
	V        string `json:"V"`
}

type pass2Response struct {
	AuthOTT string `json:"authOTT"`
}

type authenticateRequest struct {
	AuthOTT string `json:"authOTT"`
	Wam     string `json:"wam"`
}

type dvsRegisterPayload struct {
	Token string `json:"token"`
}

type authenticateResponse struct {
	Status      int                  `json:"status"`
	Message     string               `json:"message"`
	JWT         string               `json:"jwt"`
	DvsRegister *dvsRegisterPayload `json:"dvsRegister"`
}

// Authenticate runs one full attempt — the accessId session update, PIN
// acquisition, the three protocol round trips, and, if the server
// requests it, exactly one secret-renewal-then-reauthenticate recursion.
func (a *Authenticator) Authenticate(ctx context.Context, rec userstore.UserRecord, scope Scope, accessID string, pinProvider pin.Provider, deviceName string) (Result, error) {
	return a.authenticate(ctx, rec, scope, accessID, pinProvider, deviceName, 0)
}

// AuthenticateRegCode satisfies verification.Authenticator: it runs a
// reg-code scoped attempt (no accessId, since QuickCode pairing has no
// cross-device session yet) and returns the authOTT it produced.
func (a *Authenticator) AuthenticateRegCode(ctx context.Context, userID, projectID string, pinProvider pin.Provider) (string, error) {
	ctx = transport.WithIdentity(ctx, userID, projectID)
	rec, err := a.Store.Get(ctx, userID, projectID)
	if err != nil {
		return "", err
	}
	if rec.Revoked {
		return "", ErrRevoked
	}
	if err := rec.Usable(); err != nil {
		return "", ErrInvalidUserData
	}

	rawPin, err := pin.Acquire(ctx, pinProvider)
	if err != nil {
		return "", ErrPinCancelled
	}
	pinInt, err := validatePin(rawPin, rec.PinLength)
	if err != nil {
		return "", err
	}

	authOTT, err := a.runPasses(ctx, rec, ScopeRegCode, "", pinInt)
	if err != nil {
		if revokeErr := a.maybeRevoke(ctx, rec, err); revokeErr != nil {
			return "", revokeErr
		}
		return "", err
	}
	return authOTT, nil
}

func (a *Authenticator) authenticate(ctx context.Context, rec userstore.UserRecord, scope Scope, accessID string, pinProvider pin.Provider, deviceName string, renewalDepth int) (Result, error) {
	ctx = transport.WithIdentity(ctx, rec.UserID, rec.ProjectID)

	if rec.Revoked {
		return Result{}, ErrRevoked
	}
	if err := rec.Usable(); err != nil {
		return Result{}, ErrInvalidUserData
	}

	if accessID != "" {
		a.updateSessionBestEffort(ctx, accessID, rec.UserID)
	}

	rawPin, err := pin.Acquire(ctx, pinProvider)
	if err != nil {
		return Result{}, ErrPinCancelled
	}
	pinInt, err := validatePin(rawPin, rec.PinLength)
	if err != nil {
		return Result{}, err
	}

	authOTT, err := a.runPasses(ctx, rec, scope, accessID, pinInt)
	if err != nil {
		if revokeErr := a.maybeRevoke(ctx, rec, err); revokeErr != nil {
			return Result{}, revokeErr
		}
		a.Audit.Log(ctx, audit.EventAuthFailed, rec.UserID, rec.ProjectID, map[string]string{"scope": string(scope), "stage": "pass"})
		return Result{}, err
	}

	resp, err := a.callAuthenticate(ctx, authOTT)
	if err != nil {
		if revokeErr := a.maybeRevoke(ctx, rec, err); revokeErr != nil {
			return Result{}, revokeErr
		}
		a.Audit.Log(ctx, audit.EventAuthFailed, rec.UserID, rec.ProjectID, map[string]string{"scope": string(scope), "stage": "authenticate"})
		return Result{}, err
	}

	if resp.DvsRegister != nil && resp.DvsRegister.Token != "" && renewalDepth < maxRenewalDepth {
		renewed, rerr := a.Registrator.OverrideRegistration(ctx, rec.UserID, rec.ProjectID, resp.DvsRegister.Token, samePinProvider(rawPin), deviceName)
		if rerr != nil {
			a.Logger.Warn("secret_renewal_failed", "user_id", rec.UserID, "project_id", rec.ProjectID, "error", rerr)
			return Result{Status: resp.Status, Message: resp.Message, JWT: resp.JWT, Record: rec, PinUsed: pinInt}, nil
		}
		return a.authenticate(ctx, renewed, scope, accessID, samePinProvider(rawPin), deviceName, renewalDepth+1)
	}

	a.Audit.Log(ctx, audit.EventAuthenticated, rec.UserID, rec.ProjectID, map[string]string{"scope": string(scope)})
	return Result{Status: resp.Status, Message: resp.Message, JWT: resp.JWT, Record: rec, PinUsed: pinInt}, nil
}

// runPasses runs clientPass1/serverPass1/clientPass2/serverPass2 and
// returns the authOTT that authenticate() will redeem.
func (a *Authenticator) runPasses(ctx context.Context, rec userstore.UserRecord, scope Scope, accessID string, pinInt int) (string, error) {
	combinedMpinID := rec.CombinedMpinID()

	proof1, err := a.Crypto.ClientPass1(combinedMpinID, rec.Token, pinInt)
	if err != nil {
		return "", &AuthenticationFailError{Cause: err}
	}

	pass1Req := pass1Request{
		MpinID: hex.EncodeToString(rec.MpinID),
		Dtas:   rec.Dtas,
		U:      hex.EncodeToString(proof1.U),
		Scope:  scope,
	}
	if len(rec.PublicKey) > 0 {
		pass1Req.PublicKey = hex.EncodeToString(rec.PublicKey)
	}

	resp1, err := a.Transport.Do(ctx, transport.Request{Method: "POST", Path: "/rps/v2/pass1", Body: pass1Req})
	if err != nil {
		return "", mapPass1Error(err)
	}
	var pass1Resp pass1Response
	if jsonErr := json.Unmarshal(resp1.Body, &pass1Resp); jsonErr != nil {
		return "", &AuthenticationFailError{Cause: jsonErr}
	}
	y, err := hex.DecodeString(pass1Resp.Y)
	if err != nil {
		return "", &AuthenticationFailError{Cause: err}
	}

	proof2, err := a.Crypto.ClientPass2(proof1.X, y, proof1.SEC)
	if err != nil {
		return "", &AuthenticationFailError{Cause: err}
	}

	pass2Req := pass2Request{MpinID: hex.EncodeToString(rec.MpinID), AccessID: accessID, V: hex.EncodeToString(proof2.V)}
	resp2, err := a.Transport.Do(ctx, transport.Request{Method: "POST", Path: "/rps/v2/pass2", Body: pass2Req})
	if err != nil {
		return "", mapPass2Error(err)
	}
	var pass2Resp pass2Response
	if jsonErr := json.Unmarshal(resp2.Body, &pass2Resp); jsonErr != nil {
		return "", &AuthenticationFailError{Cause: jsonErr}
	}
	return pass2Resp.AuthOTT, nil
}

func samePinProvider(digits string) pin.Provider {
	return func(_ context.Context, consume func(string)) error {
		consume(digits)
		return nil
	}
}

func validatePin(raw string, expectedLength int) (int, error) {
	n, err := pin.Validate(raw, expectedLength)
	if err != nil {
		return 0, ErrInvalidPin
	}
	return n, nil
}

func (a *Authenticator) updateSessionBestEffort(ctx context.Context, accessID, userID string) {
	_, err := a.Transport.Do(ctx, transport.Request{
		Method: "POST", Path: "/rps/v2/codeStatus",
		Body: updateSessionRequest{AccessID: accessID, UserID: userID, Status: "user"},
	})
	if err != nil {
		a.Logger.Warn("update_session_failed", "access_id", accessID, "user_id", userID, "error", err)
	}
}

func (a *Authenticator) callAuthenticate(ctx context.Context, authOTT string) (authenticateResponse, error) {
	resp, err := a.Transport.Do(ctx, transport.Request{
		Method: "POST", Path: "/rps/v2/authenticate",
		Body: authenticateRequest{AuthOTT: authOTT, Wam: "dvs"},
	})
	if err != nil {
		return authenticateResponse{}, mapAuthenticateError(err)
	}
	var out authenticateResponse
	if jsonErr := json.Unmarshal(resp.Body, &out); jsonErr != nil {
		return authenticateResponse{}, &AuthenticationFailError{Cause: jsonErr}
	}
	return out, nil
}

func mapPass1Error(err error) error {
	var clientErr *transport.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Code {
		case "MPINID_EXPIRED", "EXPIRED_MPINID", "MPINID_REVOKED", "REVOKED_MPINID":
			return ErrRevoked
		}
	}
	return &AuthenticationFailError{Cause: err}
}

func mapPass2Error(err error) error {
	var clientErr *transport.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Code {
		case "MPINID_REVOKED", "REVOKED_MPINID":
			return ErrRevoked
		}
	}
	return &AuthenticationFailError{Cause: err}
}

func mapAuthenticateError(err error) error {
	var clientErr *transport.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Code {
		case "INVALID_AUTH_SESSION", "INVALID_AUTHENTICATION_SESSION":
			return &InvalidAuthenticationSessionError{Cause: clientErr}
		case "INVALID_AUTH", "UNSUCCESSFUL_AUTHENTICATION":
			return &UnsuccessfulAuthenticationError{Cause: clientErr}
		case "MPINID_REVOKED", "REVOKED_MPINID":
			return ErrRevoked
		}
	}
	return &AuthenticationFailError{Cause: err}
}

// maybeRevoke flips rec.Revoked and persists it when err signals
// server-side revocation, idempotently: a second MPINID_REVOKED for an
// already revoked record is a no-op update, never a new row (spec.md §8
// property 4).
func (a *Authenticator) maybeRevoke(ctx context.Context, rec userstore.UserRecord, err error) error {
	if !errors.Is(err, ErrRevoked) {
		return nil
	}
	if rec.Revoked {
		return nil
	}
	rec.Revoked = true
	if updateErr := a.Store.Update(ctx, rec); updateErr != nil {
		return &AuthenticationFailError{Cause: updateErr}
	}
	a.Audit.Log(ctx, audit.EventRevoked, rec.UserID, rec.ProjectID, nil)
	return nil
}

// --- Entry-point extractors (spec.md §4.5) ---

// AuthenticateWithAppLink extracts the accessId from the URI fragment
// ("https://host/path#ACCESSID") and runs Authenticate with scope jwt.
func (a *Authenticator) AuthenticateWithAppLink(ctx context.Context, rec userstore.UserRecord, appLink string, pinProvider pin.Provider, deviceName string) (Result, error) {
	accessID, ok := accessIDFromFragment(appLink)
	if !ok {
		return Result{}, ErrInvalidAppLink
	}
	return a.Authenticate(ctx, rec, ScopeJWT, accessID, pinProvider, deviceName)
}

// AuthenticateWithQRCode extracts the accessId from a scanned QR payload
// URI the same way as an app link.
func (a *Authenticator) AuthenticateWithQRCode(ctx context.Context, rec userstore.UserRecord, qrPayload string, pinProvider pin.Provider, deviceName string) (Result, error) {
	accessID, ok := accessIDFromFragment(qrPayload)
	if !ok {
		return Result{}, ErrInvalidQRCode
	}
	return a.Authenticate(ctx, rec, ScopeJWT, accessID, pinProvider, deviceName)
}

// NotificationPayload is the push-notification body a host platform
// delivers to trigger authentication.
type NotificationPayload struct {
	ProjectID string `json:"projectID"`
	UserID    string `json:"userID"`
	QrURL     string `json:"qrURL"`
}

// AuthenticateWithNotificationPayload looks up the UserRecord named by
// the payload and authenticates using the accessId carried in qrURL.
func (a *Authenticator) AuthenticateWithNotificationPayload(ctx context.Context, payload NotificationPayload, pinProvider pin.Provider, deviceName string) (Result, error) {
	if payload.ProjectID == "" || payload.UserID == "" || payload.QrURL == "" {
		return Result{}, ErrInvalidPushNotificationPayload
	}
	accessID, ok := accessIDFromFragment(payload.QrURL)
	if !ok {
		return Result{}, ErrInvalidPushNotificationPayload
	}
	rec, err := a.Store.Get(ctx, payload.UserID, payload.ProjectID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return Result{}, ErrUserNotFound
		}
		return Result{}, &AuthenticationFailError{Cause: err}
	}
	return a.Authenticate(ctx, rec, ScopeJWT, accessID, pinProvider, deviceName)
}

// accessIDFromFragment takes the fragment of a URI as the access/session
// identifier, per spec.md §4.5/§4.7. A missing or empty fragment is not an
// accessId.
func accessIDFromFragment(uri string) (string, bool) {
	_, frag, found := strings.Cut(uri, "#")
	if !found || frag == "" {
		return "", false
	}
	return frag, true
}
