// Package registration implements the Registrator component: the
// two-stage registration pipeline that assembles a DVS client token from
// two server-issued shares and a user PIN.
package registration

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mpin-labs/mpinclient/internal/audit"
	"github.com/mpin-labs/mpinclient/internal/cryptoprovider"
	"github.com/mpin-labs/mpinclient/internal/pin"
	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/mpin-labs/mpinclient/internal/userstore"
)

// Sentinel and typed errors — the registration taxonomy of spec.md §7.
var (
	ErrEmptyUserID              = errors.New("registration: userId must not be empty")
	ErrInvalidActivationToken   = errors.New("registration: activation token invalid or expired")
	ErrProjectMismatch          = errors.New("registration: activation token belongs to a different project")
	ErrUnsupportedEllipticCurve = errors.New("registration: server requested an unsupported elliptic curve")
	ErrPinCancelled             = errors.New("registration: pin acquisition was cancelled")
	ErrInvalidPin               = errors.New("registration: pin length or format mismatch")
)

// RegistrationFailError wraps any other server or crypto failure.
type RegistrationFailError struct{ Cause error }

func (e *RegistrationFailError) Error() string { return fmt.Sprintf("registration: failed: %v", e.Cause) }
func (e *RegistrationFailError) Unwrap() error  { return e.Cause }

// Registrator drives the two-stage registration flow described in
// spec.md §4.4.
type Registrator struct {
	Transport transport.Transport
	Crypto    cryptoprovider.Provider
	Store     userstore.Store
	Logger    *slog.Logger
	Audit     audit.Service
}

func New(t transport.Transport, c cryptoprovider.Provider, s userstore.Store, logger *slog.Logger, auditSvc audit.Service) *Registrator {
	if logger == nil {
		logger = slog.Default()
	}
	if auditSvc == nil {
		auditSvc = audit.New()
	}
	return &Registrator{Transport: t, Crypto: c, Store: s, Logger: logger, Audit: auditSvc}
}

type registerRequest struct {
	UserID          string `json:"userId"`
	DeviceName      string `json:"deviceName"`
	ActivationToken string `json:"activationToken"`
}

type registerResponse struct {
	MpinID string `json:"mpinId"`
	RegOTT string `json:"regOTT"`
	Dtas   string `json:"dtas"`

	PinLength     int    `json:"pinLength"`
	SignatureURL  string `json:"signatureUrl"`
}

type signatureURLResponse struct {
	ClientSecretShareURL    string `json:"clientSecretShareURL"`
	DvsClientSecretShareURL string `json:"dvsClientSecretShareURL"`
}

type shareResponse struct {
	ClientSecretShare string `json:"clientSecretShare"`
}

type dvsRegisterRequest struct {
	PublicKey string `json:"publicKey"`
	RegOTT    string `json:"regOTT"`
}

type dvsRegisterResponse struct {
	DvsClientSecretShareURL string `json:"dvsClientSecretShareURL"`
	MpinID                  string `json:"mpinId"`
	Dtas                    string `json:"dtas"`
}

// Register drives register → fetch share1 → acquire PIN → generate
// signing keys → dvs-register → fetch share2 → combine → derive token →
// persist. It overwrites any existing record for the same
// (userId, projectId).
func (r *Registrator) Register(ctx context.Context, userID, projectID, activationToken string, pinProvider pin.Provider, deviceName string) (userstore.UserRecord, error) {
	if userID == "" {
		return userstore.UserRecord{}, ErrEmptyUserID
	}
	ctx = transport.WithIdentity(ctx, userID, projectID)

	regResp, err := r.register(ctx, userID, deviceName, activationToken)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	sigURLResp, err := r.fetchSignatureURLs(ctx, regResp.SignatureURL)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	share1, err := r.fetchShare(ctx, sigURLResp.ClientSecretShareURL)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	rawPin, err := pin.Acquire(ctx, pinProvider)
	if err != nil {
		return userstore.UserRecord{}, ErrPinCancelled
	}
	pinInt, err := validatePin(rawPin, regResp.PinLength)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	keyPair, err := r.Crypto.GenerateSigningKeyPair()
	if err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: err}
	}

	dvsResp, err := r.dvsRegister(ctx, keyPair.PublicKey, regResp.RegOTT)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	share2, err := r.fetchShare(ctx, dvsResp.DvsClientSecretShareURL)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	clientSecret, err := r.Crypto.CombineClientSecret(share1, share2)
	if err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: err}
	}

	mpinID, err := hex.DecodeString(regResp.MpinID)
	if err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: fmt.Errorf("decoding mpinId: %w", err)}
	}

	token, err := r.Crypto.DVSClientToken(clientSecret, keyPair.PrivateKey, mpinID, pinInt)
	if err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: err}
	}

	rec := userstore.UserRecord{
		UserID: userID, ProjectID: projectID,
		PinLength: regResp.PinLength,
		MpinID:    mpinID,
		Token:     token,
		Dtas:      regResp.Dtas,
		PublicKey: keyPair.PublicKey,
	}

	if err := userstore.Upsert(ctx, r.Store, rec); err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: err}
	}

	r.Logger.Info("registration_completed", "record", rec)
	r.Audit.Log(ctx, audit.EventRegistered, userID, projectID, map[string]string{"device_name": deviceName})
	return rec, nil
}

// OverrideRegistration performs only the dvs-register step, used by the
// authenticator to rotate the signing identity when the server requests
// secret renewal (spec.md §4.5). It preserves the caller-supplied PIN
// behavior by invoking pinProvider exactly once, and atomically replaces
// the existing record.
func (r *Registrator) OverrideRegistration(ctx context.Context, userID, projectID, dvsRegistrationToken string, pinProvider pin.Provider, deviceName string) (userstore.UserRecord, error) {
	ctx = transport.WithIdentity(ctx, userID, projectID)
	existing, err := r.Store.Get(ctx, userID, projectID)
	if err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: err}
	}

	rawPin, err := pin.Acquire(ctx, pinProvider)
	if err != nil {
		return userstore.UserRecord{}, ErrPinCancelled
	}
	pinInt, err := validatePin(rawPin, existing.PinLength)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	keyPair, err := r.Crypto.GenerateSigningKeyPair()
	if err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: err}
	}

	dvsResp, err := r.dvsRegister(ctx, keyPair.PublicKey, dvsRegistrationToken)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	share2, err := r.fetchShare(ctx, dvsResp.DvsClientSecretShareURL)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	// Renewal still requires a fresh share1: the server's dvsRegister
	// response for a renewal carries the same mpinId, so reuse the
	// register-time clientSecretShareURL is not available here — the
	// server is expected to re-derive share1 from the still-valid mpinId
	// via the same signature URL flow as initial registration.
	sigURLResp, err := r.fetchSignatureURLs(ctx, "/rps/v2/signature/"+dvsResp.MpinID)
	if err != nil {
		return userstore.UserRecord{}, err
	}
	share1, err := r.fetchShare(ctx, sigURLResp.ClientSecretShareURL)
	if err != nil {
		return userstore.UserRecord{}, err
	}

	clientSecret, err := r.Crypto.CombineClientSecret(share1, share2)
	if err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: err}
	}

	mpinID, err := hex.DecodeString(dvsResp.MpinID)
	if err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: fmt.Errorf("decoding mpinId: %w", err)}
	}

	token, err := r.Crypto.DVSClientToken(clientSecret, keyPair.PrivateKey, mpinID, pinInt)
	if err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: err}
	}

	renewed := existing
	renewed.MpinID = mpinID
	renewed.Token = token
	renewed.Dtas = dvsResp.Dtas
	renewed.PublicKey = keyPair.PublicKey
	renewed.Revoked = false

	if err := r.Store.Update(ctx, renewed); err != nil {
		return userstore.UserRecord{}, &RegistrationFailError{Cause: err}
	}

	r.Logger.Info("registration_renewed", "record", renewed)
	r.Audit.Log(ctx, audit.EventRenewed, userID, projectID, map[string]string{"device_name": deviceName})
	return renewed, nil
}

func (r *Registrator) register(ctx context.Context, userID, deviceName, activationToken string) (registerResponse, error) {
	resp, err := r.Transport.Do(ctx, transport.Request{
		Method: "POST", Path: "/rps/v2/user",
		Body: registerRequest{UserID: userID, DeviceName: deviceName, ActivationToken: activationToken},
	})
	if err != nil {
		return registerResponse{}, mapServerError(err)
	}
	var out registerResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return registerResponse{}, &RegistrationFailError{Cause: err}
	}
	return out, nil
}

func (r *Registrator) fetchSignatureURLs(ctx context.Context, signatureURL string) (signatureURLResponse, error) {
	resp, err := r.Transport.Do(ctx, transport.Request{Method: "GET", Path: signatureURL})
	if err != nil {
		return signatureURLResponse{}, mapServerError(err)
	}
	var out signatureURLResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return signatureURLResponse{}, &RegistrationFailError{Cause: err}
	}
	return out, nil
}

func (r *Registrator) fetchShare(ctx context.Context, shareURL string) ([]byte, error) {
	resp, err := r.Transport.Do(ctx, transport.Request{Method: "GET", Path: shareURL})
	if err != nil {
		return nil, mapServerError(err)
	}
	var out shareResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, &RegistrationFailError{Cause: err}
	}
	share, err := hex.DecodeString(out.ClientSecretShare)
	if err != nil {
		return nil, &RegistrationFailError{Cause: fmt.Errorf("decoding share: %w", err)}
	}
	return share, nil
}

func (r *Registrator) dvsRegister(ctx context.Context, publicKey []byte, regOTT string) (dvsRegisterResponse, error) {
	resp, err := r.Transport.Do(ctx, transport.Request{
		Method: "POST", Path: "/rps/v2/dvsregister",
		Body: dvsRegisterRequest{PublicKey: hex.EncodeToString(publicKey), RegOTT: regOTT},
	})
	if err != nil {
		return dvsRegisterResponse{}, mapServerError(err)
	}
	var out dvsRegisterResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return dvsRegisterResponse{}, &RegistrationFailError{Cause: err}
	}
	return out, nil
}

func mapServerError(err error) error {
	var clientErr *transport.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Code {
		case "INVALID_ACTIVATION_TOKEN":
			return ErrInvalidActivationToken
		case "PROJECT_MISMATCH":
			return ErrProjectMismatch
		case "UNSUPPORTED_ELLIPTIC_CURVE":
			return ErrUnsupportedEllipticCurve
		}
	}
	return &RegistrationFailError{Cause: err}
}

func validatePin(raw string, expectedLength int) (int, error) {
	n, err := pin.Validate(raw, expectedLength)
	if err != nil {
		return 0, ErrInvalidPin
	}
	return n, nil
}
