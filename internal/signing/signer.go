// Package signing implements the DocumentSigner component: it reuses the
// authentication proof to produce a designated-verifier signature over a
// caller-supplied message digest, optionally completing a cross-device
// signing session. The "re-read the record after a side-effecting call"
// pattern guards against signing with a stale key after a concurrent
// secret renewal.
package signing

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mpin-labs/mpinclient/internal/audit"
	"github.com/mpin-labs/mpinclient/internal/authentication"
	"github.com/mpin-labs/mpinclient/internal/cryptoprovider"
	"github.com/mpin-labs/mpinclient/internal/pin"
	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/mpin-labs/mpinclient/internal/userstore"
)

// Sentinel and typed errors — spec.md §4.6/§7's signing taxonomy.
var (
	ErrEmptyMessage       = errors.New("signing: message must not be empty")
	ErrEmptySessionID     = errors.New("signing: sessionId must not be blank when a session is provided")
	ErrInvalidSigningSession = errors.New("signing: session rejected by server")
)

// SigningFailError wraps any other server or crypto failure.
type SigningFailError struct{ Cause error }

func (e *SigningFailError) Error() string { return fmt.Sprintf("signing: failed: %v", e.Cause) }
func (e *SigningFailError) Unwrap() error  { return e.Cause }

// Signature is the emitted designated-verifier signature of spec.md §3:
// MpinID, U, V, PublicKey and Hash (the caller-supplied digest) are
// lowercase hex; Dtas is the record's dtas string as stored; Timestamp is
// whole seconds since the Unix epoch.
type Signature struct {
	MpinID    string `json:"mpinId"`
	U         string `json:"U"`
	V         string `json:"V"`
	PublicKey string `json:"publicKey"`
	Dtas      string `json:"dtas"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// SessionDetails is the optional cross-device signing session this
// signature should be delivered to.
type SessionDetails struct {
	SessionID string
}

type signingSessionUpdateRequest struct {
	SessionID string    `json:"sessionId"`
	Signature Signature `json:"signature"`
	Timestamp int64     `json:"timestamp"`
}

type signingSessionUpdateResponse struct {
	Status string `json:"status"`
}

// Signer drives the authenticate(dvs-auth) → sign → optional
// session-completion flow.
type Signer struct {
	Transport     transport.Transport
	Crypto        cryptoprovider.Provider
	Store         userstore.Store
	Authenticator *authentication.Authenticator
	Logger        *slog.Logger
	Audit         audit.Service
}

func New(t transport.Transport, c cryptoprovider.Provider, s userstore.Store, a *authentication.Authenticator, logger *slog.Logger, auditSvc audit.Service) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	if auditSvc == nil {
		auditSvc = audit.New()
	}
	return &Signer{Transport: t, Crypto: c, Store: s, Authenticator: a, Logger: logger, Audit: auditSvc}
}

// Sign authenticates rec with scope dvs-auth, then signs message with the
// (possibly renewed) record's signing identity, optionally completing the
// cross-device session named by session.
func (s *Signer) Sign(ctx context.Context, rec userstore.UserRecord, message []byte, pinProvider pin.Provider, deviceName string, session *SessionDetails) (Signature, error) {
	ctx = transport.WithIdentity(ctx, rec.UserID, rec.ProjectID)
	if err := rec.Usable(); err != nil {
		return Signature{}, &SigningFailError{Cause: err}
	}
	if rec.Revoked {
		return Signature{}, authentication.ErrRevoked
	}
	if len(message) == 0 {
		return Signature{}, ErrEmptyMessage
	}
	if session != nil && session.SessionID == "" {
		return Signature{}, ErrEmptySessionID
	}

	authResult, err := s.Authenticator.Authenticate(ctx, rec, authentication.ScopeDVSAuth, "", pinProvider, deviceName)
	if err != nil {
		switch {
		case errors.Is(err, authentication.ErrRevoked):
			return Signature{}, authentication.ErrRevoked
		case isUnsuccessfulAuthentication(err):
			return Signature{}, err
		default:
			return Signature{}, &SigningFailError{Cause: err}
		}
	}

	signingRec, err := s.Store.Get(ctx, rec.UserID, rec.ProjectID)
	if err != nil {
		return Signature{}, &SigningFailError{Cause: err}
	}
	if err := signingRec.CanSign(); err != nil {
		return Signature{}, &SigningFailError{Cause: err}
	}

	timestamp := time.Now().Unix()
	combinedMpinID := signingRec.CombinedMpinID()

	signResult, err := s.Crypto.Sign(message, combinedMpinID, signingRec.Token, authResult.PinUsed, timestamp)
	if err != nil {
		return Signature{}, &SigningFailError{Cause: err}
	}
	if len(signResult.U) == 0 || len(signResult.V) == 0 {
		return Signature{}, &SigningFailError{Cause: errors.New("signing: empty U or V from crypto provider")}
	}

	sig := Signature{
		MpinID:    hex.EncodeToString(signingRec.MpinID),
		U:         hex.EncodeToString(signResult.U),
		V:         hex.EncodeToString(signResult.V),
		PublicKey: hex.EncodeToString(signingRec.PublicKey),
		Dtas:      signingRec.Dtas,
		Hash:      hex.EncodeToString(message),
		Timestamp: timestamp,
	}

	if session != nil {
		if err := s.completeSession(ctx, session.SessionID, sig, timestamp); err != nil {
			return sig, err
		}
	}

	s.Audit.Log(ctx, audit.EventSigned, rec.UserID, rec.ProjectID, map[string]string{"hash": sig.Hash})
	return sig, nil
}

func (s *Signer) completeSession(ctx context.Context, sessionID string, sig Signature, timestamp int64) error {
	resp, err := s.Transport.Do(ctx, transport.Request{
		Method: "PUT", Path: "/dvs/session/" + sessionID,
		Body: signingSessionUpdateRequest{SessionID: sessionID, Signature: sig, Timestamp: timestamp},
	})
	if err != nil {
		var clientErr *transport.ClientError
		if errors.As(err, &clientErr) && clientErr.Code == "INVALID_REQUEST_PARAMETERS" && clientErr.ParamsContext() == "id" {
			return ErrInvalidSigningSession
		}
		return &SigningFailError{Cause: err}
	}

	var out signingSessionUpdateResponse
	if jsonErr := json.Unmarshal(resp.Body, &out); jsonErr != nil {
		return &SigningFailError{Cause: jsonErr}
	}
	if out.Status != "signed" {
		return ErrInvalidSigningSession
	}
	return nil
}

func isUnsuccessfulAuthentication(err error) bool {
	var unsuccessful *authentication.UnsuccessfulAuthenticationError
	return errors.As(err, &unsuccessful)
}
