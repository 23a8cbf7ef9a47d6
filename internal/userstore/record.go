// Package userstore persists the device-local half of a user's M-Pin
// identity. It never exposes the token field through logging or any debug
// representation — see UserRecord.LogValue.
package userstore

import (
	"errors"
	"log/slog"
)

// Errors returned when a UserRecord fails a usability precondition.
var (
	ErrInvalidUserData = errors.New("userstore: mpinId, token and dtas must all be non-empty")
	ErrEmptyPublicKey  = errors.New("userstore: record has no signing public key")
	ErrNotFound        = errors.New("userstore: no record for that userId/projectId")
)

// UserRecord is the persistent identity this device holds for one
// (userId, projectId) pair. Token is SENSITIVE: it must never be logged,
// transmitted, or serialized outside the Store.
type UserRecord struct {
	UserID    string
	ProjectID string
	Revoked   bool
	PinLength int
	MpinID    []byte
	Token     []byte
	Dtas      string
	PublicKey []byte // optional; non-empty iff this identity supports signing
}

// Key returns the record's primary key.
func (u UserRecord) Key() (userID, projectID string) { return u.UserID, u.ProjectID }

// Usable reports whether the record has everything authenticate/sign need.
func (u UserRecord) Usable() error {
	if len(u.MpinID) == 0 || len(u.Token) == 0 || u.Dtas == "" {
		return ErrInvalidUserData
	}
	return nil
}

// CanSign reports whether the record carries a signing public key.
func (u UserRecord) CanSign() error {
	if len(u.PublicKey) == 0 {
		return ErrEmptyPublicKey
	}
	return nil
}

// CombinedMpinID is mpinId ++ publicKey when a signing identity is present,
// else mpinId alone. This is the wire-level value passed to every crypto
// primitive and MUST be preserved bit-exact across the protocol.
func (u UserRecord) CombinedMpinID() []byte {
	if len(u.PublicKey) == 0 {
		return u.MpinID
	}
	out := make([]byte, 0, len(u.MpinID)+len(u.PublicKey))
	out = append(out, u.MpinID...)
	out = append(out, u.PublicKey...)
	return out
}

// LogValue implements slog.LogValuer so that logging a UserRecord never
// leaks Token, matching the store's "never through any logging or debug
// representation" contract.
func (u UserRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", u.UserID),
		slog.String("project_id", u.ProjectID),
		slog.Bool("revoked", u.Revoked),
		slog.Int("pin_length", u.PinLength),
		slog.Bool("has_signing_key", len(u.PublicKey) > 0),
	)
}
