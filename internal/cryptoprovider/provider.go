// Package cryptoprovider defines the capability contract for the M-Pin
// pairing-curve primitives. Implementations are deterministic given their
// inputs and perform no I/O; the pairing arithmetic itself (BN254CX) is out
// of scope for this module and must be supplied by the host application.
package cryptoprovider

import "errors"

// Errors returned by the six operations. Callers should treat these as
// opaque failure signals — the underlying cause, if any, is wrapped.
var (
	ErrCombine = errors.New("cryptoprovider: failed to combine client secret shares")
	ErrPass1   = errors.New("cryptoprovider: pass-1 proof generation failed")
	ErrPass2   = errors.New("cryptoprovider: pass-2 proof generation failed")
	ErrKeyGen  = errors.New("cryptoprovider: signing key pair generation failed")
	ErrToken   = errors.New("cryptoprovider: dvs client token derivation failed")
	ErrSign    = errors.New("cryptoprovider: designated-verifier signing failed")
)

// Pass1Proof is the ephemeral output of the first M-Pin client pass. SEC
// must be discarded by the caller once ClientPass2 has consumed it.
type Pass1Proof struct {
	X   []byte
	SEC []byte
	U   []byte
}

// Pass2Proof is the ephemeral output of the second M-Pin client pass.
type Pass2Proof struct {
	V []byte
}

// KeyPair is a signing identity produced for DVS registration.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// SignResult is the designated-verifier signature material for one message.
type SignResult struct {
	U []byte
	V []byte
}

// Provider isolates the pairing-curve primitives behind a narrow surface so
// the protocol orchestration in internal/registration, internal/authentication
// and internal/signing never depends on a specific BN254CX implementation.
type Provider interface {
	// CombineClientSecret merges the two server-issued shares into one
	// client secret.
	CombineClientSecret(share1, share2 []byte) ([]byte, error)

	// ClientPass1 runs the first pass of the M-Pin protocol for the given
	// identity, token and PIN.
	ClientPass1(mpinID, token []byte, pin int) (Pass1Proof, error)

	// ClientPass2 runs the second pass given the server's challenge Y and
	// the SEC produced by ClientPass1.
	ClientPass2(x, y, sec []byte) (Pass2Proof, error)

	// GenerateSigningKeyPair produces a fresh DVS key pair.
	GenerateSigningKeyPair() (KeyPair, error)

	// DVSClientToken derives the DVS client token from the combined client
	// secret, the private key half, the identity and the PIN.
	DVSClientToken(clientSecret, privateKey, mpinID []byte, pin int) ([]byte, error)

	// Sign produces a designated-verifier signature over message using the
	// signing identity's mpinId/token/PIN and a timestamp in whole seconds
	// since the Unix epoch.
	Sign(message, signingMpinID, signingToken []byte, pin int, timestampSeconds int64) (SignResult, error)
}
