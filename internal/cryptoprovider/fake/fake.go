// Package fake provides a deterministic cryptoprovider.Provider double for
// tests. It does not implement the M-Pin pairing protocol — it only
// produces stable, inspectable byte strings so that the authenticator,
// registrator and signer packages can be exercised without a real BN254CX
// backend.
package fake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/mpin-labs/mpinclient/internal/cryptoprovider"
)

// Provider is a deterministic, non-cryptographic stand-in for the real
// pairing-curve implementation. Every method is pure: same inputs, same
// outputs, always.
type Provider struct {
	// FailCombine, FailPass1, FailPass2, FailKeyGen, FailToken and FailSign
	// force the matching operation to return its sentinel error, letting
	// tests exercise the *Error branches without a misbehaving transport.
	FailCombine bool
	FailPass1   bool
	FailPass2   bool
	FailKeyGen  bool
	FailToken   bool
	FailSign    bool
}

func New() *Provider { return &Provider{} }

func mac(key string, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, []byte(key))
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func (p *Provider) CombineClientSecret(share1, share2 []byte) ([]byte, error) {
	if p.FailCombine {
		return nil, cryptoprovider.ErrCombine
	}
	if len(share1) == 0 || len(share2) == 0 {
		return nil, cryptoprovider.ErrCombine
	}
	return mac("combine", share1, share2), nil
}

func (p *Provider) ClientPass1(mpinID, token []byte, pin int) (cryptoprovider.Pass1Proof, error) {
	if p.FailPass1 {
		return cryptoprovider.Pass1Proof{}, cryptoprovider.ErrPass1
	}
	if len(mpinID) == 0 || len(token) == 0 {
		return cryptoprovider.Pass1Proof{}, cryptoprovider.ErrPass1
	}
	pinBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(pinBuf, uint64(pin))
	x := mac("pass1-x", mpinID, token, pinBuf)
	sec := mac("pass1-sec", mpinID, token, pinBuf)
	u := mac("pass1-u", mpinID, x)
	return cryptoprovider.Pass1Proof{X: x, SEC: sec, U: u}, nil
}

func (p *Provider) ClientPass2(x, y, sec []byte) (cryptoprovider.Pass2Proof, error) {
	if p.FailPass2 {
		return cryptoprovider.Pass2Proof{}, cryptoprovider.ErrPass2
	}
	if len(x) == 0 || len(y) == 0 || len(sec) == 0 {
		return cryptoprovider.Pass2Proof{}, cryptoprovider.ErrPass2
	}
	return cryptoprovider.Pass2Proof{V: mac("pass2-v", x, y, sec)}, nil
}

func (p *Provider) GenerateSigningKeyPair() (cryptoprovider.KeyPair, error) {
	if p.FailKeyGen {
		return cryptoprovider.KeyPair{}, cryptoprovider.ErrKeyGen
	}
	priv := mac("keygen-priv", []byte("seed"))
	pub := mac("keygen-pub", priv)
	return cryptoprovider.KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

func (p *Provider) DVSClientToken(clientSecret, privateKey, mpinID []byte, pin int) ([]byte, error) {
	if p.FailToken {
		return nil, cryptoprovider.ErrToken
	}
	if len(clientSecret) == 0 || len(privateKey) == 0 || len(mpinID) == 0 {
		return nil, cryptoprovider.ErrToken
	}
	pinBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(pinBuf, uint64(pin))
	return mac("dvstoken", clientSecret, privateKey, mpinID, pinBuf), nil
}

func (p *Provider) Sign(message, signingMpinID, signingToken []byte, pin int, timestampSeconds int64) (cryptoprovider.SignResult, error) {
	if p.FailSign {
		return cryptoprovider.SignResult{}, cryptoprovider.ErrSign
	}
	if len(message) == 0 || len(signingMpinID) == 0 || len(signingToken) == 0 {
		return cryptoprovider.SignResult{}, errors.New("fake: empty sign input")
	}
	tsBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(tsBuf, uint64(timestampSeconds))
	pinBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(pinBuf, uint64(pin))
	u := mac("sign-u", message, signingMpinID, pinBuf, tsBuf)
	v := mac("sign-v", message, signingToken, pinBuf, tsBuf)
	return cryptoprovider.SignResult{U: u, V: v}, nil
}

var _ cryptoprovider.Provider = (*Provider)(nil)
