// Envelope encryption for the Token field: AES-256-GCM with a random nonce
// per seal, authenticated ciphertext, and an "enc:" string prefix marking
// sealed values so a plaintext value is never mistaken for ciphertext.
package userstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "enc:"

// TokenSealer seals and opens the Token field for at-rest storage. The
// master key is 32 bytes; a per-record subkey is derived from it with HKDF
// so no two records are ever encrypted under the identical raw key bytes.
type TokenSealer struct {
	masterKey []byte
}

// NewTokenSealer builds a sealer from a 32-byte (64 hex character) key.
func NewTokenSealer(masterKeyHex string) (*TokenSealer, error) {
	if len(masterKeyHex) != 64 {
		return nil, fmt.Errorf("userstore: master key must be 32 bytes (64 hex chars), got %d chars", len(masterKeyHex))
	}
	key := make([]byte, 32)
	if _, err := hex.Decode(key, []byte(masterKeyHex)); err != nil {
		return nil, fmt.Errorf("userstore: invalid master key hex: %w", err)
	}
	return &TokenSealer{masterKey: key}, nil
}

func (s *TokenSealer) subkey(userID, projectID string) ([]byte, error) {
	info := []byte("mpinclient-token-v1:" + projectID + ":" + userID)
	kdf := hkdf.New(newSHA256, s.masterKey, nil, info)
	sub := make([]byte, 32)
	if _, err := io.ReadFull(kdf, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Seal encrypts plaintext for the given record's primary key.
func (s *TokenSealer) Seal(userID, projectID string, plaintext []byte) (string, error) {
	sub, err := s.subkey(userID, projectID)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(sub)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a value previously produced by Seal for the same key.
func (s *TokenSealer) Open(userID, projectID string, sealed string) ([]byte, error) {
	if len(sealed) < len(sealedPrefix) || sealed[:len(sealedPrefix)] != sealedPrefix {
		return nil, errors.New("userstore: sealed value missing enc: prefix")
	}
	raw, err := base64.StdEncoding.DecodeString(sealed[len(sealedPrefix):])
	if err != nil {
		return nil, fmt.Errorf("userstore: invalid base64 ciphertext: %w", err)
	}
	sub, err := s.subkey(userID, projectID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(sub)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("userstore: ciphertext too short")
	}
	nonce, ct := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("userstore: token decryption failed (tampered or wrong key): %w", err)
	}
	return plaintext, nil
}
