package repository

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

var ErrTokenUnsealable = errors.New("stored token cannot be decrypted")

// tokenKey derives the token encryption key from the raw session id. Storage
// only ever sees HashSessionID(rawID), which is a different digest.
func tokenKey(rawID string) [32]byte {
	return blake2b.Sum256([]byte("parkwise/session-token/" + rawID))
}

// SealToken encrypts a backend token so it can only be read back by a caller
// holding the raw session id.
func SealToken(rawID, token string) (string, error) {
	key := tokenKey(rawID)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return "", fmt.Errorf("error creating token cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(token)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("error generating token nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// OpenToken reverses SealToken.
func OpenToken(rawID, sealed string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrTokenUnsealable
	}
	key := tokenKey(rawID)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return "", fmt.Errorf("error creating token cipher: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return "", ErrTokenUnsealable
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrTokenUnsealable
	}
	return string(plain), nil
}
