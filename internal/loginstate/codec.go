package loginstate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Codec encrypts and decrypts login state using AES-256-GCM.
//
// The encrypted output is "base64(ciphertext)|base64(nonce)" so the record can
// travel as a single cookie value. A fresh nonce is generated per call.
type Codec struct {
	key []byte
}

// NewCodec creates a codec from a 32-byte AES-256 key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("login state key must be exactly 32 bytes for AES-256, got %d", len(key))
	}
	return &Codec{key: key}, nil
}

// Encrypt serializes and encrypts a login state record.
func (c *Codec) Encrypt(state *State) (string, error) {
	plaintext, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to serialize login state: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext) + "|" + base64.StdEncoding.EncodeToString(nonce), nil
}

// Decrypt decodes and decrypts an encrypted login state value.
//
// Any failure (bad encoding, wrong key, tampered ciphertext, malformed JSON)
// returns nil. Callers treat a nil state as "restart the login", never as a
// fatal error, so no failure detail is surfaced.
func (c *Codec) Decrypt(encoded string) *State {
	ciphertextPart, noncePart, ok := strings.Cut(encoded, "|")
	if !ok {
		return nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextPart)
	if err != nil {
		return nil
	}
	nonce, err := base64.StdEncoding.DecodeString(noncePart)
	if err != nil {
		return nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil
	}
	if len(nonce) != gcm.NonceSize() {
		return nil
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil
	}

	var state State
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil
	}
	return &state
}
