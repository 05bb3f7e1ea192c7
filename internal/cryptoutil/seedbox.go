// Package cryptoutil provides the at-rest seed encryption and the shared-key
// request signatures used by the oracle's ingestion endpoints.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	masterKeyLen = 32
	gcmNonceLen  = 12
	gcmTagLen    = 16
)

// sealedSeed is the stored ciphertext envelope. The layout (hex iv, hex
// ciphertext, detached hex tag) is shared with the other oracle clients, so
// seeds sealed by any of them decrypt here and vice versa.
type sealedSeed struct {
	IV      string `json:"iv"`
	Content string `json:"content"`
	Tag     string `json:"tag"`
}

// SeedBox seals and opens user OTP seeds with AES-256-GCM under a single
// master key. Plaintext seeds are never persisted or logged.
type SeedBox struct {
	aead cipher.AEAD
}

// NewSeedBox builds a SeedBox from a 32-byte hex master key.
func NewSeedBox(masterKeyHex string) (*SeedBox, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}
	if len(key) != masterKeyLen {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeyLen, len(key))
	}
	return newSeedBoxFromKey(key)
}

// NewSeedBoxFromPassphrase derives the master key from a passphrase and salt
// via scrypt. Used when the deployment cannot provision a raw hex key.
func NewSeedBoxFromPassphrase(passphrase, salt string) (*SeedBox, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(salt), 1<<15, 8, 1, masterKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}
	return newSeedBoxFromKey(key)
}

func newSeedBoxFromKey(key []byte) (*SeedBox, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return &SeedBox{aead: aead}, nil
}

// Seal encrypts a plaintext seed and returns the JSON envelope for storage.
func (s *SeedBox) Seal(seed string) (string, error) {
	iv := make([]byte, gcmNonceLen)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Go's GCM appends the tag to the ciphertext; the envelope keeps it
	// detached, so split it off.
	sealed := s.aead.Seal(nil, iv, []byte(seed), nil)
	content := sealed[:len(sealed)-gcmTagLen]
	tag := sealed[len(sealed)-gcmTagLen:]

	enc, err := json.Marshal(sealedSeed{
		IV:      hex.EncodeToString(iv),
		Content: hex.EncodeToString(content),
		Tag:     hex.EncodeToString(tag),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sealed seed: %w", err)
	}
	return string(enc), nil
}

// Open decrypts a stored envelope. Any corruption (bad JSON, bad hex, tag
// mismatch, wrong key) returns an error; callers treat that as terminal.
func (s *SeedBox) Open(encJSON string) (string, error) {
	var env sealedSeed
	if err := json.Unmarshal([]byte(encJSON), &env); err != nil {
		return "", fmt.Errorf("invalid sealed seed envelope: %w", err)
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != gcmNonceLen {
		return "", fmt.Errorf("invalid sealed seed nonce")
	}
	content, err := hex.DecodeString(env.Content)
	if err != nil {
		return "", fmt.Errorf("invalid sealed seed content")
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil || len(tag) != gcmTagLen {
		return "", fmt.Errorf("invalid sealed seed tag")
	}

	plain, err := s.aead.Open(nil, iv, append(content, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt seed: %w", err)
	}
	return string(plain), nil
}
