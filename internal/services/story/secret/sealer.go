// Package secret seals event payloads at rest with per-chat AES-GCM keys.
package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the master key length in bytes.
const KeySize = 32

const (
	hkdfInfoPrefix = "storyloom.chat.payload.v1:"
	sealedPrefix   = "v1:"
)

// ErrNotSealed indicates a payload does not carry the sealed form.
var ErrNotSealed = errors.New("payload is not sealed")

// ChatSealer seals event payloads with a key derived per chat from one master
// key. Sealed payloads are JSON strings so they stay valid in JSON columns.
type ChatSealer struct {
	master []byte
}

// NewChatSealer builds a sealer from a raw 32-byte master key.
func NewChatSealer(master []byte) (*ChatSealer, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(master))
	}
	return &ChatSealer{master: bytes.Clone(master)}, nil
}

// ParseKey decodes a base64 master key (standard or raw encoding).
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		key, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Seal encrypts payload for chatID. eventID is bound as associated data so a
// sealed payload cannot be moved to another event.
func (s *ChatSealer) Seal(chatID, eventID string, payload []byte) ([]byte, error) {
	aead, err := s.aead(chatID)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, payload, []byte(eventID))
	return json.Marshal(sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed))
}

// Open decrypts a payload produced by Seal. Payloads that are not in sealed
// form are returned unchanged, so logs written before sealing was enabled
// still replay.
func (s *ChatSealer) Open(chatID, eventID string, payload []byte) ([]byte, error) {
	raw, err := unwrap(payload)
	if errors.Is(err, ErrNotSealed) {
		return payload, nil
	}
	if err != nil {
		return nil, err
	}
	aead, err := s.aead(chatID)
	if err != nil {
		return nil, err
	}
	nonceSize := aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("sealed payload is too short")
	}
	plaintext, err := aead.Open(nil, raw[:nonceSize], raw[nonceSize:], []byte(eventID))
	if err != nil {
		return nil, fmt.Errorf("decrypt sealed payload: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether payload is in sealed form.
func IsSealed(payload []byte) bool {
	_, err := unwrap(payload)
	return err == nil
}

func unwrap(payload []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return nil, ErrNotSealed
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return nil, fmt.Errorf("decode sealed payload: %w", err)
	}
	encoded, ok := strings.CutPrefix(text, sealedPrefix)
	if !ok {
		return nil, ErrNotSealed
	}
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode sealed payload: %w", err)
	}
	return raw, nil
}

func (s *ChatSealer) aead(chatID string) (cipher.AEAD, error) {
	if s == nil || len(s.master) == 0 {
		return nil, fmt.Errorf("sealer is not configured")
	}
	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, s.master, nil, []byte(hkdfInfoPrefix+chatID))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive chat key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
