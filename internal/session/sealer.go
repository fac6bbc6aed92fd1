// Package session creates and verifies sealed session tokens: opaque,
// authenticated, time-bounded credentials carried by the client.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalid is returned for any token that fails the integrity check or
	// cannot be parsed. The payload of such a token is never inspected.
	ErrInvalid = errors.New("invalid session token")
	// ErrExpired is returned for an authentic token past its expiry.
	ErrExpired = errors.New("session token expired")
)

const nonceSize = 12

// Payload is the session content wrapped by a sealed token. It is immutable
// once sealed; a privilege change requires issuing a new token.
type Payload struct {
	UserID    string
	Username  string
	TenantID  string
	IsAdmin   bool
	CSRFToken string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Sealer seals and unseals session payloads with a process-wide secret.
// Rotating the secret invalidates all outstanding sessions.
//
// Seal and Unseal are stateless and safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

// NewSealer creates a sealer from a 32-byte key and a session TTL.
func NewSealer(key []byte, ttl time.Duration) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("sealing key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead, ttl: ttl, now: time.Now}, nil
}

// SetClock overrides the sealer's clock. Intended for tests.
func (s *Sealer) SetClock(now func() time.Time) {
	s.now = now
}

// TTL returns the configured session lifetime.
func (s *Sealer) TTL() time.Duration {
	return s.ttl
}

// Seal stamps the payload with issue and expiry times, serializes it and
// encrypts it under a fresh random nonce. The token is opaque to clients.
func (s *Sealer) Seal(p Payload) (string, error) {
	now := s.now()
	p.IssuedAt = now
	p.ExpiresAt = now.Add(s.ttl)

	plaintext, err := encodePayload(&p)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Unseal verifies the token's integrity, then its expiry, and returns the
// payload. Any structural or authentication failure yields ErrInvalid before
// expiry is ever considered.
func (s *Sealer) Unseal(token string) (*Payload, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(sealed) < nonceSize {
		return nil, ErrInvalid
	}

	plaintext, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, ErrInvalid
	}

	p, err := decodePayload(plaintext)
	if err != nil {
		return nil, ErrInvalid
	}

	if s.now().After(p.ExpiresAt) {
		return nil, ErrExpired
	}
	return p, nil
}
