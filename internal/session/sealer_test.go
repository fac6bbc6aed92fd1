package session

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	sealer, err := NewSealer(testKey(t), 10*time.Minute)
	if err != nil {
		t.Fatalf("NewSealer returned error: %v", err)
	}
	return sealer
}

func TestSealUnsealRoundTrip(t *testing.T) {
	sealer := newTestSealer(t)

	payload := Payload{
		UserID:    "acc-123",
		Username:  "alice",
		TenantID:  "acme",
		IsAdmin:   true,
		CSRFToken: "deadbeef",
	}
	token, err := sealer.Seal(payload)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}

	got, err := sealer.Unseal(token)
	if err != nil {
		t.Fatalf("Unseal returned error: %v", err)
	}
	if got.UserID != payload.UserID || got.Username != payload.Username ||
		got.TenantID != payload.TenantID || !got.IsAdmin || got.CSRFToken != payload.CSRFToken {
		t.Fatalf("unexpected payload: %#v", got)
	}
	if got.ExpiresAt.Sub(got.IssuedAt) != 10*time.Minute {
		t.Fatalf("unexpected validity window: issued=%v expires=%v", got.IssuedAt, got.ExpiresAt)
	}
}

func TestSealStampsTimes(t *testing.T) {
	sealer := newTestSealer(t)
	t0 := time.Unix(1_700_000_000, 0)
	sealer.SetClock(func() time.Time { return t0 })

	token, err := sealer.Seal(Payload{UserID: "acc-1"})
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	got, err := sealer.Unseal(token)
	if err != nil {
		t.Fatalf("Unseal returned error: %v", err)
	}
	if !got.IssuedAt.Equal(t0) || !got.ExpiresAt.Equal(t0.Add(10*time.Minute)) {
		t.Fatalf("unexpected stamps: %v / %v", got.IssuedAt, got.ExpiresAt)
	}
}

func TestUnsealTamperedTokenIsInvalid(t *testing.T) {
	sealer := newTestSealer(t)

	token, err := sealer.Seal(Payload{UserID: "acc-1", Username: "alice"})
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("failed to decode token: %v", err)
	}

	// Flipping any single byte must yield ErrInvalid, never ErrExpired and
	// never a payload.
	for i := range raw {
		mutated := bytes.Clone(raw)
		mutated[i] ^= 0x01
		_, err := sealer.Unseal(base64.RawURLEncoding.EncodeToString(mutated))
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("byte %d: got %v, want ErrInvalid", i, err)
		}
	}
}

func TestUnsealGarbage(t *testing.T) {
	sealer := newTestSealer(t)

	for _, token := range []string{"", "!!!not-base64!!!", "c2hvcnQ"} {
		if _, err := sealer.Unseal(token); !errors.Is(err, ErrInvalid) {
			t.Fatalf("token %q: got %v, want ErrInvalid", token, err)
		}
	}
}

func TestUnsealWrongKeyIsInvalid(t *testing.T) {
	sealer := newTestSealer(t)
	other := newTestSealer(t)

	token, err := sealer.Seal(Payload{UserID: "acc-1"})
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if _, err := other.Unseal(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}

func TestUnsealExpired(t *testing.T) {
	sealer := newTestSealer(t)
	t0 := time.Unix(1_700_000_000, 0)
	sealer.SetClock(func() time.Time { return t0 })

	token, err := sealer.Seal(Payload{UserID: "acc-1"})
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}

	// Just inside the TTL.
	sealer.SetClock(func() time.Time { return t0.Add(9 * time.Minute) })
	if _, err := sealer.Unseal(token); err != nil {
		t.Fatalf("Unseal within TTL returned error: %v", err)
	}

	// Just past it.
	sealer.SetClock(func() time.Time { return t0.Add(11 * time.Minute) })
	if _, err := sealer.Unseal(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}
}

func TestNewSealerRejectsShortKey(t *testing.T) {
	if _, err := NewSealer([]byte("short"), time.Minute); err == nil {
		t.Fatal("expected error for short key")
	}
}
