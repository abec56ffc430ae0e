package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func makeToken(t *testing.T, payload map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

func TestDecodeValid(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tok := makeToken(t, map[string]any{"id": "user-9", "role": "Official", "exp": exp})

	d, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Subject != "user-9" {
		t.Fatalf("unexpected subject: %s", d.Subject)
	}
	if d.Role != "official" {
		t.Fatalf("role was not lowercased: %s", d.Role)
	}
	if d.ExpiresAt == nil || d.ExpiresAt.Unix() != exp {
		t.Fatalf("unexpected expiry: %v", d.ExpiresAt)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"",
		"only-one-segment",
		"two.segments",
		"a.b.c.d",
		"header.%%%not-base64%%%.sig",
	}
	for _, tok := range cases {
		if _, err := Decode(tok); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("Decode(%q): expected ErrMalformedToken, got %v", tok, err)
		}
	}
}

func TestDecodeMissingFields(t *testing.T) {
	cases := []map[string]any{
		{"role": "official", "exp": time.Now().Unix()},
		{"id": "user-1", "exp": time.Now().Unix()},
		{"id": "", "role": ""},
	}
	for _, payload := range cases {
		tok := makeToken(t, payload)
		if _, err := Decode(tok); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("Decode(%v): expected ErrInvalidPayload, got %v", payload, err)
		}
	}
}

func TestDecodeWithoutExpiry(t *testing.T) {
	tok := makeToken(t, map[string]any{"id": "user-2", "role": "petitioner"})
	d, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.ExpiresAt != nil {
		t.Fatalf("expected nil expiry, got %v", d.ExpiresAt)
	}
	now := time.Now()
	if d.Expired(now) {
		t.Fatalf("credential without expiry must not expire")
	}
	if d.ExpiringSoon(now, DefaultExpiryWarning) {
		t.Fatalf("credential without expiry must not report expiring soon")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	if !(Decoded{ExpiresAt: &past}).Expired(now) {
		t.Fatalf("expected expired for past expiry")
	}
	if (Decoded{ExpiresAt: &future}).Expired(now) {
		t.Fatalf("unexpected expired for future expiry")
	}
	if !(Decoded{ExpiresAt: &now}).Expired(now) {
		t.Fatalf("expiry exactly now must count as expired")
	}
}

func TestExpiringSoonThreshold(t *testing.T) {
	now := time.Now()

	soon := now.Add(200 * time.Second)
	if !(Decoded{ExpiresAt: &soon}).ExpiringSoon(now, DefaultExpiryWarning) {
		t.Fatalf("expiry in 200s must report expiring soon")
	}

	later := now.Add(400 * time.Second)
	if (Decoded{ExpiresAt: &later}).ExpiringSoon(now, DefaultExpiryWarning) {
		t.Fatalf("expiry in 400s must not report expiring soon")
	}
}
