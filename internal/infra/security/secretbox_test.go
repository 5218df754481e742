//go:build !integration

package security

import (
	"encoding/base64"
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox(testKey)
	if err != nil {
		t.Fatalf("NewSecretBox: %v", err)
	}
	for _, plain := range []string{"", "sk-live-abc123", strings.Repeat("x", 4096)} {
		sealed, err := box.Seal(plain)
		if err != nil {
			t.Fatalf("Seal(%q): %v", plain, err)
		}
		if sealed == plain && plain != "" {
			t.Fatalf("sealed output equals plaintext")
		}
		got, err := box.Open(sealed)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if got != plain {
			t.Fatalf("round trip: got %q want %q", got, plain)
		}
	}
}

func TestSecretBoxNonceVaries(t *testing.T) {
	box, _ := NewSecretBox(testKey)
	a, _ := box.Seal("same input")
	b, _ := box.Seal("same input")
	if a == b {
		t.Fatalf("two seals of the same plaintext produced identical output")
	}
}

func TestSecretBoxBadKeyLength(t *testing.T) {
	for _, key := range []string{"", "short", strings.Repeat("k", 17), strings.Repeat("k", 33)} {
		if _, err := NewSecretBox(key); err == nil {
			t.Fatalf("key of %d bytes accepted", len(key))
		}
	}
}

func TestSecretBoxTamperedCiphertext(t *testing.T) {
	box, _ := NewSecretBox(testKey)
	sealed, err := box.Seal("secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	if _, err := box.Open(base64.StdEncoding.EncodeToString(raw)); err == nil {
		t.Fatalf("tampered ciphertext opened")
	}

	if _, err := box.Open("not base64 at all %%%"); err == nil {
		t.Fatalf("invalid base64 opened")
	}
	if _, err := box.Open(base64.StdEncoding.EncodeToString([]byte("tiny"))); err == nil {
		t.Fatalf("short ciphertext opened")
	}
}
