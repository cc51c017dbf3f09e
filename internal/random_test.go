package internal

import (
	"strings"
	"testing"
)

func TestNewTokenSecretIsURLSafeAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		raw, err := NewTokenSecret(TokenSecretMinBytes)
		if err != nil {
			t.Fatalf("NewTokenSecret failed: %v", err)
		}
		if seen[raw] {
			t.Fatalf("duplicate secret after %d draws", i)
		}
		seen[raw] = true

		if strings.ContainsAny(raw, "+/=") {
			t.Fatalf("secret contains non-url-safe characters: %q", raw)
		}
		// 24 bytes of entropy encode to 32 base64url characters.
		if len(raw) != 32 {
			t.Fatalf("unexpected secret length %d", len(raw))
		}
	}
}

func TestNewTokenSecretRaisesShortRequests(t *testing.T) {
	raw, err := NewTokenSecret(4)
	if err != nil {
		t.Fatalf("NewTokenSecret failed: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("short request must be raised to the floor, got %d chars", len(raw))
	}
}

func TestHashTokenSecretIsStable(t *testing.T) {
	a := HashTokenSecret("token-a")
	b := HashTokenSecret("token-a")
	c := HashTokenSecret("token-b")

	if a != b {
		t.Fatal("same input must hash identically")
	}
	if a == c {
		t.Fatal("distinct inputs must not collide")
	}
}

func TestNewTOTPSecretRoundTrip(t *testing.T) {
	raw, encoded, err := NewTOTPSecret()
	if err != nil {
		t.Fatalf("NewTOTPSecret failed: %v", err)
	}
	if len(raw) != 20 {
		t.Fatalf("expected 20 secret bytes, got %d", len(raw))
	}
	if len(encoded) != 32 {
		t.Fatalf("expected 32 base32 characters, got %d", len(encoded))
	}
	if encoded != strings.ToUpper(encoded) {
		t.Fatalf("encoding must be uppercase: %q", encoded)
	}

	decoded, err := DecodeTOTPSecret("  " + strings.ToLower(encoded) + " ")
	if err != nil {
		t.Fatalf("DecodeTOTPSecret failed: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatal("decode must reverse encode")
	}
}

func TestNewBackupCodeAlphabet(t *testing.T) {
	code, err := NewBackupCode(10)
	if err != nil {
		t.Fatalf("NewBackupCode failed: %v", err)
	}
	if len(code) != 10 {
		t.Fatalf("expected 10 characters, got %d", len(code))
	}
	for _, r := range code {
		if !strings.ContainsRune(BackupCodeAlphabet, r) {
			t.Fatalf("character %q outside alphabet", r)
		}
	}

	if _, err := NewBackupCode(8); err == nil {
		t.Fatal("expected short length to be rejected")
	}
}

func TestBackupCodeFormatting(t *testing.T) {
	formatted := FormatBackupCode("ABCDEFGHJK")
	if formatted != "ABCDE-FGHJK" {
		t.Fatalf("unexpected display form %q", formatted)
	}
	if CanonicalizeBackupCode(" abcde-fghjk ") != "ABCDEFGHJK" {
		t.Fatal("canonical form must strip formatting")
	}
	if CanonicalizeBackupCode(formatted) != "ABCDEFGHJK" {
		t.Fatal("canonicalize must reverse formatting")
	}
}
