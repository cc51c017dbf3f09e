package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const (
	// TokenSecretMinBytes is the entropy floor for single-use tokens.
	TokenSecretMinBytes = 24

	totpSecretBytes = 20

	// BackupCodeAlphabet avoids ambiguous characters (0/O, 1/I/L).
	BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewTokenSecret returns a fresh url-safe random token of at least n bytes of
// entropy, base64url encoded without padding. Values of n below
// [TokenSecretMinBytes] are raised to the floor.
func NewTokenSecret(n int) (string, error) {
	if n < TokenSecretMinBytes {
		n = TokenSecretMinBytes
	}

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashTokenSecret maps a raw token to its stored lookup key. Only this hash
// is ever persisted.
func HashTokenSecret(raw string) [32]byte {
	return sha256.Sum256([]byte(raw))
}

// NewTOTPSecret returns 20 random bytes and their RFC 4648 base32 encoding
// (uppercase, no padding, 32 characters).
func NewTOTPSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

// DecodeTOTPSecret reverses [NewTOTPSecret] encoding.
func DecodeTOTPSecret(secretBase32 string) ([]byte, error) {
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return enc.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
}

// NewBackupCode returns a random code of length characters drawn from
// [BackupCodeAlphabet].
func NewBackupCode(length int) (string, error) {
	if length < 10 {
		return "", errors.New("backup code length below minimum")
	}

	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// CanonicalizeBackupCode strips user-entered formatting before comparison.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// FormatBackupCode inserts a separator for display ("ABCDE-FGHJK").
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}
