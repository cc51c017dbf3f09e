package goCred

import (
	"context"
	"time"
)

// TokenPurpose discriminates the single-use token lifecycles the engine manages.
type TokenPurpose uint8

const (
	// PurposeEmailVerification is a token proving control of an email address.
	PurposeEmailVerification TokenPurpose = iota
	// PurposePasswordReset is a token authorizing a one-time password change.
	PurposePasswordReset
)

// String returns the wire/key form of the purpose.
func (p TokenPurpose) String() string {
	switch p {
	case PurposeEmailVerification:
		return "email_verification"
	case PurposePasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// TokenMetadata carries optional request context captured at issuance.
// Populated for password-reset tokens from the values attached via
// [WithClientIP] and [WithUserAgent].
type TokenMetadata struct {
	IPAddress string
	UserAgent string
}

// TokenRecord is the stored representation of a single-use token. The raw
// token itself is never persisted; only its SHA-256 hash keys the record.
type TokenRecord struct {
	ID        string
	SubjectID string
	Purpose   TokenPurpose
	// ScopeKey narrows the at-most-one-active invariant. For email
	// verification it is the address being verified (which may differ from
	// the account's current address); for password reset it is empty.
	ScopeKey  string
	CreatedAt time.Time
	ExpiresAt time.Time
	// UsedAt is zero while the token is still consumable.
	UsedAt   time.Time
	Metadata TokenMetadata
}

// Used reports whether the token was consumed or superseded.
func (r *TokenRecord) Used() bool {
	return !r.UsedAt.IsZero()
}

// TokenStore is the persistence boundary for single-use tokens. The default
// implementation is Redis-backed; the two mutating primitives must be atomic:
// Create performs invalidate-then-insert in one transaction and Consume
// flips the used marker with compare-and-swap semantics.
type TokenStore interface {
	// Create marks every unused token for (subject, purpose, scope) as used
	// and inserts the new record keyed by tokenHash, atomically.
	Create(ctx context.Context, tokenHash [32]byte, record *TokenRecord, ttl time.Duration) error
	// FindByHash returns the record for tokenHash or [ErrTokenNotFound].
	FindByHash(ctx context.Context, purpose TokenPurpose, tokenHash [32]byte) (*TokenRecord, error)
	// Consume sets UsedAt conditioned on it being unset. A conditional update
	// that matches no unused row reports [ErrTokenAlreadyUsed].
	Consume(ctx context.Context, purpose TokenPurpose, tokenHash [32]byte, now time.Time) (*TokenRecord, error)
	// InvalidateScope marks all unused tokens for the scope as used. Idempotent.
	InvalidateScope(ctx context.Context, subjectID string, purpose TokenPurpose, scopeKey string, now time.Time) error
	// CountInWindow counts tokens created for (subject, purpose) within the
	// trailing window ending at now.
	CountInWindow(ctx context.Context, subjectID string, purpose TokenPurpose, window time.Duration, now time.Time) (int, error)
	// SweepExpired deletes rows whose expiry precedes now and returns the count.
	// Safe to run concurrently with issuance and consumption.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// MFAStatus is the per-account multi-factor state machine position.
type MFAStatus uint8

const (
	// MFADisabled means no TOTP secret exists for the account.
	MFADisabled MFAStatus = iota
	// MFAPendingConfirmation means a secret was provisioned but never confirmed.
	MFAPendingConfirmation
	// MFAEnabled means setup was confirmed and challenges are enforced.
	MFAEnabled
)

// MFASetup is returned by [Engine.InitiateMFASetup]. The provisioning URI is
// suitable for external QR rendering; goCred never renders images.
type MFASetup struct {
	SecretBase32    string
	ProvisioningURI string
}

// MFAOverview reports the account's MFA position for display purposes.
// BackupCodesRemaining counts unconsumed slots out of BackupCodesIssued.
type MFAOverview struct {
	Status               MFAStatus
	ConfirmedAt          time.Time
	BackupCodesIssued    int
	BackupCodesRemaining int
}

// CredentialHasher hashes and verifies secrets whose plaintext must never be
// stored: account passwords and MFA backup codes. The concrete algorithm is a
// deployment choice; see the password subpackage for an Argon2id default.
type CredentialHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) (bool, error)
}

// Notifier delivers a raw token or code out of band. goCred hands the secret
// over exactly once and never logs or persists it afterwards.
type Notifier interface {
	Send(ctx context.Context, purpose TokenPurpose, subjectID, destination, secret string, metadata TokenMetadata) error
}

// AccountRecord is the slice of the caller's account row that goCred reads:
// the password hash for re-verification and the lockout tracking fields.
type AccountRecord struct {
	AccountID           string
	Email               string
	PasswordHash        string
	FailedResetAttempts int
	// ResetLockedUntil is zero when no lockout is in effect. An expired
	// value is treated as cleared (lazy expiry).
	ResetLockedUntil time.Time
}

// AccountRepository is the injected boundary to the caller's account storage.
// goCred never owns account records; it reads them for password checks and
// mutates only the lockout fields.
type AccountRepository interface {
	GetAccount(ctx context.Context, accountID string) (AccountRecord, error)
	UpdateLockout(ctx context.Context, accountID string, failedAttempts int, lockedUntil time.Time) error
}
