package goCred

import "errors"

var (
	// ErrTokenNotFound is returned when no token row matches the supplied raw token.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired is returned when a matching token exists but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenAlreadyUsed is returned when a matching token was already consumed or superseded.
	ErrTokenAlreadyUsed = errors.New("token already used")
	// ErrRateLimited is returned when token issuance exceeds the sliding-window budget.
	ErrRateLimited = errors.New("issuance rate limited")
	// ErrLockedOut is returned while an account is under a temporary failure lockout.
	ErrLockedOut = errors.New("account locked out")

	// ErrMFAAlreadyEnabled is returned when setup is initiated for an account with MFA active.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANoSetupInProgress is returned when confirmation arrives without a pending setup.
	ErrMFANoSetupInProgress = errors.New("no mfa setup in progress")
	// ErrMFANotEnabled is returned when a challenge is verified against an inactive account.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFAInvalidCode is returned when a TOTP code fails verification.
	ErrMFAInvalidCode = errors.New("invalid mfa code")
	// ErrMFAInvalidBackupCode is returned when a backup code matches no unconsumed slot.
	ErrMFAInvalidBackupCode = errors.New("invalid backup code")

	// ErrInvalidPassword is returned when password re-verification fails on a sensitive operation.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrStateInvalid is returned when an OAuth state envelope fails signature or shape checks.
	ErrStateInvalid = errors.New("invalid oauth state")
	// ErrStateExpired is returned when an OAuth state envelope is past its validity window.
	ErrStateExpired = errors.New("oauth state expired")
	// ErrStateProviderMismatch is returned when a state minted for one provider is replayed
	// against another provider's callback.
	ErrStateProviderMismatch = errors.New("oauth state provider mismatch")

	// ErrAccountNotFound is returned when the account repository has no record for the subject.
	ErrAccountNotFound = errors.New("account not found")
	// ErrStoreUnavailable is returned when a backing store call fails transiently.
	// Callers should retry or surface it; it is never a security-relevant outcome.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned when an Engine method runs before Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
