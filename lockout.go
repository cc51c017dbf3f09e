package goCred

import (
	"context"
	"time"
)

// lockoutGuard tracks repeated failures on the account record through the
// injected [AccountRepository]. Expiry is lazy: a past ResetLockedUntil is
// treated as cleared without requiring a background job.
type lockoutGuard struct {
	accounts AccountRepository
	config   LockoutConfig
}

func newLockoutGuard(accounts AccountRepository, cfg LockoutConfig) *lockoutGuard {
	return &lockoutGuard{
		accounts: accounts,
		config:   cfg,
	}
}

// RecordFailure increments the failure counter. Reaching the threshold starts
// a lockout; further failures while locked refresh the lockout deadline.
// Returns true when this failure started or refreshed a lockout.
func (g *lockoutGuard) RecordFailure(ctx context.Context, accountID string, now time.Time) (bool, error) {
	account, err := g.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}

	attempts := account.FailedResetAttempts + 1
	if attempts < g.config.MaxFailedAttempts && !g.locked(account, now) {
		return false, g.accounts.UpdateLockout(ctx, accountID, attempts, account.ResetLockedUntil)
	}

	// Threshold reached: counter resets, the deadline carries the state.
	until := now.Add(g.config.LockoutDuration)
	return true, g.accounts.UpdateLockout(ctx, accountID, 0, until)
}

// IsLockedOut reports whether the account is under an unexpired lockout.
func (g *lockoutGuard) IsLockedOut(ctx context.Context, accountID string, now time.Time) (bool, error) {
	account, err := g.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return g.locked(account, now), nil
}

// Clear zeroes the failure counter and deadline. Called on any successful
// credential-changing operation.
func (g *lockoutGuard) Clear(ctx context.Context, accountID string) error {
	return g.accounts.UpdateLockout(ctx, accountID, 0, time.Time{})
}

func (g *lockoutGuard) locked(account AccountRecord, now time.Time) bool {
	return !account.ResetLockedUntil.IsZero() && now.Before(account.ResetLockedUntil)
}
