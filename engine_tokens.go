package goCred

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goCred/internal"
	"github.com/google/uuid"
)

// IssueToken generates and persists a fresh single-use token for
// (subjectID, purpose, scopeKey) and returns the raw token alongside the
// stored record. Any previously active token for the same scope is
// invalidated in the same store transaction, so at most one token per scope
// is ever consumable.
//
// For email verification, scopeKey is the address being verified; when empty
// it defaults to the account's current address. For password reset the scope
// is constant and scopeKey is ignored; client IP and User-Agent attached via
// [WithClientIP] and [WithUserAgent] are captured into the record metadata.
//
// Issuance is refused with [ErrLockedOut] during an active lockout and with
// [ErrRateLimited] when the sliding-window budget is exhausted. Callers that
// must stay enumeration-safe are expected to map both to a generic success
// at the transport boundary.
func (e *Engine) IssueToken(ctx context.Context, subjectID string, purpose TokenPurpose, scopeKey string) (string, *TokenRecord, error) {
	if e == nil || e.tokens == nil || e.limiter == nil || e.lockouts == nil {
		return "", nil, ErrEngineNotReady
	}
	if subjectID == "" {
		return "", nil, ErrAccountNotFound
	}

	now := time.Now()

	var metadata TokenMetadata
	destination := scopeKey
	switch purpose {
	case PurposePasswordReset:
		scopeKey = ""
		destination = ""
		metadata = TokenMetadata{
			IPAddress: clientIPFromContext(ctx),
			UserAgent: userAgentFromContext(ctx),
		}

		locked, err := e.lockouts.IsLockedOut(ctx, subjectID, now)
		if err != nil {
			e.emitAudit(ctx, auditEventTokenIssued, false, subjectID, purpose.String(), err, nil)
			return "", nil, err
		}
		if locked {
			e.metricInc(MetricTokenIssueLockedOut)
			e.emitAudit(ctx, auditEventTokenIssued, false, subjectID, purpose.String(), ErrLockedOut, nil)
			return "", nil, ErrLockedOut
		}

	case PurposeEmailVerification:
		if scopeKey == "" {
			account, err := e.accounts.GetAccount(ctx, subjectID)
			if err != nil {
				e.emitAudit(ctx, auditEventTokenIssued, false, subjectID, purpose.String(), ErrAccountNotFound, nil)
				return "", nil, ErrAccountNotFound
			}
			scopeKey = account.Email
			destination = account.Email
		}
	}

	within, err := e.limiter.WithinRate(ctx, subjectID, purpose, now)
	if err != nil {
		e.emitAudit(ctx, auditEventTokenIssued, false, subjectID, purpose.String(), err, nil)
		return "", nil, err
	}
	if !within {
		e.metricInc(MetricTokenIssueRateLimited)
		e.emitAudit(ctx, auditEventRateLimitHit, false, subjectID, purpose.String(), ErrRateLimited, func() map[string]string {
			return map[string]string{"scope": "token_issue"}
		})
		return "", nil, ErrRateLimited
	}

	// Generate and hash before any write: a partially applied store
	// transaction must never leave a raw token persisted.
	raw, err := internal.NewTokenSecret(internal.TokenSecretMinBytes)
	if err != nil {
		return "", nil, err
	}
	tokenHash := internal.HashTokenSecret(raw)

	ttl := e.tokenTTL(purpose)
	record := &TokenRecord{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Purpose:   purpose,
		ScopeKey:  scopeKey,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Metadata:  metadata,
	}

	if err := e.tokens.Create(ctx, tokenHash, record, ttl); err != nil {
		e.emitAudit(ctx, auditEventTokenIssued, false, subjectID, purpose.String(), err, nil)
		return "", nil, err
	}

	if e.notifier != nil {
		if destination == "" {
			if account, err := e.accounts.GetAccount(ctx, subjectID); err == nil {
				destination = account.Email
			}
		}
		if err := e.notifier.Send(ctx, purpose, subjectID, destination, raw, record.Metadata); err != nil {
			e.emitAudit(ctx, auditEventTokenIssued, false, subjectID, purpose.String(), err, func() map[string]string {
				return map[string]string{"reason": "notifier_failed"}
			})
			return "", nil, err
		}
	}

	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventTokenIssued, true, subjectID, purpose.String(), nil, nil)
	return raw, record, nil
}

// ValidateToken checks a raw token without consuming it, for "is this link
// still good" pre-checks. Lookup errors are reported in a fixed order:
// [ErrTokenNotFound], then [ErrTokenExpired], then [ErrTokenAlreadyUsed].
func (e *Engine) ValidateToken(ctx context.Context, rawToken string, purpose TokenPurpose) (*TokenRecord, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if rawToken == "" {
		return nil, ErrTokenNotFound
	}

	record, err := e.tokens.FindByHash(ctx, purpose, internal.HashTokenSecret(rawToken))
	if err != nil {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(ctx, auditEventTokenValidated, false, "", purpose.String(), err, nil)
		return nil, err
	}

	if lookupErr := tokenLookupError(record, time.Now()); lookupErr != nil {
		e.metricInc(MetricTokenRejected)
		e.emitAudit(ctx, auditEventTokenValidated, false, record.SubjectID, purpose.String(), lookupErr, nil)
		return nil, lookupErr
	}

	e.metricInc(MetricTokenValidated)
	e.emitAudit(ctx, auditEventTokenValidated, true, record.SubjectID, purpose.String(), nil, nil)
	return record, nil
}

// ConsumeToken validates and spends a raw token in one conditional store
// update. Exactly one of any number of concurrent consumers succeeds; the
// rest observe [ErrTokenAlreadyUsed]. Failed password-reset consumptions
// count toward the subject's lockout.
func (e *Engine) ConsumeToken(ctx context.Context, rawToken string, purpose TokenPurpose) (*TokenRecord, error) {
	if e == nil || e.tokens == nil || e.lockouts == nil {
		return nil, ErrEngineNotReady
	}
	if rawToken == "" {
		return nil, ErrTokenNotFound
	}

	now := time.Now()
	tokenHash := internal.HashTokenSecret(rawToken)
	record, err := e.tokens.Consume(ctx, purpose, tokenHash, now)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		if purpose == PurposePasswordReset && isTokenLookupError(err) && !errors.Is(err, ErrTokenNotFound) {
			// Expired and already-used rows still identify their subject.
			if rec, findErr := e.tokens.FindByHash(ctx, purpose, tokenHash); findErr == nil {
				e.recordResetFailure(ctx, rec, now)
			}
		}
		e.emitAudit(ctx, auditEventTokenConsumed, false, "", purpose.String(), err, nil)
		return nil, err
	}

	e.metricInc(MetricTokenConsumed)
	e.emitAudit(ctx, auditEventTokenConsumed, true, record.SubjectID, purpose.String(), nil, nil)
	return record, nil
}

// InvalidateTokens marks every active token for the scope as used. Scope
// defaulting matches [Engine.IssueToken]: an empty email-verification
// scopeKey resolves to the account's current address, so issue-then-invalidate
// with the same arguments always targets the same scope. Idempotent.
func (e *Engine) InvalidateTokens(ctx context.Context, subjectID string, purpose TokenPurpose, scopeKey string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	switch purpose {
	case PurposePasswordReset:
		scopeKey = ""
	case PurposeEmailVerification:
		if scopeKey == "" {
			account, err := e.accounts.GetAccount(ctx, subjectID)
			if err != nil {
				e.emitAudit(ctx, auditEventTokenInvalidated, false, subjectID, purpose.String(), ErrAccountNotFound, nil)
				return ErrAccountNotFound
			}
			scopeKey = account.Email
		}
	}

	if err := e.tokens.InvalidateScope(ctx, subjectID, purpose, scopeKey, time.Now()); err != nil {
		e.emitAudit(ctx, auditEventTokenInvalidated, false, subjectID, purpose.String(), err, nil)
		return err
	}

	e.emitAudit(ctx, auditEventTokenInvalidated, true, subjectID, purpose.String(), nil, nil)
	return nil
}

// SweepExpired deletes token rows whose expiry precedes now and returns the
// count. Intended to be driven by an external scheduler; safe to run
// concurrently with all other operations.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	deleted, err := e.tokens.SweepExpired(ctx, now)
	if err != nil {
		e.emitAudit(ctx, auditEventTokenSweep, false, "", "", err, nil)
		return deleted, err
	}

	e.metricAdd(MetricTokenSwept, uint64(deleted))
	e.emitAudit(ctx, auditEventTokenSweep, true, "", "", nil, nil)
	return deleted, nil
}

// RecordFailedAttempt counts a failed sensitive operation against the
// account, starting a lockout at the configured threshold.
func (e *Engine) RecordFailedAttempt(ctx context.Context, subjectID string) error {
	if e == nil || e.lockouts == nil {
		return ErrEngineNotReady
	}

	started, err := e.lockouts.RecordFailure(ctx, subjectID, time.Now())
	if err != nil {
		return err
	}
	if started {
		e.metricInc(MetricLockoutStarted)
		e.emitAudit(ctx, auditEventLockoutStarted, true, subjectID, "", nil, nil)
	}
	return nil
}

// IsLockedOut reports whether the subject is under an unexpired lockout.
func (e *Engine) IsLockedOut(ctx context.Context, subjectID string) (bool, error) {
	if e == nil || e.lockouts == nil {
		return false, ErrEngineNotReady
	}
	return e.lockouts.IsLockedOut(ctx, subjectID, time.Now())
}

// ClearLockout zeroes the failure counter and deadline. Call it after any
// successful credential-changing operation (completed reset, successful
// login).
func (e *Engine) ClearLockout(ctx context.Context, subjectID string) error {
	if e == nil || e.lockouts == nil {
		return ErrEngineNotReady
	}

	if err := e.lockouts.Clear(ctx, subjectID); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventLockoutCleared, true, subjectID, "", nil, nil)
	return nil
}

func (e *Engine) tokenTTL(purpose TokenPurpose) time.Duration {
	switch purpose {
	case PurposeEmailVerification:
		return e.config.Tokens.EmailVerificationTTL
	default:
		return e.config.Tokens.PasswordResetTTL
	}
}

// recordResetFailure attributes a failed consumption to the owning subject
// when one is known. A NotFound failure has no record to attribute.
func (e *Engine) recordResetFailure(ctx context.Context, record *TokenRecord, now time.Time) {
	if record == nil || record.SubjectID == "" {
		return
	}
	if started, err := e.lockouts.RecordFailure(ctx, record.SubjectID, now); err == nil && started {
		e.metricInc(MetricLockoutStarted)
		e.emitAudit(ctx, auditEventLockoutStarted, true, record.SubjectID, "", nil, nil)
	}
}

func tokenLookupError(record *TokenRecord, now time.Time) error {
	switch {
	case record == nil:
		return ErrTokenNotFound
	case now.After(record.ExpiresAt):
		return ErrTokenExpired
	case record.Used():
		return ErrTokenAlreadyUsed
	default:
		return nil
	}
}

func isTokenLookupError(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenAlreadyUsed)
}
