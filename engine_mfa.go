package goCred

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goCred/internal"
)

// InitiateMFASetup provisions a fresh TOTP secret for the account and moves
// it to pending confirmation. The returned provisioning URI is meant for an
// external QR renderer. Re-initiating while a setup is pending replaces the
// unconfirmed secret; initiating while MFA is active fails with
// [ErrMFAAlreadyEnabled].
func (e *Engine) InitiateMFASetup(ctx context.Context, accountID string) (*MFASetup, error) {
	if e == nil || e.mfa == nil || e.totp == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" {
		return nil, ErrAccountNotFound
	}

	account, err := e.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	record, err := e.mfa.Get(ctx, accountID)
	if err != nil && !errors.Is(err, errMFARecordNotFound) {
		return nil, err
	}
	if record.status() == MFAEnabled {
		e.emitAudit(ctx, auditEventMFASetupInitiated, false, accountID, "", ErrMFAAlreadyEnabled, nil)
		return nil, ErrMFAAlreadyEnabled
	}

	secretRaw, secretBase32, err := internal.NewTOTPSecret()
	if err != nil {
		return nil, err
	}

	if err := e.mfa.Save(ctx, accountID, &mfaRecord{Secret: secretRaw}); err != nil {
		e.emitAudit(ctx, auditEventMFASetupInitiated, false, accountID, "", err, nil)
		return nil, err
	}

	label := account.Email
	if label == "" {
		label = accountID
	}

	e.metricInc(MetricMFASetupInitiated)
	e.emitAudit(ctx, auditEventMFASetupInitiated, true, accountID, "", nil, nil)
	return &MFASetup{
		SecretBase32:    secretBase32,
		ProvisioningURI: e.totp.ProvisionURI(secretBase32, label),
	}, nil
}

// ConfirmMFASetup verifies code against the pending secret and, on success,
// activates MFA and returns the freshly generated backup codes in plaintext.
// The codes are individually hashed before storage and are never retrievable
// again. A wrong code leaves the setup pending.
func (e *Engine) ConfirmMFASetup(ctx context.Context, accountID, code string) ([]string, error) {
	if e == nil || e.mfa == nil || e.totp == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" {
		return nil, ErrAccountNotFound
	}

	record, err := e.mfa.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, errMFARecordNotFound) {
			return nil, ErrMFANoSetupInProgress
		}
		return nil, err
	}
	if record.status() != MFAPendingConfirmation {
		e.emitAudit(ctx, auditEventMFASetupConfirmed, false, accountID, "", ErrMFANoSetupInProgress, nil)
		return nil, ErrMFANoSetupInProgress
	}

	now := time.Now()
	ok, counter, err := e.totp.VerifyCode(record.Secret, code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricMFAChallengeFailure)
		e.emitAudit(ctx, auditEventMFASetupConfirmed, false, accountID, "", ErrMFAInvalidCode, nil)
		return nil, ErrMFAInvalidCode
	}

	plaintext, hashes, err := e.newBackupCodes()
	if err != nil {
		return nil, err
	}

	record.ConfirmedAt = now.Unix()
	record.LastUsedCounter = counter
	record.BackupCodeHashes = hashes
	if err := e.mfa.Save(ctx, accountID, record); err != nil {
		e.emitAudit(ctx, auditEventMFASetupConfirmed, false, accountID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricMFASetupConfirmed)
	e.emitAudit(ctx, auditEventMFASetupConfirmed, true, accountID, "", nil, nil)
	return plaintext, nil
}

// VerifyMFAChallenge accepts either a TOTP code or a backup code for an
// account with MFA active. A matched backup code slot is nulled in place,
// one-time use; the remaining slots stay valid. Failures count toward the
// account lockout; success clears it.
func (e *Engine) VerifyMFAChallenge(ctx context.Context, accountID, code string) error {
	if e == nil || e.mfa == nil || e.totp == nil || e.hasher == nil || e.lockouts == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrAccountNotFound
	}

	record, err := e.mfa.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, errMFARecordNotFound) {
			return ErrMFANotEnabled
		}
		return err
	}
	if record.status() != MFAEnabled {
		e.emitAudit(ctx, auditEventMFAChallenge, false, accountID, "", ErrMFANotEnabled, nil)
		return ErrMFANotEnabled
	}

	now := time.Now()
	locked, err := e.lockouts.IsLockedOut(ctx, accountID, now)
	if err != nil {
		return err
	}
	if locked {
		e.emitAudit(ctx, auditEventMFAChallenge, false, accountID, "", ErrLockedOut, nil)
		return ErrLockedOut
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) == e.config.TOTP.Digits && isNumericString(trimmed) {
		return e.verifyTOTPChallenge(ctx, accountID, record, trimmed, now)
	}
	return e.verifyBackupChallenge(ctx, accountID, record, trimmed, now)
}

func (e *Engine) verifyTOTPChallenge(ctx context.Context, accountID string, record *mfaRecord, code string, now time.Time) error {
	ok, counter, err := e.totp.VerifyCode(record.Secret, code, now)
	if err != nil {
		return err
	}
	if !ok {
		return e.failChallenge(ctx, accountID, now, ErrMFAInvalidCode)
	}

	if e.config.TOTP.EnforceReplayProtection {
		advanced, err := e.mfa.AdvanceCounter(ctx, accountID, counter)
		if err != nil {
			return err
		}
		if !advanced {
			// Code already spent in this or an earlier step.
			return e.failChallenge(ctx, accountID, now, ErrMFAInvalidCode)
		}
	}

	if err := e.lockouts.Clear(ctx, accountID); err != nil {
		return err
	}
	e.metricInc(MetricMFAChallengeSuccess)
	e.emitAudit(ctx, auditEventMFAChallenge, true, accountID, "", nil, nil)
	return nil
}

func (e *Engine) verifyBackupChallenge(ctx context.Context, accountID string, record *mfaRecord, code string, now time.Time) error {
	canonical := internal.CanonicalizeBackupCode(code)
	if canonical == "" {
		return e.failChallenge(ctx, accountID, now, ErrMFAInvalidBackupCode)
	}

	for slot, hash := range record.BackupCodeHashes {
		if hash == "" {
			continue
		}
		match, err := e.hasher.Verify(canonical, hash)
		if err != nil || !match {
			continue
		}

		consumed, err := e.mfa.ConsumeBackupSlot(ctx, accountID, slot)
		if err != nil {
			return err
		}
		if !consumed {
			// Lost the race for this slot; the code is spent.
			break
		}

		if err := e.lockouts.Clear(ctx, accountID); err != nil {
			return err
		}
		e.metricInc(MetricMFAChallengeSuccess)
		e.metricInc(MetricMFABackupCodeUsed)
		e.emitAudit(ctx, auditEventMFAChallenge, true, accountID, "", nil, func() map[string]string {
			return map[string]string{"method": "backup_code"}
		})
		return nil
	}

	return e.failChallenge(ctx, accountID, now, ErrMFAInvalidBackupCode)
}

func (e *Engine) failChallenge(ctx context.Context, accountID string, now time.Time, cause error) error {
	e.metricInc(MetricMFAChallengeFailure)
	if started, err := e.lockouts.RecordFailure(ctx, accountID, now); err == nil && started {
		e.metricInc(MetricLockoutStarted)
		e.emitAudit(ctx, auditEventLockoutStarted, true, accountID, "", nil, nil)
	}
	e.emitAudit(ctx, auditEventMFAChallenge, false, accountID, "", cause, nil)
	return cause
}

// DisableMFA re-verifies the account password and clears secret,
// confirmation, and backup codes in one key removal.
func (e *Engine) DisableMFA(ctx context.Context, accountID, password string) error {
	if e == nil || e.mfa == nil || e.hasher == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	record, err := e.mfa.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, errMFARecordNotFound) {
			return ErrMFANotEnabled
		}
		return err
	}
	if record.status() != MFAEnabled {
		return ErrMFANotEnabled
	}

	if err := e.verifyAccountPassword(ctx, accountID, password); err != nil {
		e.emitAudit(ctx, auditEventMFADisabled, false, accountID, "", err, nil)
		return err
	}

	if err := e.mfa.Delete(ctx, accountID); err != nil {
		e.emitAudit(ctx, auditEventMFADisabled, false, accountID, "", err, nil)
		return err
	}

	e.metricInc(MetricMFADisabled)
	e.emitAudit(ctx, auditEventMFADisabled, true, accountID, "", nil, nil)
	return nil
}

// RegenerateBackupCodes re-verifies the account password and replaces all
// backup codes with a fresh set, returned in plaintext exactly once. Old
// codes are invalid immediately.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, password string) ([]string, error) {
	if e == nil || e.mfa == nil || e.hasher == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.mfa.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, errMFARecordNotFound) {
			return nil, ErrMFANotEnabled
		}
		return nil, err
	}
	if record.status() != MFAEnabled {
		return nil, ErrMFANotEnabled
	}

	if err := e.verifyAccountPassword(ctx, accountID, password); err != nil {
		e.emitAudit(ctx, auditEventMFACodesReplaced, false, accountID, "", err, nil)
		return nil, err
	}

	plaintext, hashes, err := e.newBackupCodes()
	if err != nil {
		return nil, err
	}

	record.BackupCodeHashes = hashes
	if err := e.mfa.Save(ctx, accountID, record); err != nil {
		e.emitAudit(ctx, auditEventMFACodesReplaced, false, accountID, "", err, nil)
		return nil, err
	}

	e.emitAudit(ctx, auditEventMFACodesReplaced, true, accountID, "", nil, nil)
	return plaintext, nil
}

// MFAState reports the account's MFA position and backup code inventory.
func (e *Engine) MFAState(ctx context.Context, accountID string) (MFAOverview, error) {
	if e == nil || e.mfa == nil {
		return MFAOverview{}, ErrEngineNotReady
	}

	record, err := e.mfa.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, errMFARecordNotFound) {
			return MFAOverview{Status: MFADisabled}, nil
		}
		return MFAOverview{}, err
	}

	overview := MFAOverview{
		Status:               record.status(),
		BackupCodesIssued:    len(record.BackupCodeHashes),
		BackupCodesRemaining: record.remainingBackupCodes(),
	}
	if record.ConfirmedAt != 0 {
		overview.ConfirmedAt = time.Unix(record.ConfirmedAt, 0).UTC()
	}
	return overview, nil
}

// newBackupCodes generates the configured number of codes, each hashed
// independently so no code can be derived from another.
func (e *Engine) newBackupCodes() ([]string, []string, error) {
	count := e.config.TOTP.BackupCodeCount
	plaintext := make([]string, 0, count)
	hashes := make([]string, 0, count)

	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(e.config.TOTP.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		hash, err := e.hasher.Hash(code)
		if err != nil {
			return nil, nil, err
		}
		plaintext = append(plaintext, internal.FormatBackupCode(code))
		hashes = append(hashes, hash)
	}

	return plaintext, hashes, nil
}

func (e *Engine) verifyAccountPassword(ctx context.Context, accountID, password string) error {
	account, err := e.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return ErrAccountNotFound
	}

	match, err := e.hasher.Verify(password, account.PasswordHash)
	if err != nil || !match {
		return ErrInvalidPassword
	}
	return nil
}
