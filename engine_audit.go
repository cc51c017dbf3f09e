package goCred

import (
	"context"
	"errors"
	"time"
)

// AuditErrorCode is the stable wire form of an error in audit events.
type AuditErrorCode string

const (
	auditErrTokenNotFound    AuditErrorCode = "token_not_found"
	auditErrTokenExpired     AuditErrorCode = "token_expired"
	auditErrTokenAlreadyUsed AuditErrorCode = "token_already_used"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrLockedOut        AuditErrorCode = "locked_out"
	auditErrMFAState         AuditErrorCode = "mfa_state"
	auditErrMFAInvalidCode   AuditErrorCode = "mfa_invalid_code"
	auditErrBackupInvalid    AuditErrorCode = "backup_code_invalid"
	auditErrInvalidPassword  AuditErrorCode = "invalid_password"
	auditErrStateInvalid     AuditErrorCode = "state_invalid"
	auditErrStateExpired     AuditErrorCode = "state_expired"
	auditErrStateProvider    AuditErrorCode = "state_provider_mismatch"
	auditErrAccountNotFound  AuditErrorCode = "account_not_found"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	purpose string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		Purpose:   purpose,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenNotFound):
		return auditErrTokenNotFound
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenAlreadyUsed):
		return auditErrTokenAlreadyUsed
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrLockedOut):
		return auditErrLockedOut
	case errors.Is(err, ErrMFAAlreadyEnabled),
		errors.Is(err, ErrMFANoSetupInProgress),
		errors.Is(err, ErrMFANotEnabled):
		return auditErrMFAState
	case errors.Is(err, ErrMFAInvalidCode):
		return auditErrMFAInvalidCode
	case errors.Is(err, ErrMFAInvalidBackupCode):
		return auditErrBackupInvalid
	case errors.Is(err, ErrInvalidPassword):
		return auditErrInvalidPassword
	case errors.Is(err, ErrStateExpired):
		return auditErrStateExpired
	case errors.Is(err, ErrStateProviderMismatch):
		return auditErrStateProvider
	case errors.Is(err, ErrStateInvalid):
		return auditErrStateInvalid
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
