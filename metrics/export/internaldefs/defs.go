package internaldefs

import (
	goCred "github.com/MrEthical07/goCred"
)

// CounterDef binds an engine counter to its exported name and help text.
// Exporters iterate these defs so every backend exposes the same series.
type CounterDef struct {
	ID   goCred.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goCred.MetricTokenIssued, Name: "gocred_token_issued_total", Help: "Successful single-use token issuances."},
	{ID: goCred.MetricTokenIssueRateLimited, Name: "gocred_token_issue_rate_limited_total", Help: "Issuances refused by the sliding window."},
	{ID: goCred.MetricTokenIssueLockedOut, Name: "gocred_token_issue_locked_out_total", Help: "Issuances refused by an active lockout."},
	{ID: goCred.MetricTokenValidated, Name: "gocred_token_validated_total", Help: "Successful non-consuming validations."},
	{ID: goCred.MetricTokenConsumed, Name: "gocred_token_consumed_total", Help: "Successful token consumptions."},
	{ID: goCred.MetricTokenRejected, Name: "gocred_token_rejected_total", Help: "Failed validations and consumptions."},
	{ID: goCred.MetricTokenSwept, Name: "gocred_token_swept_total", Help: "Rows removed by expiry sweeps."},
	{ID: goCred.MetricMFASetupInitiated, Name: "gocred_mfa_setup_initiated_total", Help: "MFA provisioning starts."},
	{ID: goCred.MetricMFASetupConfirmed, Name: "gocred_mfa_setup_confirmed_total", Help: "MFA activations."},
	{ID: goCred.MetricMFAChallengeSuccess, Name: "gocred_mfa_challenge_success_total", Help: "Accepted TOTP and backup codes."},
	{ID: goCred.MetricMFAChallengeFailure, Name: "gocred_mfa_challenge_failure_total", Help: "Rejected TOTP and backup codes."},
	{ID: goCred.MetricMFABackupCodeUsed, Name: "gocred_mfa_backup_code_used_total", Help: "Consumed backup code slots."},
	{ID: goCred.MetricMFADisabled, Name: "gocred_mfa_disabled_total", Help: "MFA teardowns."},
	{ID: goCred.MetricStateIssued, Name: "gocred_oauth_state_issued_total", Help: "Signed OAuth state envelopes."},
	{ID: goCred.MetricStateVerified, Name: "gocred_oauth_state_verified_total", Help: "Accepted OAuth state envelopes."},
	{ID: goCred.MetricStateRejected, Name: "gocred_oauth_state_rejected_total", Help: "OAuth state envelopes failing verification."},
	{ID: goCred.MetricLockoutStarted, Name: "gocred_lockout_started_total", Help: "Lockouts triggered by failure thresholds."},
}
