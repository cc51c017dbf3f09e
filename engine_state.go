package goCred

import "context"

// IssueOAuthState mints a signed CSRF envelope for an outbound OAuth
// redirect. Requires an OAuth state secret key in the configuration; without
// one the operation reports [ErrEngineNotReady].
func (e *Engine) IssueOAuthState(ctx context.Context, provider, redirectURL string) (string, error) {
	if e == nil || e.state == nil {
		return "", ErrEngineNotReady
	}

	signed, err := e.state.Issue(provider, redirectURL)
	if err != nil {
		e.emitAudit(ctx, auditEventStateIssued, false, "", "", err, stateMetadata(provider))
		return "", err
	}

	e.metricInc(MetricStateIssued)
	e.emitAudit(ctx, auditEventStateIssued, true, "", "", nil, stateMetadata(provider))
	return signed, nil
}

// VerifyOAuthState checks the envelope returned by the provider callback and
// returns the embedded redirect URL. Checks run in order: signature, expiry,
// provider binding.
func (e *Engine) VerifyOAuthState(ctx context.Context, signedState, expectedProvider string) (string, error) {
	if e == nil || e.state == nil {
		return "", ErrEngineNotReady
	}

	redirectURL, err := e.state.Verify(signedState, expectedProvider)
	if err != nil {
		e.metricInc(MetricStateRejected)
		e.emitAudit(ctx, auditEventStateVerified, false, "", "", err, stateMetadata(expectedProvider))
		return "", err
	}

	e.metricInc(MetricStateVerified)
	e.emitAudit(ctx, auditEventStateVerified, true, "", "", nil, stateMetadata(expectedProvider))
	return redirectURL, nil
}

func stateMetadata(provider string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"provider": provider}
	}
}
