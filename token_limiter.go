package goCred

import (
	"context"
	"time"
)

// issuanceLimiter enforces the sliding-window issuance budget by counting
// token rows created for (subject, purpose) within the trailing window.
type issuanceLimiter struct {
	store  TokenStore
	config TokenConfig
}

func newIssuanceLimiter(store TokenStore, cfg TokenConfig) *issuanceLimiter {
	return &issuanceLimiter{
		store:  store,
		config: cfg,
	}
}

// WithinRate reports whether another issuance fits the budget.
func (l *issuanceLimiter) WithinRate(ctx context.Context, subjectID string, purpose TokenPurpose, now time.Time) (bool, error) {
	count, err := l.store.CountInWindow(ctx, subjectID, purpose, l.config.IssueWindow, now)
	if err != nil {
		return false, err
	}
	return count < l.config.IssueMaxCount, nil
}
