package goCred

import "sync/atomic"

// MetricID identifies an engine counter.
type MetricID uint16

const (
	// MetricTokenIssued counts successful token issuances.
	MetricTokenIssued MetricID = iota
	// MetricTokenIssueRateLimited counts issuances refused by the sliding window.
	MetricTokenIssueRateLimited
	// MetricTokenIssueLockedOut counts issuances refused by an active lockout.
	MetricTokenIssueLockedOut
	// MetricTokenValidated counts successful non-consuming validations.
	MetricTokenValidated
	// MetricTokenConsumed counts successful consumptions.
	MetricTokenConsumed
	// MetricTokenRejected counts failed validations and consumptions.
	MetricTokenRejected
	// MetricTokenSwept counts rows removed by expiry sweeps.
	MetricTokenSwept
	// MetricMFASetupInitiated counts MFA provisioning starts.
	MetricMFASetupInitiated
	// MetricMFASetupConfirmed counts MFA activations.
	MetricMFASetupConfirmed
	// MetricMFAChallengeSuccess counts accepted TOTP and backup codes.
	MetricMFAChallengeSuccess
	// MetricMFAChallengeFailure counts rejected TOTP and backup codes.
	MetricMFAChallengeFailure
	// MetricMFABackupCodeUsed counts consumed backup code slots.
	MetricMFABackupCodeUsed
	// MetricMFADisabled counts MFA teardowns.
	MetricMFADisabled
	// MetricStateIssued counts signed OAuth state envelopes.
	MetricStateIssued
	// MetricStateVerified counts accepted OAuth state envelopes.
	MetricStateVerified
	// MetricStateRejected counts OAuth state envelopes failing verification.
	MetricStateRejected
	// MetricLockoutStarted counts lockouts triggered by failure thresholds.
	MetricLockoutStarted

	metricCount
)

// Metrics is a fixed-size atomic counter registry. All methods are safe for
// concurrent use; a disabled registry is a no-op.
type Metrics struct {
	enabled  bool
	counters [metricCount]atomic.Uint64
}

// NewMetrics returns a registry honoring cfg.Enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Add increments the counter for id by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].Add(n)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	out := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil || !m.enabled {
		return out
	}
	for id := MetricID(0); id < metricCount; id++ {
		out.Counters[id] = m.counters[id].Load()
	}
	return out
}
