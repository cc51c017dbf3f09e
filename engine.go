package goCred

// Engine is the facade over the credential subsystems: single-use token
// lifecycle, multi-factor authentication, stateless OAuth state signing, and
// abuse control. Construct it through [Builder.Build]; afterwards all methods
// are safe for concurrent use.
type Engine struct {
	config   Config
	tokens   TokenStore
	mfa      *mfaStore
	limiter  *issuanceLimiter
	lockouts *lockoutGuard
	totp     *totpManager
	state    *StateSigner
	hasher   CredentialHasher
	notifier Notifier
	accounts AccountRepository
	audit    *auditDispatcher
	metrics  *Metrics
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}
