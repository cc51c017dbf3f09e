package goCred

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goCred/password"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first Engine method call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	tokenStore TokenStore
	accounts   AccountRepository
	hasher     CredentialHasher
	notifier   Notifier
	auditSink  AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the default token and MFA stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTokenStore overrides the default Redis-backed [TokenStore].
func (b *Builder) WithTokenStore(store TokenStore) *Builder {
	b.tokenStore = store
	return b
}

// WithAccounts sets the account repository used for password re-verification
// and lockout tracking.
func (b *Builder) WithAccounts(repo AccountRepository) *Builder {
	b.accounts = repo
	return b
}

// WithHasher sets the credential hasher for passwords and backup codes.
// Defaults to [password.NewDefaultHasher].
func (b *Builder) WithHasher(hasher CredentialHasher) *Builder {
	b.hasher = hasher
	return b
}

// WithNotifier sets the out-of-band delivery collaborator. Optional; without
// it, issued tokens are only returned to the caller.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit event receiver.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires the stores and guards, and
// returns the ready Engine. A Builder can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil && b.tokenStore == nil {
		return nil, errors.New("redis client or token store required")
	}
	if b.accounts == nil {
		return nil, errors.New("account repository required")
	}

	hasher := b.hasher
	if hasher == nil {
		hasher = password.NewDefaultHasher()
	}

	tokens := b.tokenStore
	if tokens == nil {
		tokens = NewRedisTokenStore(b.redis)
	}

	engine := &Engine{
		config:   cfg,
		tokens:   tokens,
		limiter:  newIssuanceLimiter(tokens, cfg.Tokens),
		lockouts: newLockoutGuard(b.accounts, cfg.Lockout),
		totp:     newTOTPManager(cfg.TOTP),
		hasher:   hasher,
		notifier: b.notifier,
		accounts: b.accounts,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),
	}

	// MFA state lives in Redis only; without a client the MFA operations
	// report ErrEngineNotReady.
	if b.redis != nil {
		engine.mfa = newMFAStore(b.redis)
	}

	if len(cfg.OAuthState.SecretKey) > 0 {
		signer, err := NewStateSigner(cfg.OAuthState.SecretKey, cfg.OAuthState.TTL)
		if err != nil {
			return nil, err
		}
		engine.state = signer
	}

	b.built = true

	return engine, nil
}
