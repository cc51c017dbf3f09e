package goCred

import (
	"errors"
	"strings"
	"time"
)

// Config defines the tunable policy surface of the engine. Instances are
// configured during initialization and treated as immutable afterwards.
type Config struct {
	Tokens     TokenConfig
	TOTP       TOTPConfig
	OAuthState OAuthStateConfig
	Lockout    LockoutConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig tunes single-use token lifecycles and issuance throttling.
type TokenConfig struct {
	EmailVerificationTTL time.Duration `env:"GOCRED_EMAIL_VERIFICATION_TTL"`
	PasswordResetTTL     time.Duration `env:"GOCRED_PASSWORD_RESET_TTL"`

	// Sliding-window issuance budget, enforced per (subject, purpose).
	// The window is capped at 24h, the retention horizon of the issuance
	// index.
	IssueWindow   time.Duration `env:"GOCRED_ISSUE_WINDOW"`
	IssueMaxCount int           `env:"GOCRED_ISSUE_MAX_COUNT"`
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig tunes the RFC 6238 verifier and backup code issuance.
type TOTPConfig struct {
	Issuer    string `env:"GOCRED_TOTP_ISSUER"`
	Digits    int    `env:"GOCRED_TOTP_DIGITS"`
	Period    int    `env:"GOCRED_TOTP_PERIOD"`
	Algorithm string `env:"GOCRED_TOTP_ALGORITHM"` // "SHA1" (default), "SHA256", "SHA512"
	Skew      int    `env:"GOCRED_TOTP_SKEW"`

	// EnforceReplayProtection rejects a code at or below the last accepted
	// time step for the account.
	EnforceReplayProtection bool `env:"GOCRED_TOTP_REPLAY_PROTECTION"`

	BackupCodeCount  int `env:"GOCRED_BACKUP_CODE_COUNT"`
	BackupCodeLength int `env:"GOCRED_BACKUP_CODE_LENGTH"`
}

/*
====================================
OAUTH STATE CONFIG
====================================
*/

// OAuthStateConfig tunes the stateless CSRF envelope signer.
type OAuthStateConfig struct {
	TTL time.Duration `env:"GOCRED_OAUTH_STATE_TTL"`
	// SecretKey signs the state envelope (HMAC-SHA256). Required when the
	// OAuth state operations are used.
	SecretKey []byte `env:"GOCRED_OAUTH_STATE_KEY"`
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig tunes failure tracking on the account record.
type LockoutConfig struct {
	MaxFailedAttempts int           `env:"GOCRED_LOCKOUT_MAX_FAILURES"`
	LockoutDuration   time.Duration `env:"GOCRED_LOCKOUT_DURATION"`
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"GOCRED_AUDIT_ENABLED"`
	BufferSize int  `env:"GOCRED_AUDIT_BUFFER"`
	DropIfFull bool `env:"GOCRED_AUDIT_DROP_IF_FULL"`
}

// MetricsConfig tunes the in-process counter registry.
type MetricsConfig struct {
	Enabled bool `env:"GOCRED_METRICS_ENABLED"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			EmailVerificationTTL: 24 * time.Hour,
			PasswordResetTTL:     time.Hour,
			IssueWindow:          time.Hour,
			IssueMaxCount:        3,
		},
		TOTP: TOTPConfig{
			Issuer:                  "goCred",
			Digits:                  6,
			Period:                  30,
			Algorithm:               "SHA1",
			Skew:                    1,
			EnforceReplayProtection: true,
			BackupCodeCount:         8,
			BackupCodeLength:        10,
		},
		OAuthState: OAuthStateConfig{
			TTL: 10 * time.Minute,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// DefaultConfig returns the documented policy defaults: 24h email
// verification TTL, 1h password reset TTL, 3 issuances per rolling hour,
// 5 failures before a 15 minute lockout.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OAuthState.SecretKey = cloneBytes(cfg.OAuthState.SecretKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks internal consistency. Called by [Builder.Build]; exposed so
// configurations assembled elsewhere can be checked early.
func (c *Config) Validate() error {
	if c.Tokens.EmailVerificationTTL <= 0 {
		return errors.New("Tokens.EmailVerificationTTL must be positive")
	}
	if c.Tokens.PasswordResetTTL <= 0 {
		return errors.New("Tokens.PasswordResetTTL must be positive")
	}
	if c.Tokens.IssueWindow <= 0 {
		return errors.New("Tokens.IssueWindow must be positive")
	}
	if c.Tokens.IssueWindow > tokenWindowRetention {
		return errors.New("Tokens.IssueWindow must not exceed 24h")
	}
	if c.Tokens.IssueMaxCount <= 0 {
		return errors.New("Tokens.IssueMaxCount must be positive")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return errors.New("TOTP.Digits must be between 6 and 10")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP.Period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 4 {
		return errors.New("TOTP.Skew must be between 0 and 4")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP.Algorithm must be SHA1, SHA256, or SHA512")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP.BackupCodeCount must be positive")
	}
	if c.TOTP.BackupCodeLength < 10 {
		return errors.New("TOTP.BackupCodeLength must be at least 10")
	}
	if c.OAuthState.TTL <= 0 {
		return errors.New("OAuthState.TTL must be positive")
	}
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("Lockout.MaxFailedAttempts must be positive")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("Lockout.LockoutDuration must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive when audit is enabled")
	}
	return nil
}
