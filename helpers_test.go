package goCred

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goCred/internal"
	"github.com/MrEthical07/goCred/password"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// newTestHasher uses the cheapest allowed Argon2id parameters so tests that
// hash backup codes stay fast.
func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()

	h, err := password.NewHasher(password.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("hasher init failed: %v", err)
	}
	return h
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	return cfg
}

type mockAccounts struct {
	mu       sync.Mutex
	accounts map[string]AccountRecord
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{accounts: make(map[string]AccountRecord)}
}

func (m *mockAccounts) Put(a AccountRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.AccountID] = a
}

func (m *mockAccounts) Snapshot(accountID string) AccountRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[accountID]
}

func (m *mockAccounts) GetAccount(_ context.Context, accountID string) (AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return AccountRecord{}, fmt.Errorf("account %q not found", accountID)
	}
	return a, nil
}

func (m *mockAccounts) UpdateLockout(_ context.Context, accountID string, failedAttempts int, lockedUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %q not found", accountID)
	}
	a.FailedResetAttempts = failedAttempts
	a.ResetLockedUntil = lockedUntil
	m.accounts[accountID] = a
	return nil
}

type sentNotification struct {
	purpose     TokenPurpose
	subjectID   string
	destination string
	secret      string
}

type mockNotifier struct {
	mu       sync.Mutex
	sent     []sentNotification
	failWith error
}

func (n *mockNotifier) Send(_ context.Context, purpose TokenPurpose, subjectID, destination, secret string, _ TokenMetadata) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failWith != nil {
		return n.failWith
	}
	n.sent = append(n.sent, sentNotification{
		purpose:     purpose,
		subjectID:   subjectID,
		destination: destination,
		secret:      secret,
	})
	return nil
}

func (n *mockNotifier) last(t *testing.T) sentNotification {
	t.Helper()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("expected at least one notification")
	}
	return n.sent[len(n.sent)-1]
}

func newTestEngine(t *testing.T, cfg Config, accounts *mockAccounts, notifier Notifier) (*Engine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(accounts).
		WithHasher(newTestHasher(t))
	if notifier != nil {
		builder = builder.WithNotifier(notifier)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("engine build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func seedAccount(accounts *mockAccounts, t *testing.T, hasher *password.Hasher, accountID, email, pass string) {
	t.Helper()

	hash, err := hasher.Hash(pass)
	if err != nil {
		t.Fatalf("seed password hash failed: %v", err)
	}
	accounts.Put(AccountRecord{AccountID: accountID, Email: email, PasswordHash: hash})
}

// totpCodeAt derives the code for an explicit time step so tests control
// replay behavior without sleeping across period boundaries.
func totpCodeAt(t *testing.T, secretBase32 string, cfg TOTPConfig, counter int64) string {
	t.Helper()

	secret, err := internal.DecodeTOTPSecret(secretBase32)
	if err != nil {
		t.Fatalf("decode totp secret failed: %v", err)
	}
	code, err := hotpCode(secret, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func currentTOTPCounter(cfg TOTPConfig) int64 {
	return time.Now().Unix() / int64(cfg.Period)
}
