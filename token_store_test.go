package goCred

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goCred/internal"
	"github.com/google/uuid"
)

func seedToken(t *testing.T, store TokenStore, subjectID, scope string, ttl time.Duration) (string, [32]byte, *TokenRecord) {
	t.Helper()

	raw, err := internal.NewTokenSecret(internal.TokenSecretMinBytes)
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}
	hash := internal.HashTokenSecret(raw)
	now := time.Now()
	record := &TokenRecord{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Purpose:   PurposeEmailVerification,
		ScopeKey:  scope,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := store.Create(context.Background(), hash, record, ttl); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return raw, hash, record
}

func TestStoreConsumeRemovesScopeIndexEntry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	store := NewRedisTokenStore(rdb)
	ctx := context.Background()

	_, hash, record := seedToken(t, store, "u1", "alice@example.com", time.Hour)

	scKey := scopeKey("u1", PurposeEmailVerification, "alice@example.com")
	members, err := rdb.SMembers(ctx, scKey).Result()
	if err != nil || len(members) != 1 {
		t.Fatalf("expected one indexed hash, got %v err=%v", members, err)
	}
	if members[0] != hex.EncodeToString(hash[:]) {
		t.Fatalf("index holds %q, want token hash", members[0])
	}

	if _, err := store.Consume(ctx, record.Purpose, hash, time.Now()); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	members, err = rdb.SMembers(ctx, scKey).Result()
	if err != nil || len(members) != 0 {
		t.Fatalf("expected empty index after consume, got %v err=%v", members, err)
	}
}

func TestStoreCountInWindowIsTrailing(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	store := NewRedisTokenStore(rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedToken(t, store, "u1", "alice@example.com", time.Hour)
	}

	count, err := store.CountInWindow(ctx, "u1", PurposeEmailVerification, time.Hour, time.Now())
	if err != nil || count != 3 {
		t.Fatalf("expected 3 in window, got %d err=%v", count, err)
	}

	// A window ending before the issuances sees nothing.
	count, err = store.CountInWindow(ctx, "u1", PurposeEmailVerification, time.Millisecond, time.Now().Add(time.Minute))
	if err != nil || count != 0 {
		t.Fatalf("expected 0 in shifted window, got %d err=%v", count, err)
	}

	count, err = store.CountInWindow(ctx, "u2", PurposeEmailVerification, time.Hour, time.Now())
	if err != nil || count != 0 {
		t.Fatalf("other subject must count 0, got %d err=%v", count, err)
	}
}

// conflictingWriter rewrites the watched key before every queued transaction
// is sent, so EXEC can never commit.
type conflictingWriter struct {
	direct *redis.Client
	key    string
}

func (h conflictingWriter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h conflictingWriter) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h conflictingWriter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if data, err := h.direct.Get(ctx, h.key).Result(); err == nil {
			h.direct.Set(ctx, h.key, data, redis.KeepTTL)
		}
		return next(ctx, cmds)
	}
}

func TestStoreConsumeContentionReportsUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	store := NewRedisTokenStore(rdb)
	ctx := context.Background()

	_, hash, record := seedToken(t, store, "u1", "alice@example.com", time.Hour)

	contended := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer contended.Close()
	contended.AddHook(conflictingWriter{direct: rdb, key: tokenKey(record.Purpose, hash)})

	_, err := NewRedisTokenStore(contended).Consume(ctx, record.Purpose, hash, time.Now())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable after exhausted retries, got %v", err)
	}
	if errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatal("contention must not read as a spent token")
	}

	// The token was never spent; an uncontended consumer still wins.
	if _, err := store.Consume(ctx, record.Purpose, hash, time.Now()); err != nil {
		t.Fatalf("clean consume failed: %v", err)
	}
}

func TestStoreOperationsFailWhenRedisUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisTokenStore(rdb)
	ctx := context.Background()

	_, hash, _ := seedToken(t, store, "u1", "alice@example.com", time.Hour)

	mr.Close()

	if _, err := store.FindByHash(ctx, PurposeEmailVerification, hash); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from FindByHash, got %v", err)
	}
	if _, err := store.Consume(ctx, PurposeEmailVerification, hash, time.Now()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from Consume, got %v", err)
	}
	if _, err := store.CountInWindow(ctx, "u1", PurposeEmailVerification, time.Hour, time.Now()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from CountInWindow, got %v", err)
	}
}

func TestStoreSweepPrunesWindowIndex(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	store := NewRedisTokenStore(rdb)
	ctx := context.Background()

	seedToken(t, store, "u1", "alice@example.com", time.Hour)

	// Far enough in the future that the retention horizon passes the entry.
	future := time.Now().Add(tokenWindowRetention + time.Hour)
	if _, err := store.SweepExpired(ctx, future); err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}

	count, err := store.CountInWindow(ctx, "u1", PurposeEmailVerification, 2*tokenWindowRetention, future)
	if err != nil || count != 0 {
		t.Fatalf("expected pruned window index, got %d err=%v", count, err)
	}
}
