package goCred

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix     = "gct"
	tokenScopePrefix   = "gcs"
	tokenWindowPrefix  = "gcw"
	tokenRecordVersion = 1

	// Issuance timestamps older than this are pruned from the window index.
	tokenWindowRetention = 24 * time.Hour

	tokenTxRetries = 4
)

// redisTokenStore is the default [TokenStore]. Records are keyed by the
// SHA-256 of the raw token; a per-scope set indexes the hashes of unused
// tokens so issuance can supersede them in one transaction; a per-subject
// sorted set of creation times backs the sliding-window issuance counter.
type redisTokenStore struct {
	redis redis.UniversalClient
}

// NewRedisTokenStore returns a [TokenStore] backed by the given Redis client.
func NewRedisTokenStore(client redis.UniversalClient) TokenStore {
	return &redisTokenStore{redis: client}
}

func tokenKey(purpose TokenPurpose, tokenHash [32]byte) string {
	return tokenKeyPrefix + ":" + purpose.String() + ":" + hex.EncodeToString(tokenHash[:])
}

func tokenKeyFromHex(purpose TokenPurpose, hashHex string) string {
	return tokenKeyPrefix + ":" + purpose.String() + ":" + hashHex
}

func scopeKey(subjectID string, purpose TokenPurpose, scope string) string {
	return tokenScopePrefix + ":" + purpose.String() + ":" + subjectID + ":" + scope
}

func windowKey(subjectID string, purpose TokenPurpose) string {
	return tokenWindowPrefix + ":" + purpose.String() + ":" + subjectID
}

// Create supersedes every unused token in the record's scope and inserts the
// new row, atomically. Under concurrent issuance the last committed writer's
// row is the sole active one; earlier in-flight tokens become unusable the
// moment this transaction lands.
func (s *redisTokenStore) Create(ctx context.Context, tokenHash [32]byte, record *TokenRecord, ttl time.Duration) error {
	encoded, err := encodeTokenRecord(record)
	if err != nil {
		return err
	}

	recKey := tokenKey(record.Purpose, tokenHash)
	scKey := scopeKey(record.SubjectID, record.Purpose, record.ScopeKey)
	winKey := windowKey(record.SubjectID, record.Purpose)

	for i := 0; i < tokenTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			superseded, err := s.loadScopeMembers(ctx, tx, record.Purpose, scKey, record.CreatedAt)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for key, data := range superseded {
					pipe.Set(ctx, key, data, redis.KeepTTL)
				}
				pipe.Del(ctx, scKey)
				pipe.Set(ctx, recKey, encoded, ttl)
				pipe.SAdd(ctx, scKey, hex.EncodeToString(tokenHash[:]))
				pipe.Expire(ctx, scKey, ttl)
				pipe.ZAdd(ctx, winKey, redis.Z{
					Score:  float64(record.CreatedAt.UnixNano()),
					Member: record.ID,
				})
				pipe.ZRemRangeByScore(ctx, winKey, "-inf",
					fmt.Sprintf("%d", record.CreatedAt.Add(-tokenWindowRetention).UnixNano()))
				pipe.Expire(ctx, winKey, tokenWindowRetention)
				return nil
			})
			return err
		}, scKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: scope contention not resolved", ErrStoreUnavailable)
}

// loadScopeMembers returns the re-encoded records of all currently unused
// tokens in the scope with UsedAt stamped to now, keyed by record key.
func (s *redisTokenStore) loadScopeMembers(ctx context.Context, tx *redis.Tx, purpose TokenPurpose, scKey string, now time.Time) (map[string][]byte, error) {
	members, err := tx.SMembers(ctx, scKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make(map[string][]byte, len(members))
	for _, hashHex := range members {
		key := tokenKeyFromHex(purpose, hashHex)
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// Record expired out from under its index entry.
			continue
		}
		if err != nil {
			return nil, err
		}

		rec, err := decodeTokenRecord(data)
		if err != nil {
			return nil, err
		}
		if rec.Used() {
			continue
		}

		rec.UsedAt = now
		updated, err := encodeTokenRecord(rec)
		if err != nil {
			return nil, err
		}
		out[key] = updated
	}
	return out, nil
}

// FindByHash returns the stored record regardless of its used or expired
// state; callers apply the lookup error order themselves.
func (s *redisTokenStore) FindByHash(ctx context.Context, purpose TokenPurpose, tokenHash [32]byte) (*TokenRecord, error) {
	data, err := s.redis.Get(ctx, tokenKey(purpose, tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeTokenRecord(data)
}

// Consume flips UsedAt from unset to now under WATCH. Exactly one of any
// number of concurrent consumers observes the unset marker and wins.
func (s *redisTokenStore) Consume(ctx context.Context, purpose TokenPurpose, tokenHash [32]byte, now time.Time) (*TokenRecord, error) {
	recKey := tokenKey(purpose, tokenHash)

	for i := 0; i < tokenTxRetries; i++ {
		var consumed *TokenRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, recKey).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrTokenNotFound
			}
			if err != nil {
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}
			if now.After(record.ExpiresAt) {
				return ErrTokenExpired
			}
			if record.Used() {
				return ErrTokenAlreadyUsed
			}

			record.UsedAt = now
			updated, err := encodeTokenRecord(record)
			if err != nil {
				return err
			}

			scKey := scopeKey(record.SubjectID, record.Purpose, record.ScopeKey)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, recKey, updated, redis.KeepTTL)
				pipe.SRem(ctx, scKey, hex.EncodeToString(tokenHash[:]))
				return nil
			})
			if err != nil {
				return err
			}

			consumed = record
			return nil
		}, recKey)

		if err == redis.TxFailedErr {
			// A concurrent writer touched the record between read and commit.
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenAlreadyUsed):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
		return consumed, nil
	}

	return nil, fmt.Errorf("%w: consume contention not resolved", ErrStoreUnavailable)
}

// InvalidateScope marks all unused tokens in the scope as used. A scope with
// no active tokens is a no-op.
func (s *redisTokenStore) InvalidateScope(ctx context.Context, subjectID string, purpose TokenPurpose, scope string, now time.Time) error {
	scKey := scopeKey(subjectID, purpose, scope)

	for i := 0; i < tokenTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			superseded, err := s.loadScopeMembers(ctx, tx, purpose, scKey, now)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for key, data := range superseded {
					pipe.Set(ctx, key, data, redis.KeepTTL)
				}
				pipe.Del(ctx, scKey)
				return nil
			})
			return err
		}, scKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: scope contention not resolved", ErrStoreUnavailable)
}

// CountInWindow counts issuances for (subject, purpose) in the trailing window.
func (s *redisTokenStore) CountInWindow(ctx context.Context, subjectID string, purpose TokenPurpose, window time.Duration, now time.Time) (int, error) {
	from := fmt.Sprintf("%d", now.Add(-window).UnixNano())
	count, err := s.redis.ZCount(ctx, windowKey(subjectID, purpose), from, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(count), nil
}

// SweepExpired scans token records and deletes those past expiry, pruning
// their scope index entries. Redis key TTLs already reclaim most rows; the
// sweep covers deployments without TTL semantics and keeps indexes tight.
// Only rows that are unusable by invariant are touched, so the sweep is safe
// alongside issuance and consumption.
func (s *redisTokenStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	deleted := 0
	var cursor uint64

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, tokenKeyPrefix+":*", 256).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		for _, key := range keys {
			data, err := s.redis.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				// Undecodable rows are garbage; reclaim them.
				if delErr := s.redis.Del(ctx, key).Err(); delErr == nil {
					deleted++
				}
				continue
			}
			if !now.After(record.ExpiresAt) {
				continue
			}

			hashHex := key[len(tokenKeyPrefix)+1+len(record.Purpose.String())+1:]
			scKey := scopeKey(record.SubjectID, record.Purpose, record.ScopeKey)
			pipe := s.redis.TxPipeline()
			pipe.Del(ctx, key)
			pipe.SRem(ctx, scKey, hashHex)
			if _, err := pipe.Exec(ctx); err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			deleted++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	// Window indexes shed entries older than the retention horizon.
	cursor = 0
	horizon := fmt.Sprintf("%d", now.Add(-tokenWindowRetention).UnixNano())
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, tokenWindowPrefix+":*", 256).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		for _, key := range keys {
			if err := s.redis.ZRemRangeByScore(ctx, key, "-inf", horizon).Err(); err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

func encodeTokenRecord(record *TokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersion)
	buf.WriteByte(byte(record.Purpose))

	for _, ts := range []time.Time{record.CreatedAt, record.ExpiresAt, record.UsedAt} {
		var unix int64
		if !ts.IsZero() {
			unix = ts.Unix()
		}
		if err := binary.Write(&buf, binary.BigEndian, unix); err != nil {
			return nil, err
		}
	}

	for _, field := range []string{record.ID, record.SubjectID, record.ScopeKey, record.Metadata.IPAddress, record.Metadata.UserAgent} {
		if len(field) > 65535 {
			return nil, errors.New("token record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersion {
		return nil, errors.New("invalid token record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &TokenRecord{Purpose: TokenPurpose(purpose)}

	var created, expires, used int64
	for _, dst := range []*int64{&created, &expires, &used} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}
	record.CreatedAt = time.Unix(created, 0).UTC()
	record.ExpiresAt = time.Unix(expires, 0).UTC()
	if used != 0 {
		record.UsedAt = time.Unix(used, 0).UTC()
	}

	for _, dst := range []*string{&record.ID, &record.SubjectID, &record.ScopeKey, &record.Metadata.IPAddress, &record.Metadata.UserAgent} {
		var fieldLen uint16
		if err := binary.Read(reader, binary.BigEndian, &fieldLen); err != nil {
			return nil, err
		}
		field := make([]byte, fieldLen)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		*dst = string(field)
	}

	return record, nil
}
