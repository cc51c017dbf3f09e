package goCred

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mfaKeyPrefix     = "gcm"
	mfaRecordVersion = 1

	// Unconfirmed setup records expire so abandoned provisioning does not
	// leave secrets behind.
	mfaPendingTTL = time.Hour
)

var errMFARecordNotFound = errors.New("mfa record not found")

// mfaRecord is the persisted multi-factor state for one account.
// ConfirmedAt of zero marks a provisioned-but-unconfirmed secret. A consumed
// backup code slot holds the empty string; slot order is preserved so the
// issued count stays visible.
type mfaRecord struct {
	Secret           []byte
	ConfirmedAt      int64
	LastUsedCounter  int64
	BackupCodeHashes []string
}

func (r *mfaRecord) status() MFAStatus {
	switch {
	case r == nil || len(r.Secret) == 0:
		return MFADisabled
	case r.ConfirmedAt == 0:
		return MFAPendingConfirmation
	default:
		return MFAEnabled
	}
}

func (r *mfaRecord) remainingBackupCodes() int {
	n := 0
	for _, h := range r.BackupCodeHashes {
		if h != "" {
			n++
		}
	}
	return n
}

type mfaStore struct {
	redis redis.UniversalClient
}

func newMFAStore(client redis.UniversalClient) *mfaStore {
	return &mfaStore{redis: client}
}

func mfaKey(accountID string) string {
	return mfaKeyPrefix + ":" + accountID
}

func (s *mfaStore) Get(ctx context.Context, accountID string) (*mfaRecord, error) {
	data, err := s.redis.Get(ctx, mfaKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errMFARecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeMFARecord(data)
}

// Save persists the record. Pending records carry [mfaPendingTTL]; confirming
// the setup rewrites the key without expiry.
func (s *mfaStore) Save(ctx context.Context, accountID string, record *mfaRecord) error {
	encoded, err := encodeMFARecord(record)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if record.status() == MFAPendingConfirmation {
		ttl = mfaPendingTTL
	}
	if err := s.redis.Set(ctx, mfaKey(accountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete clears secret, confirmation, and backup codes in one key removal.
func (s *mfaStore) Delete(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, mfaKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ConsumeBackupSlot nulls the given slot under WATCH. Returns false when the
// slot was already consumed by a concurrent verification.
func (s *mfaStore) ConsumeBackupSlot(ctx context.Context, accountID string, slot int) (bool, error) {
	key := mfaKey(accountID)

	for i := 0; i < tokenTxRetries; i++ {
		consumed := false

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return errMFARecordNotFound
			}
			if err != nil {
				return err
			}

			record, err := decodeMFARecord(data)
			if err != nil {
				return err
			}
			if slot < 0 || slot >= len(record.BackupCodeHashes) || record.BackupCodeHashes[slot] == "" {
				return nil
			}

			record.BackupCodeHashes[slot] = ""
			updated, err := encodeMFARecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = true
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, errMFARecordNotFound) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return consumed, nil
	}

	return false, nil
}

// AdvanceCounter raises the last accepted TOTP step. Returns false when the
// supplied counter does not advance the stored one, which marks a replay.
func (s *mfaStore) AdvanceCounter(ctx context.Context, accountID string, counter int64) (bool, error) {
	key := mfaKey(accountID)

	for i := 0; i < tokenTxRetries; i++ {
		advanced := false

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return errMFARecordNotFound
			}
			if err != nil {
				return err
			}

			record, err := decodeMFARecord(data)
			if err != nil {
				return err
			}
			if counter <= record.LastUsedCounter {
				return nil
			}

			record.LastUsedCounter = counter
			updated, err := encodeMFARecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}

			advanced = true
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, errMFARecordNotFound) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return advanced, nil
	}

	return false, nil
}

func encodeMFARecord(record *mfaRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(mfaRecordVersion)

	if err := binary.Write(&buf, binary.BigEndian, record.ConfirmedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.LastUsedCounter); err != nil {
		return nil, err
	}

	if len(record.Secret) > 65535 {
		return nil, errors.New("mfa secret too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Secret))); err != nil {
		return nil, err
	}
	buf.Write(record.Secret)

	if len(record.BackupCodeHashes) > 65535 {
		return nil, errors.New("too many backup codes")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.BackupCodeHashes))); err != nil {
		return nil, err
	}
	for _, h := range record.BackupCodeHashes {
		if len(h) > 65535 {
			return nil, errors.New("backup code hash too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(h))); err != nil {
			return nil, err
		}
		buf.WriteString(h)
	}

	return buf.Bytes(), nil
}

func decodeMFARecord(data []byte) (*mfaRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != mfaRecordVersion {
		return nil, errors.New("invalid mfa record version")
	}

	record := &mfaRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.ConfirmedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.LastUsedCounter); err != nil {
		return nil, err
	}

	var secretLen uint16
	if err := binary.Read(reader, binary.BigEndian, &secretLen); err != nil {
		return nil, err
	}
	record.Secret = make([]byte, secretLen)
	if _, err := io.ReadFull(reader, record.Secret); err != nil {
		return nil, err
	}

	var codeCount uint16
	if err := binary.Read(reader, binary.BigEndian, &codeCount); err != nil {
		return nil, err
	}
	record.BackupCodeHashes = make([]string, codeCount)
	for i := range record.BackupCodeHashes {
		var hashLen uint16
		if err := binary.Read(reader, binary.BigEndian, &hashLen); err != nil {
			return nil, err
		}
		h := make([]byte, hashLen)
		if _, err := io.ReadFull(reader, h); err != nil {
			return nil, err
		}
		record.BackupCodeHashes[i] = string(h)
	}

	return record, nil
}
