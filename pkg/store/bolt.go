package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"resumepay/models"
)

const attemptsBucket = "verification_attempts"

// BoltStore keeps attempts in an embedded bbolt file, keyed by a big-endian
// sequence so cursor order is insertion order.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(attemptsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) SaveAttempt(_ context.Context, a *models.VerificationAttempt) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(attemptsBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		a.ID = uint(seq)
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now()
		}
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal attempt: %w", err)
		}
		return b.Put(seqKey(seq), data)
	})
}

func (s *BoltStore) ListAttempts(ctx context.Context, limit int) ([]models.VerificationAttempt, error) {
	limit = clampLimit(limit)
	var out []models.VerificationAttempt
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(attemptsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var a models.VerificationAttempt
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("decode attempt %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListBetween walks the whole bucket. Keys follow insertion order, which need
// not match CreatedAt when callers set it themselves.
func (s *BoltStore) ListBetween(ctx context.Context, start, end time.Time) ([]models.VerificationAttempt, error) {
	var out []models.VerificationAttempt
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(attemptsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var a models.VerificationAttempt
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("decode attempt %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if a.CreatedAt.Before(start) || !a.CreatedAt.Before(end) {
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}
