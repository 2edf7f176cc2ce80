package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketLedger = "audit_ledger"
)

// Record is a validated Decision as persisted to the ledger bucket.
type Record struct {
	Seq          uint64
	EntityType   string
	EntityID     string
	FromStatus   int
	ToStatus     int
	Ts           int64
	NodeID       string
	Inputs       map[string]any
	DecisionHash string
	ParentHash   string
}

// Store persists validated decisions to a bucket in a shared *bolt.DB,
// the same file internal/forward's rolling buffer opens, so both
// concerns live in one local file.
type Store struct {
	db *bolt.DB
}

// Open ensures the ledger bucket exists in db and returns a Store bound
// to it. db is expected to already be open (typically the handle
// returned by forward.Open).
func Open(db *bolt.DB) (*Store, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketLedger))
		return err
	}); err != nil {
		return nil, fmt.Errorf("audit: ensure bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func recordKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Append writes a validated Decision to the ledger, keyed by the
// bucket's auto-incrementing sequence so iteration order matches
// insertion order regardless of wall-clock skew.
func (s *Store) Append(d *Decision) (uint64, error) {
	if !d.Valid {
		return 0, fmt.Errorf("audit: refusing to persist an unvalidated decision")
	}
	rec := Record{
		EntityType:   d.EntityType,
		EntityID:     d.EntityID,
		FromStatus:   d.FromStatus,
		ToStatus:     d.ToStatus,
		Ts:           d.Ts,
		NodeID:       d.NodeID,
		Inputs:       d.Inputs,
		DecisionHash: d.DecisionHash,
		ParentHash:   d.ParentHash,
	}

	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		var err error
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(recordKey(seq), data)
	})
	return seq, err
}

// ReadAll returns every ledger record in insertion order, for
// inspection and replay verification.
func (s *Store) ReadAll() ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		return b.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// DeleteBefore deletes ledger records with Ts < cutoffTs, implementing
// retention.Deleter so the audit ledger participates in the same
// cleanup sweep as the telemetry tables.
func (s *Store) DeleteBefore(ctx context.Context, cutoffTs int64) (int64, error) {
	var deleted int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if rec.Ts >= cutoffTs {
				continue
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
