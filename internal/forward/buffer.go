// Package forward implements the store-and-forward rolling local buffer:
// an append-only, capacity- and age-bounded spill area for telemetry
// batches that could not be transmitted, with ordered replay on
// recovery. The on-disk shape (BoltDB buckets, ACID transactions,
// sortable composite keys, cursor-bounded pruning) is adapted from the
// teacher's ledger/baseline store.
package forward

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/leopark123/intellimaint-pro/internal/model"
	"github.com/leopark123/intellimaint-pro/internal/observability"
)

const (
	SchemaVersion = "1"

	bucketBatches = "forward_batches"
	bucketMeta    = "forward_meta"

	metaKeySchemaVersion = "schema_version"
	metaKeyTotalBytes    = "total_bytes"
)

// Batch is one spilled unit: an ordered set of points stored together so
// replay preserves both batch order and within-batch order.
type Batch struct {
	ID       uint64
	Points   []model.TelemetryPoint
	StoredAt int64 // epoch millis, used for retention-days eviction
}

// Buffer is the BoltDB-backed rolling store-and-forward buffer. Shares
// its underlying *bolt.DB with internal/audit so both concerns live in
// one local file, per spec.md's supplemented audit-ledger feature.
type Buffer struct {
	db             *bolt.DB
	log            *zap.Logger
	metrics        *observability.Metrics
	maxStoreSizeMB int64
	retentionDays  int
}

// Open opens (or creates) the BoltDB file backing the rolling buffer and
// initializes its buckets. The returned *bolt.DB may be reused by
// internal/audit to add its own bucket to the same file.
func Open(path string, maxStoreSizeMB int64, retentionDays int, log *zap.Logger, metrics *observability.Metrics) (*Buffer, *bolt.DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("forward: bolt.Open(%q): %w", path, err)
	}

	b := &Buffer{db: bdb, log: log, metrics: metrics, maxStoreSizeMB: maxStoreSizeMB, retentionDays: retentionDays}

	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketBatches, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte(metaKeySchemaVersion)) == nil {
			if err := meta.Put([]byte(metaKeySchemaVersion), []byte(SchemaVersion)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, nil, fmt.Errorf("forward: initialisation failed: %w", err)
	}

	return b, bdb, nil
}

func (b *Buffer) Close() error {
	return b.db.Close()
}

// batchKey produces a FIFO-ordered key from BoltDB's per-bucket
// auto-incrementing sequence, immune to clock skew across restarts
// (spec.md §4.2: "Ordering across restart must preserve file and
// within-file order").
func batchKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Spill persists points as one new batch, evicting the oldest batches if
// the store exceeds MaxStoreSizeMB. Implements edge.Spiller.
func (b *Buffer) Spill(ctx context.Context, points []model.TelemetryPoint) error {
	if len(points) == 0 {
		return nil
	}
	batch := Batch{Points: points, StoredAt: time.Now().UnixMilli()}
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("forward: marshal batch: %w", err)
	}

	start := time.Now()
	err = b.db.Update(func(tx *bolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBatches))
		seq, err := bb.NextSequence()
		if err != nil {
			return err
		}
		batch.ID = seq
		data, err = json.Marshal(batch)
		if err != nil {
			return err
		}
		if err := bb.Put(batchKey(seq), data); err != nil {
			return err
		}
		return b.addTotalBytes(tx, int64(len(data)))
	})
	if b.metrics != nil {
		b.metrics.StorageWriteLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("forward: spill: %w", err)
	}

	b.updateGauges()
	return b.evictIfOversized()
}

func (b *Buffer) addTotalBytes(tx *bolt.Tx, delta int64) error {
	meta := tx.Bucket([]byte(bucketMeta))
	cur := int64(0)
	if v := meta.Get([]byte(metaKeyTotalBytes)); v != nil {
		cur = int64(binary.BigEndian.Uint64(v))
	}
	cur += delta
	if cur < 0 {
		cur = 0
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(cur))
	return meta.Put([]byte(metaKeyTotalBytes), buf)
}

func (b *Buffer) totalBytes() int64 {
	var total int64
	_ = b.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		if v := meta.Get([]byte(metaKeyTotalBytes)); v != nil {
			total = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return total
}

// evictIfOversized deletes the oldest batches (lowest sequence number)
// until the store is back under MaxStoreSizeMB.
func (b *Buffer) evictIfOversized() error {
	limitBytes := b.maxStoreSizeMB * 1024 * 1024
	if limitBytes <= 0 {
		return nil
	}
	for b.totalBytes() > limitBytes {
		evicted, err := b.evictOldest()
		if err != nil {
			return err
		}
		if !evicted {
			break
		}
		if b.metrics != nil {
			b.metrics.PointsDroppedTotal.WithLabelValues("disk_exhausted").Inc()
		}
	}
	return nil
}

func (b *Buffer) evictOldest() (bool, error) {
	evicted := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBatches))
		c := bb.Cursor()
		k, v := c.First()
		if k == nil {
			return nil
		}
		if err := bb.Delete(k); err != nil {
			return err
		}
		evicted = true
		return b.addTotalBytes(tx, -int64(len(v)))
	})
	return evicted, err
}

// PruneExpired deletes batches older than RetentionDays, independent of
// size pressure.
func (b *Buffer) PruneExpired() (int, error) {
	cutoff := time.Now().AddDate(0, 0, -b.retentionDays).UnixMilli()
	deleted := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBatches))
		c := bb.Cursor()
		var toDelete [][]byte
		var freedBytes int64
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var batch Batch
			if err := json.Unmarshal(v, &batch); err != nil {
				continue
			}
			if batch.StoredAt >= cutoff {
				continue
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
			freedBytes += int64(len(v))
		}
		for _, k := range toDelete {
			if err := bb.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return b.addTotalBytes(tx, -freedBytes)
	})
	b.updateGauges()
	return deleted, err
}

// NextPending implements edge.ReplaySource: it returns the oldest
// undelivered batch's id and points, or ok=false if the buffer is empty.
func (b *Buffer) NextPending() (uint64, []model.TelemetryPoint, bool, error) {
	batch, ok, err := b.OldestBatch()
	if err != nil || !ok {
		return 0, nil, ok, err
	}
	return batch.ID, batch.Points, true, nil
}

// OldestBatch returns the oldest undelivered batch, or (Batch{}, false)
// if the buffer is empty. The caller attempts delivery and calls
// Acknowledge on success.
func (b *Buffer) OldestBatch() (Batch, bool, error) {
	var batch Batch
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBatches))
		k, v := bb.Cursor().First()
		if k == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &batch)
	})
	return batch, found, err
}

// Acknowledge deletes a successfully-replayed batch.
func (b *Buffer) Acknowledge(id uint64) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBatches))
		key := batchKey(id)
		v := bb.Get(key)
		if v == nil {
			return nil
		}
		if err := bb.Delete(key); err != nil {
			return err
		}
		return b.addTotalBytes(tx, -int64(len(v)))
	})
	b.updateGauges()
	return err
}

// PendingPoints sums the point count across all spilled batches.
func (b *Buffer) PendingPoints() (int64, error) {
	var total int64
	err := b.db.View(func(tx *bolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBatches))
		return bb.ForEach(func(_, v []byte) error {
			var batch Batch
			if err := json.Unmarshal(v, &batch); err != nil {
				return nil
			}
			total += int64(len(batch.Points))
			return nil
		})
	})
	return total, err
}

func (b *Buffer) updateGauges() {
	if b.metrics == nil {
		return
	}
	if pending, err := b.PendingPoints(); err == nil {
		b.metrics.PendingPoints.Set(float64(pending))
	}
	b.metrics.StoredMB.Set(float64(b.totalBytes()) / (1024 * 1024))
}
