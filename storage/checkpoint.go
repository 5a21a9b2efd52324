package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"google.golang.org/protobuf/encoding/protowire"
)

var checkpointBucket = []byte("snowflake")

// Checkpoint record field numbers
const (
	fieldTimestamp protowire.Number = 1
	fieldSavedAt   protowire.Number = 2
)

// Checkpoint is the last second a worker issued ids for
type Checkpoint struct {
	Timestamp uint64
	SavedAt   time.Time
}

// CheckpointStore keeps id generator checkpoints in a bolt database
type CheckpointStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenCheckpointStore opens or creates the store at path
func OpenCheckpointStore(path string) (*CheckpointStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create checkpoint bucket: %w", err)
	}

	return &CheckpointStore{db: db, now: time.Now}, nil
}

// Get returns the checkpoint recorded for a worker
func (s *CheckpointStore) Get(workerID uint64) (Checkpoint, bool, error) {
	var (
		cp    Checkpoint
		found bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(checkpointBucket).Get(workerKey(workerID))
		if data == nil {
			return nil
		}

		var err error
		cp, err = decodeCheckpoint(data)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to read checkpoint for worker %d: %w", workerID, err)
	}

	return cp, found, nil
}

// Load implements snowflake.Checkpointer
func (s *CheckpointStore) Load(workerID uint64) (uint64, bool, error) {
	cp, ok, err := s.Get(workerID)
	return cp.Timestamp, ok, err
}

// Save implements snowflake.Checkpointer
func (s *CheckpointStore) Save(workerID uint64, timestamp uint64) error {
	data := encodeCheckpoint(Checkpoint{Timestamp: timestamp, SavedAt: s.now()})

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointBucket).Put(workerKey(workerID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write checkpoint for worker %d: %w", workerID, err)
	}

	return nil
}

// Close closes the underlying database
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

func workerKey(workerID uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, workerID)
	return key
}

func encodeCheckpoint(cp Checkpoint) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, cp.Timestamp)
	if !cp.SavedAt.IsZero() {
		b = protowire.AppendTag(b, fieldSavedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(cp.SavedAt.UnixNano()))
	}
	return b
}

func decodeCheckpoint(b []byte) (Checkpoint, error) {
	var (
		cp           Checkpoint
		hasTimestamp bool
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return cp, fmt.Errorf("corrupt checkpoint: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return cp, fmt.Errorf("corrupt checkpoint timestamp: %w", protowire.ParseError(n))
			}
			cp.Timestamp = v
			hasTimestamp = true
			b = b[n:]
		case num == fieldSavedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return cp, fmt.Errorf("corrupt checkpoint save time: %w", protowire.ParseError(n))
			}
			cp.SavedAt = time.Unix(0, int64(v))
			b = b[n:]
		default:
			// Unknown field from a newer writer
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return cp, fmt.Errorf("corrupt checkpoint field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !hasTimestamp {
		return cp, fmt.Errorf("corrupt checkpoint: no timestamp")
	}

	return cp, nil
}
