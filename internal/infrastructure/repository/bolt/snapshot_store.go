package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

var bucketDocumentCache = []byte("document_cache")

// SnapshotStore is the embedded durable store: one JSON value per content hash.
type SnapshotStore struct {
	db *bbolt.DB
}

var _ ports.SnapshotStore = (*SnapshotStore)(nil)

func Open(path string) (*SnapshotStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt dir: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocumentCache); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketDocumentCache, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

func (s *SnapshotStore) Save(_ context.Context, snapshot *domain.DocumentSnapshot) error {
	if snapshot == nil || snapshot.ContentHash == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save snapshot", fmt.Errorf("content hash is required"))
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketDocumentCache).Put([]byte(snapshot.ContentHash), payload); err != nil {
			return fmt.Errorf("put snapshot: %w", err)
		}
		return nil
	})
}

func (s *SnapshotStore) Load(_ context.Context, contentHash string) (*domain.DocumentSnapshot, error) {
	var snapshot domain.DocumentSnapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket(bucketDocumentCache).Get([]byte(contentHash))
		if payload == nil {
			return domain.WrapError(domain.ErrDocumentNotFound, "load snapshot", fmt.Errorf("content_hash=%s", contentHash))
		}
		// payload is only valid inside the transaction
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return fmt.Errorf("unmarshal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketDocumentCache).Stats().KeyN
		return nil
	})
	return n, err
}
