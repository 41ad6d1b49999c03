// Package store persists anchors in BoltDB, one JSON value per account key.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"curator/internal/domain"
)

var bucketAnchors = []byte("anchors")

// BoltAnchorStore is a bbolt-backed anchor cache. It has no TTL; a save
// overwrites the previous value and the last writer wins.
type BoltAnchorStore struct {
	db *bbolt.DB
}

type storedAnchor struct {
	Vector  []float32         `json:"v"`
	BuiltAt int64             `json:"built_at"`
	Stats   domain.BuildStats `json:"stats"`
}

// NewBoltAnchorStore opens (or creates) the anchor database at path.
func NewBoltAnchorStore(path string) (*BoltAnchorStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open anchor db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAnchors)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create anchors bucket: %w", err)
	}
	return &BoltAnchorStore{db: db}, nil
}

// Load returns the cached anchor for accountKey, or nil on a miss.
func (s *BoltAnchorStore) Load(ctx context.Context, accountKey string) (*domain.Anchor, error) {
	var anchor *domain.Anchor
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAnchors).Get([]byte(domain.CanonicalUsername(accountKey)))
		if data == nil {
			return nil
		}
		var stored storedAnchor
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("corrupt anchor for %q: %w", accountKey, err)
		}
		anchor = &domain.Anchor{
			Vector:  stored.Vector,
			BuiltAt: time.Unix(stored.BuiltAt, 0).UTC(),
			Stats:   stored.Stats,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return anchor, nil
}

// Save overwrites the cached anchor for accountKey. Saving nil is a no-op.
func (s *BoltAnchorStore) Save(ctx context.Context, accountKey string, anchor *domain.Anchor) error {
	if anchor == nil {
		return nil
	}
	stored := storedAnchor{
		Vector:  anchor.Vector,
		BuiltAt: anchor.BuiltAt.Unix(),
		Stats:   anchor.Stats,
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAnchors).Put([]byte(domain.CanonicalUsername(accountKey)), data)
	})
}

// Close closes the underlying database.
func (s *BoltAnchorStore) Close() error {
	return s.db.Close()
}
