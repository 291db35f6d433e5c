package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var itemsBucket = []byte("local_items")

// BoltStore keeps local items in a single bbolt bucket
type BoltStore struct {
	db *bolt.DB
}

var _ Local = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the bolt file at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(itemsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// GetItem loads a value by key
func (s *BoltStore) GetItem(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(itemsBucket).Get([]byte(key))
		if v != nil {
			// v is only valid inside the transaction
			value, found = string(v), true
		}
		return nil
	})
	return value, found, err
}

// SetItem saves or replaces a value
func (s *BoltStore) SetItem(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(itemsBucket).Put([]byte(key), []byte(value))
	})
}

// RemoveItem deletes a key
func (s *BoltStore) RemoveItem(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(itemsBucket).Delete([]byte(key))
	})
}

// Close closes the bolt file
func (s *BoltStore) Close() error {
	return s.db.Close()
}
