package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketCaches = []byte("caches")
)

// BoltStore implements Store using BoltDB. All blobs live in a single
// heartbeat.db file, one key per blob name.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "heartbeat.db")

	// another daemon holding the file lock fails the open instead of hanging
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCaches); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketCaches, err)
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load(name string) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCaches)
		data := b.Get([]byte(name))
		if data == nil {
			return ErrNotFound
		}
		// data is only valid for the life of the transaction
		blob = append([]byte{}, data...)
		return nil
	})
	return blob, err
}

func (s *BoltStore) Save(name string, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCaches)
		return b.Put([]byte(name), blob)
	})
}

// Names lists every saved blob name
func (s *BoltStore) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCaches)
		return b.ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}
