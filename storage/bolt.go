package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var _ KV = (*Bolt)(nil)

// DefaultBoltBucket is the bucket used when BoltOptions.Bucket is empty.
const DefaultBoltBucket = "authsession"

// BoltOptions configures a bbolt-backed store.
type BoltOptions struct {
	// Path is the database file. It must be writable by the process.
	Path string
	// Bucket holds all keys. Defaults to DefaultBoltBucket.
	Bucket string
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
}

// Bolt stores keys in one bucket of a bbolt database.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBolt opens (creating if needed) the database and bucket.
func OpenBolt(o BoltOptions) (*Bolt, error) {
	if o.Path == "" {
		return nil, errors.New("storage/bolt: path is required")
	}
	if o.Bucket == "" {
		o.Bucket = DefaultBoltBucket
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}

	db, err := bolt.Open(o.Path, 0o600, &bolt.Options{Timeout: o.Timeout})
	if err != nil {
		return nil, fmt.Errorf("storage/bolt: open %s: %w", o.Path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(o.Bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage/bolt: create bucket: %w", err)
	}

	return &Bolt{db: db, bucket: []byte(o.Bucket)}, nil
}

func (s *Bolt) Get(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	var (
		value []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(s.bucket).Get([]byte(key))
		if data != nil {
			found = true
			// only valid inside the transaction
			value = append(data[:0:0], data...)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("storage/bolt: get %q: %w", key, err)
	}
	if !found {
		return "", ErrNotFound
	}
	return string(value), nil
}

func (s *Bolt) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("storage/bolt: set %q: %w", key, err)
	}
	return nil
}

func (s *Bolt) Remove(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("storage/bolt: remove %q: %w", key, err)
	}
	return nil
}

// Close releases the database file lock.
func (s *Bolt) Close() error {
	return s.db.Close()
}
