package kvstore

import (
	"bytes"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const fileMode = 0600

var defaultTimeout = 1 * time.Second

// BoltStore is a KeyValueStore backed by a single BoltDB bucket
type BoltStore struct {
	logger *zap.Logger
	db     *bolt.DB
	bucket []byte
}

// NewBoltStore opens (or creates) a BoltDB file and the named bucket
func NewBoltStore(logger *zap.Logger, path, bucket string) (*BoltStore, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{
		logger: logger,
		db:     db,
		bucket: []byte(bucket),
	}, nil
}

// Put stores a value under the given key
func (s *BoltStore) Put(key Key, value Value) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(key, value)
	})
}

// Get returns the value stored under the given key, or nil if absent
func (s *BoltStore) Get(key Key) (Value, error) {
	var value Value
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(s.bucket).Get(key)
		if data == nil {
			return nil
		}
		value = make(Value, len(data))
		copy(value, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes the key; absent keys are not an error
func (s *BoltStore) Delete(key Key) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(key)
	})
}

// List returns keys with the given prefix in ascending order
func (s *BoltStore) List(prefix Key, limit Limit) (Keys, error) {
	var keys Keys
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append(Key(nil), k...))
			if limit > 0 && Limit(len(keys)) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// ReverseList returns keys with the given prefix in descending order
func (s *BoltStore) ReverseList(prefix Key, limit Limit) (Keys, error) {
	var keys Keys
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()

		// Position the cursor on the last key that still carries the prefix.
		var k []byte
		if end := prefixEnd(prefix); end == nil {
			k, _ = c.Last()
		} else {
			k, _ = c.Seek(end)
			if k == nil {
				k, _ = c.Last()
			} else {
				k, _ = c.Prev()
			}
		}

		for ; k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Prev() {
			keys = append(keys, append(Key(nil), k...))
			if limit > 0 && Limit(len(keys)) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the underlying database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// prefixEnd returns the smallest key strictly greater than every key
// carrying the prefix, or nil when no such key exists (all 0xff)
func prefixEnd(prefix Key) Key {
	end := append(Key(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
