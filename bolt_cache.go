package manager

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var datafilesBucket = []byte("datafiles")

// BoltCache is a Cache persisted to a local bolt database file, so cached
// datafiles survive restarts.
type BoltCache struct {
	db *bolt.DB
}

// NewBoltCache opens (or creates) the bolt database at path
func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(datafilesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init: %s", err)
	}

	return &BoltCache{db: db}, nil
}

func (c *BoltCache) Get(key string) (value []byte, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(datafilesBucket)
		if b == nil {
			return errors.New("datafiles bucket not found")
		}

		// Bolt values are only valid for the life of the transaction.
		if v := b.Get([]byte(key)); v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	return
}

func (c *BoltCache) Set(key string, value []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(datafilesBucket)
		if b == nil {
			return errors.New("datafiles bucket not found")
		}
		return b.Put([]byte(key), value)
	})
}

// Close releases the database file
func (c *BoltCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
