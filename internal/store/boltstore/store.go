// Package boltstore persists deployment aggregates in a bbolt database.
package boltstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/readystackgo/rsgo/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDeployments        = []byte("deployments")
	bucketProductDeployments = []byte("product_deployments")
)

// Store wraps the bbolt database shared by the repositories.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) rsgo.db in dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "rsgo.db")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDeployments, bucketProductDeployments} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// versioned is implemented by aggregates carrying a concurrency token.
type versioned interface {
	Version() int64
	SetVersion(version int64)
}

// unitOfWork stages aggregates until commit.
type unitOfWork[T versioned] struct {
	mu      sync.Mutex
	order   []string
	items   map[string]T
	inserts map[string]bool
}

func (u *unitOfWork[T]) stage(id string, item T, insert bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.items == nil {
		u.items = map[string]T{}
		u.inserts = map[string]bool{}
	}
	if _, ok := u.items[id]; !ok {
		u.order = append(u.order, id)
		u.inserts[id] = insert
	}
	u.items[id] = item
}

// commit writes every staged aggregate in one transaction. Inserts must not
// exist yet; updates must match the stored version. On success each version
// is incremented. Staged items are discarded either way.
func (u *unitOfWork[T]) commit(db *bolt.DB, bucket []byte, entity string, encode func(T, int64) ([]byte, error)) error {
	u.mu.Lock()
	order, items, inserts := u.order, u.items, u.inserts
	u.order, u.items, u.inserts = nil, nil, nil
	u.mu.Unlock()

	if len(order) == 0 {
		return nil
	}

	next := make(map[string]int64, len(order))
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		for _, id := range order {
			item := items[id]
			current := b.Get([]byte(id))

			var version int64
			if inserts[id] {
				if current != nil {
					return fmt.Errorf("%s %q: %w", entity, id, domain.ErrAlreadyExists)
				}
				version = 1
			} else {
				if current == nil {
					return fmt.Errorf("%s %q: %w", entity, id, domain.ErrNotFound)
				}
				stored, err := storedVersion(current)
				if err != nil {
					return fmt.Errorf("%s %q: %w", entity, id, err)
				}
				if stored != item.Version() {
					return &domain.ConflictError{Entity: entity, ID: id, Expected: item.Version(), Actual: stored}
				}
				version = stored + 1
			}

			data, err := encode(item, version)
			if err != nil {
				return fmt.Errorf("encode %s %q: %w", entity, id, err)
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
			next[id] = version
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range order {
		items[id].SetVersion(next[id])
	}
	return nil
}

func storedVersion(data []byte) (int64, error) {
	var header struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return 0, err
	}
	return header.Version, nil
}

// get decodes one record into out or returns ErrNotFound.
func (s *Store) get(bucket []byte, entity, id string, out any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s %q: %w", entity, id, domain.ErrNotFound)
		}
		return json.Unmarshal(data, out)
	})
}

// each decodes every record of a bucket with decode.
func (s *Store) each(bucket []byte, decode func(data []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, v []byte) error {
			return decode(v)
		})
	})
}
