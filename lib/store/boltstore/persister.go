package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store"
	"go.etcd.io/bbolt"
)

const (
	fileExt        = ".db"
	defaultTimeout = 5 * time.Second
)

var (
	entriesBucket = []byte("entries")

	ErrInvalidName = errors.New("invalid store name")
)

// record is the on-disk representation of a store.Entry
type record struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Persister implements store.IPersister with one bbolt file per store.
// Entries are written under their position so Load returns them in the saved order.
type Persister struct {
	dir     string
	timeout time.Duration
}

// NewPersister creates a persister writing into dir. The directory is created if needed.
func NewPersister(dir string) (*Persister, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Persister{dir: dir, timeout: defaultTimeout}, nil
}

// Dir returns the directory the persister writes into
func (p *Persister) Dir() string {
	return p.dir
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IPersister)
// --------------------------------------------------------------------------

func (p *Persister) Save(name string, entries []store.Entry) error {
	path, err := p.path(name)
	if err != nil {
		return err
	}

	db, err := p.open(path, false)
	if err != nil {
		return err
	}
	defer db.Close()

	// replace the whole bucket in one transaction
	return db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(entriesBucket) != nil {
			if err := tx.DeleteBucket(entriesBucket); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(entriesBucket)
		if err != nil {
			return err
		}

		for i, e := range entries {
			val, err := json.Marshal(record{Key: e.Key, Value: e.Value})
			if err != nil {
				return fmt.Errorf("failed to encode key %q: %w", e.Key, err)
			}
			if err := bucket.Put(positionKey(uint64(i)), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Persister) Load(name string) ([]store.Entry, error) {
	path, err := p.path(name)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, store.ErrNoSnapshot
	}

	db, err := p.open(path, true)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var entries []store.Entry
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(entriesBucket)
		if bucket == nil {
			return store.ErrNoSnapshot
		}

		return bucket.ForEach(func(_, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt entry: %w", err)
			}
			// copy the value to avoid returning a reference to the mmap
			entries = append(entries, store.Entry{Key: r.Key, Value: append([]byte(nil), r.Value...)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// path maps a store name to its file. Names must not escape the data directory.
func (p *Persister) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(p.dir, name+fileExt), nil
}

func (p *Persister) open(path string, readOnly bool) (*bbolt.DB, error) {
	opts := *bbolt.DefaultOptions
	opts.Timeout = p.timeout
	opts.ReadOnly = readOnly

	db, err := bbolt.Open(path, 0o600, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return db, nil
}

// positionKey encodes i big endian so bbolt's byte order equals insertion order
func positionKey(i uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, i)
	return k
}
