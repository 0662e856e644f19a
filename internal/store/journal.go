package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// journalFile is the journal database name inside the cache root.
	journalFile = "journal.db"

	// bucketName is the bbolt bucket holding cache entries.
	bucketName = "entries"
)

// Entry is the journal record for one cached file.
type Entry struct {
	// Key is the store index path of the entry, or the bare simple name
	// for unidentified entries.
	Key string `json:"key"`

	// SimpleName is the file name with no directory component.
	SimpleName string `json:"simple_name"`

	// Path is the canonical cache location.
	Path string `json:"path"`

	// Origin is the path the entry was copied from.
	Origin string `json:"origin"`

	// Size is the cached file size in bytes.
	Size int64 `json:"size"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`
}

// Journal records cache entry metadata in bbolt. It backs the cache
// inspection commands; the cache itself is fully described by its on-disk
// layout and works without a journal.
type Journal struct {
	db *bbolt.DB
}

// OpenJournal opens (creating if needed) the journal under cacheDir.
func OpenJournal(cacheDir string) (*Journal, error) {
	path := filepath.Join(cacheDir, journalFile)

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}

	return nil
}

// Record stores or overwrites the entry keyed by e.Key. StoredAt is stamped
// here.
func (j *Journal) Record(e Entry) error {
	e.StoredAt = time.Now()

	return j.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}

		return tx.Bucket([]byte(bucketName)).Put([]byte(e.Key), data)
	})
}

// Entries returns all journal records in key order.
func (j *Journal) Entries() ([]Entry, error) {
	var entries []Entry

	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}

			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Stats returns the entry count and total cached bytes recorded.
func (j *Journal) Stats() (int, int64, error) {
	entries, err := j.Entries()
	if err != nil {
		return 0, 0, err
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}

	return len(entries), total, nil
}

// Clear removes all journal records. Cached files on disk are untouched.
func (j *Journal) Clear() error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}
