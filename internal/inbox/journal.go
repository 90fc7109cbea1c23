// Package inbox watches a drop folder and feeds settled PNG files
// through the ingestion pipeline. A persistent journal remembers which
// paths were already processed so restarts do not re-read and re-hash
// the whole folder; content-hash dedupe in the pipeline remains the
// correctness boundary.
package inbox

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// entryPrefix namespaces journal records by file path.
const entryPrefix = "file:"

// Entry records the outcome of processing one path. Size and ModTime
// identify the file state that was processed; a later write to the same
// path invalidates the entry. ImageID is empty when the file was
// rejected as not an image.
type Entry struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
	Hash    string    `json:"hash,omitempty"`
	ImageID string    `json:"imageId,omitempty"`
	SeenAt  time.Time `json:"seenAt"`
}

// Matches reports whether the entry covers a file with the given size
// and modification time.
func (e *Entry) Matches(size int64, modTime time.Time) bool {
	return e.Size == size && e.ModTime.Equal(modTime)
}

// Journal is a badger-backed record of processed inbox files.
type Journal struct {
	db *badger.DB
}

// OpenJournal opens (or creates) the journal at the given path.
func OpenJournal(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // An unsynced entry means a re-read after crash
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Lookup returns the entry for a path, or nil when the path was never
// recorded. A miss is a normal outcome, not an error.
func (j *Journal) Lookup(path string) (*Entry, error) {
	var entry *Entry

	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(entryPrefix + path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			entry = &e
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("lookup journal entry: %w", err)
	}

	return entry, nil
}

// Record writes (or overwrites) the entry for a path.
func (j *Journal) Record(entry *Entry) error {
	if entry.SeenAt.IsZero() {
		entry.SeenAt = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(entryPrefix+entry.Path), data)
	})
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}

	return nil
}

// Forget removes the entry for a path. Forgetting an unknown path is a
// no-op.
func (j *Journal) Forget(path string) error {
	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(entryPrefix + path))
	})
	if err != nil {
		return fmt.Errorf("forget journal entry: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
