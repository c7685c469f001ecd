// Package history defines the record of past downloads and the interface its storage backends implement.
package history

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var ErrNotFound = errors.New("history record not found")

type Record struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Kind       string    `json:"kind"`
	Quality    string    `json:"quality"`
	Path       string    `json:"path,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type Store interface {
	// List returns every record, oldest first.
	List() ([]Record, error)
	// Write inserts or replaces the record with the same ID.
	Write(*Record) error
	// Delete removes the record with the given ID, returning ErrNotFound if there is none.
	Delete(id string) error
	Close() error
}

// NilStore discards everything written to it.
type NilStore struct{}

func (NilStore) List() ([]Record, error) {
	return nil, nil
}

func (NilStore) Write(_ *Record) error {
	return nil
}

func (NilStore) Delete(_ string) error {
	return ErrNotFound
}

func (NilStore) Close() error {
	return nil
}

// SortByStart orders records oldest first, breaking ties by ID so the order is stable across backends.
func SortByStart(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
}

type Backend string

const (
	BackendNone   Backend = ""
	BackendBolt   Backend = "bolt"
	BackendSQLite Backend = "sqlite"
)

// BackendForPath picks the storage backend from the database file extension: ".sqlite"/".sqlite3"/".db3" use SQLite,
// anything else uses bbolt. An empty path means no history.
func BackendForPath(path string) Backend {
	if path == "" {
		return BackendNone
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sqlite", ".sqlite3", ".db3":
		return BackendSQLite
	default:
		return BackendBolt
	}
}
