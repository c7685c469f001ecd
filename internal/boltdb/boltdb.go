package boltdb

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/000Volk000/TubeTap/internal/history"
)

var Buckets = struct {
	Metadata  []byte
	Downloads []byte
}{
	Metadata:  []byte("__metadata__"),
	Downloads: []byte("downloads"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

type database struct {
	*bbolt.DB
}

// New opens (creating if necessary) a bbolt history database at path.
func New(path string) (_ history.Store, err error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()
	err = db.Update(func(tx *bbolt.Tx) error {
		metadata, err := tx.CreateBucketIfNotExists(Buckets.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Downloads); err != nil {
			return err
		}

		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes != nil {
			if err := json.Unmarshal(versionBytes, &version); err != nil {
				return fmt.Errorf("corrupt version: %w", err)
			}
		}
		if version > currentVersion {
			return fmt.Errorf("database version %d is newer than supported version %d", version, currentVersion)
		}

		versionBytes, err := json.Marshal(currentVersion)
		if err != nil {
			return err
		}
		return metadata.Put(MetadataKeys.Version, versionBytes)
	})
	if err != nil {
		return nil, err
	}
	return &database{db}, nil
}

func (d *database) List() (records []history.Record, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Downloads)
		return bucket.ForEach(func(k, v []byte) error {
			var record history.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	history.SortByStart(records)
	return records, nil
}

func (d *database) Write(record *history.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return d.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Downloads).Put([]byte(record.ID), data)
	})
}

func (d *database) Delete(id string) error {
	return d.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Downloads)
		if bucket.Get([]byte(id)) == nil {
			return history.ErrNotFound
		}
		return bucket.Delete([]byte(id))
	})
}
