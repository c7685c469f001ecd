package boltdb

import (
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/000Volk000/TubeTap/internal/history"
)

func record(id string, started time.Time) *history.Record {
	return &history.Record{
		ID:         id,
		URL:        "https://youtu.be/" + id,
		Kind:       "audio",
		Quality:    "192",
		Path:       "/out/" + id + ".mp3",
		Success:    true,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
}

func TestDatabase(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := New(path)
	require.NoError(err)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(db.Write(record("second", base.Add(time.Minute))))
	require.NoError(db.Write(record("first", base)))

	failed := record("second", base.Add(time.Minute))
	failed.Success = false
	failed.Path = ""
	failed.Error = "download failed (exit code 1)"
	require.NoError(db.Write(failed))

	records, err := db.List()
	require.NoError(err)
	if assert.Len(records, 2) {
		assert.Equal("first", records[0].ID)
		assert.Equal("second", records[1].ID)
		assert.False(records[1].Success)
		assert.Equal(failed.Error, records[1].Error)
		assert.Equal("", records[1].Path)
		assert.True(records[1].StartedAt.Equal(failed.StartedAt))
	}

	assert.ErrorIs(db.Delete("missing"), history.ErrNotFound)
	assert.NoError(db.Delete("first"))
	require.NoError(db.Close())

	// Records survive reopening
	db, err = New(path)
	require.NoError(err)
	defer db.Close()
	records, err = db.List()
	require.NoError(err)
	if assert.Len(records, 1) {
		assert.Equal("second", records[0].ID)
	}
}

func TestNew_NewerVersion(t *testing.T) {
	require := require_.New(t)
	path := filepath.Join(t.TempDir(), "history.db")

	raw, err := bbolt.Open(path, 0600, nil)
	require.NoError(err)
	require.NoError(raw.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(Buckets.Metadata)
		if err != nil {
			return err
		}
		return b.Put(MetadataKeys.Version, []byte("99"))
	}))
	require.NoError(raw.Close())

	_, err = New(path)
	assert_.ErrorContains(t, err, "newer than supported")
}
