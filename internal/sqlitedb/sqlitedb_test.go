package sqlitedb

import (
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/000Volk000/TubeTap/internal/history"
)

func TestDatabase(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	path := filepath.Join(t.TempDir(), "history.sqlite")
	logger := zaptest.NewLogger(t)

	db, err := New(path, logger)
	require.NoError(err)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"b", "a"} {
		require.NoError(db.Write(&history.Record{
			ID:         id,
			URL:        "https://youtu.be/" + id,
			Kind:       "video",
			Quality:    "720",
			Path:       "/out/" + id + ".mp4",
			Success:    true,
			StartedAt:  base,
			FinishedAt: base.Add(time.Minute),
		}))
	}
	// Writing an existing ID replaces it
	require.NoError(db.Write(&history.Record{
		ID:         "b",
		URL:        "https://youtu.be/b",
		Kind:       "video",
		Quality:    "720",
		Error:      "download failed (exit code 1)",
		StartedAt:  base,
		FinishedAt: base.Add(time.Minute),
	}))

	records, err := db.List()
	require.NoError(err)
	if assert.Len(records, 2) {
		assert.Equal("a", records[0].ID)
		assert.True(records[0].Success)
		assert.True(records[0].StartedAt.Equal(base))
		assert.True(records[0].FinishedAt.Equal(base.Add(time.Minute)))
		assert.Equal("b", records[1].ID)
		assert.False(records[1].Success)
		assert.Equal("", records[1].Path)
		assert.Equal("download failed (exit code 1)", records[1].Error)
	}

	assert.ErrorIs(db.Delete("missing"), history.ErrNotFound)
	assert.NoError(db.Delete("a"))
	require.NoError(db.Close())

	// Reopening finds the schema current and the data intact
	db, err = New(path, logger)
	require.NoError(err)
	defer db.Close()
	records, err = db.List()
	require.NoError(err)
	if assert.Len(records, 1) {
		assert.Equal("b", records[0].ID)
	}
}
