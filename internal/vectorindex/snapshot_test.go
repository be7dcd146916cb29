package vectorindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testLockTimeout = 2 * time.Second

func TestSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	idx, err := Open(dir, 3, testLockTimeout, logger)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())

	meta := []Metadata{
		{EventID: 10, UploadID: "u-1", Timestamp: "2024-01-15T10:30:45Z"},
		{EventID: 11, UploadID: "u-1", Timestamp: "2024-01-15T10:30:46Z"},
		{EventID: 12, UploadID: "u-2", Timestamp: "2024-01-15T11:00:00Z"},
	}
	require.NoError(t, idx.Add([][]float32{{1, 0, 0}, {0, 1, 0}, {0.5, 0.5, 0}}, meta))
	require.NoError(t, idx.Save())

	reloaded, err := Open(dir, 3, testLockTimeout, logger)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Len())
	assert.Equal(t, 3, reloaded.Dim())

	// metadata ordering survives the round trip
	dists, gotMeta := reloaded.Search([]float32{1, 0, 0}, 3)
	require.Len(t, dists, 3)
	assert.Equal(t, int64(10), gotMeta[0].EventID)
	assert.Equal(t, "u-1", gotMeta[0].UploadID)
	assert.Equal(t, 0.0, dists[0])
}

func TestSnapshot_MissingIsEmpty(t *testing.T) {
	idx, err := Open(t.TempDir(), 768, testLockTimeout, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 768, idx.Dim())
}

func TestSnapshot_CorruptFallsBackToEmpty(t *testing.T) {
	logger := zap.NewNop()

	t.Run("garbage blob", func(t *testing.T) {
		dir := t.TempDir()
		seedSnapshot(t, dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, blobFile), []byte("garbage"), 0600))

		idx, err := Open(dir, 3, testLockTimeout, logger)
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("garbage metadata", func(t *testing.T) {
		dir := t.TempDir()
		seedSnapshot(t, dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, metaFile), []byte("{not json"), 0600))

		idx, err := Open(dir, 3, testLockTimeout, logger)
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("half-written pair treated as no snapshot", func(t *testing.T) {
		dir := t.TempDir()
		seedSnapshot(t, dir)
		require.NoError(t, os.Remove(filepath.Join(dir, metaFile)))

		idx, err := Open(dir, 3, testLockTimeout, logger)
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("dimension disagreement treated as corrupt", func(t *testing.T) {
		dir := t.TempDir()
		seedSnapshot(t, dir)

		idx, err := Open(dir, 5, testLockTimeout, logger)
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())
		assert.Equal(t, 5, idx.Dim())
	})
}

func TestSnapshot_SaveWithoutLocation(t *testing.T) {
	idx := New(3)
	assert.Error(t, idx.Save())
}

func TestSnapshot_SaveIsRewritable(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	idx, err := Open(dir, 2, testLockTimeout, logger)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 1}}, []Metadata{{EventID: 1}}))
	require.NoError(t, idx.Save())

	require.NoError(t, idx.Add([][]float32{{2, 2}}, []Metadata{{EventID: 2}}))
	require.NoError(t, idx.Save())

	reloaded, err := Open(dir, 2, testLockTimeout, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
}

func TestAcquireLock_Timeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	held, err := acquireLock(path, time.Second)
	require.NoError(t, err)
	defer func() { _ = held.Unlock() }()

	_, err = acquireLock(path, 200*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestAcquireLock_ReleasedLockIsReacquirable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	held, err := acquireLock(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, held.Unlock())

	again, err := acquireLock(path, time.Second)
	require.NoError(t, err)
	assert.NoError(t, again.Unlock())
}

func seedSnapshot(t *testing.T, dir string) {
	t.Helper()
	idx, err := Open(dir, 3, testLockTimeout, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, idx.Add(
		[][]float32{{1, 0, 0}, {0, 1, 0}},
		[]Metadata{{EventID: 1}, {EventID: 2}},
	))
	require.NoError(t, idx.Save())
}
