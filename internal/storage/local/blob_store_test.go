// Package local_test tests the local filesystem stores.
package local_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "media")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutOpenDelete(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("ValidPut", func(t *testing.T) {
		path := "creative_collection/clip.jpg"
		data := []byte("jpeg bytes")
		uri, err := store.PutObject(ctx, path, "image/jpeg", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, path), uri)

		rc, err := store.OpenObject(ctx, path)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, data, got)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, "", "text/plain", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.txt", "text/plain", bytes.NewReader([]byte("x")))
		assert.ErrorIs(t, err, local.ErrPathTraversal)
		_, err = store.OpenObject(ctx, "creative_collection/../../etc/passwd")
		assert.ErrorIs(t, err, local.ErrPathTraversal)
		_, err = store.OpenObject(ctx, "/etc/passwd")
		assert.ErrorIs(t, err, local.ErrPathTraversal)
	})

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := store.OpenObject(ctx, "creative_collection/none.jpg")
		assert.ErrorIs(t, err, crawler.ErrObjectNotFound)
		_, err = store.OpenObject(ctx, "creative_collection")
		assert.ErrorIs(t, err, crawler.ErrObjectNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		path := "creative_collection/gone.mp4"
		_, err := store.PutObject(ctx, path, "video/mp4", bytes.NewReader([]byte("v")))
		require.NoError(t, err)
		require.NoError(t, store.DeleteObject(ctx, path))
		assert.NoFileExists(t, filepath.Join(tempDir, path))
		require.NoError(t, store.DeleteObject(ctx, path))
	})
}

type snapshot struct {
	NextID int64    `json:"next_id"`
	Names  []string `json:"names"`
}

func TestSnapshotFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "records.json")
	f := local.NewSnapshotFile[snapshot](path)

	_, ok, err := f.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Save(ctx, snapshot{NextID: 3, Names: []string{"a", "b"}}))
	got, ok, err := f.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.NextID)
	assert.Equal(t, []string{"a", "b"}, got.Names)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	_, _, err = f.Load(ctx)
	assert.Error(t, err)
}
