package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filetable/backend/internal/storage"
)

func TestFile_Read(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0644))

	t.Run("reads whole file", func(t *testing.T) {
		src := NewFile(path, 0)
		assert.Equal(t, "notes.txt", src.Name())

		data, err := src.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two\n", string(data))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewFile(filepath.Join(dir, "nope.txt"), 0).Read(context.Background())
		assert.Error(t, err)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := NewFile(dir, 0).Read(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "directory")
	})

	t.Run("over size limit", func(t *testing.T) {
		_, err := NewFile(path, 4).Read(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "limit")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewFile(path, 0).Read(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBytes_Read(t *testing.T) {
	src := NewBytes("a.txt", []byte("hello"))
	assert.Equal(t, "a.txt", src.Name())

	data, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data[0] = 'j'
	again, _ := src.Read(context.Background())
	assert.Equal(t, "hello", string(again), "callers must not see each other's buffers")
}

func TestStaged_ReadRemovesStagedCopy(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	info, err := store.Save("b.txt", strings.NewReader("world"))
	require.NoError(t, err)

	src := NewStaged(store, info.ID, info.Name, nil)
	assert.Equal(t, "b.txt", src.Name())
	assert.Equal(t, info.ID, src.ID())

	data, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	_, err = store.Get(info.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = src.Read(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStaged_Discard(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	info, err := store.Save("c.txt", strings.NewReader("unread"))
	require.NoError(t, err)

	var src Readable = NewStaged(store, info.ID, info.Name, nil)
	d, ok := src.(Discarder)
	require.True(t, ok)

	require.NoError(t, d.Discard())
	_, err = store.Get(info.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, d.Discard(), storage.ErrNotFound)
}

func TestRejected_Read(t *testing.T) {
	cause := errors.New("file is 10 bytes, limit is 4")
	src := NewRejected("big.log", cause)

	assert.Equal(t, "big.log", src.Name())
	data, err := src.Read(context.Background())
	assert.Nil(t, data)
	assert.ErrorIs(t, err, cause)
}
