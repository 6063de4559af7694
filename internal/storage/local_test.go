package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStore(root, "/files/")
	require.NoError(t, err)

	key := "documents/doc-1/v1/employee handbook.txt"
	body := "Employees get 20 days.\n"
	require.NoError(t, store.Put(ctx, key, strings.NewReader(body), int64(len(body)), "text/plain"))

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	url, err := store.DownloadURL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "/files/documents/doc-1/v1/employee%20handbook.txt", url)

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Open(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = os.Stat(filepath.Join(root, "documents", "doc-1"))
	assert.True(t, os.IsNotExist(err), "empty object directories are removed")
	_, err = os.Stat(root)
	assert.NoError(t, err)

	assert.NoError(t, store.Delete(ctx, key), "deleting a missing object succeeds")
}

func TestLocalStore_KeysStayInsideRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStore(filepath.Join(root, "store"), "/files")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "../../escape.txt", strings.NewReader("x"), 1, "text/plain"))

	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "store", "escape.txt"))
	assert.NoError(t, err)

	assert.Error(t, store.Put(ctx, "", strings.NewReader("x"), 1, "text/plain"))
}

func TestLocalStore_ShortWriteFails(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "/files")
	require.NoError(t, err)

	err = store.Put(ctx, "a.txt", strings.NewReader("abc"), 10, "text/plain")
	assert.Error(t, err)

	_, err = store.Open(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
