package filestore

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/common/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestStorePutGet(t *testing.T) {
	s := newTestStore(t)

	payload := base64.StdEncoding.EncodeToString([]byte("hello"))
	id, err := s.Put(payload, "image/png")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	file, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, payload, file.Bytes)
	assert.Equal(t, "image/png", file.MediaType)
}

func TestStoreGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("no-such-id")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestStoreDistinctIDs(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Put("YQ==", "image/png")
	require.NoError(t, err)
	b, err := s.Put("YQ==", "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, s.Len())
}

func TestStoreClearAll(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	require.NoError(t, err)

	id, err := s.Put("YQ==", "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, s.ClearAll())
	assert.Equal(t, 0, s.Len())

	_, err = s.Get(id)
	assert.True(t, errors.IsNotFound(err))

	_, err = os.Stat(filepath.Join(dir, id+".b64"))
	assert.True(t, os.IsNotExist(err))
}

func TestStoreSharedDirectory(t *testing.T) {
	dir := t.TempDir()

	writer, err := New(dir, nil)
	require.NoError(t, err)
	id, err := writer.Put("Zm9v", "image/png")
	require.NoError(t, err)

	// A second store over the same directory sees the file.
	reader, err := New(dir, nil)
	require.NoError(t, err)
	file, err := reader.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Zm9v", file.Bytes)

	// A file written after the reader opened is picked up on demand.
	id2, err := writer.Put("YmFy", "image/jpeg")
	require.NoError(t, err)
	file2, err := reader.Get(id2)
	require.NoError(t, err)
	assert.Equal(t, "YmFy", file2.Bytes)
}
