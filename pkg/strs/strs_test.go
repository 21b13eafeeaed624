package strs

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAppendAndRead(t *testing.T) {
	s := New(openTestDB(t))

	key, err := s.Append("", []byte("hello, "))
	require.NoError(t, err)
	key, err = s.Append(key, []byte("world"))
	require.NoError(t, err)

	data, err := s.Read(key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(data))
}

func TestReadPastEndIsShortNotError(t *testing.T) {
	s := New(openTestDB(t))
	key, err := s.Append("", []byte("abc"))
	require.NoError(t, err)

	data, err := s.Read(key, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = s.Read(key, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, "bc", string(data))
}

func TestSize(t *testing.T) {
	s := New(openTestDB(t))
	key, err := s.Append("", []byte("12345"))
	require.NoError(t, err)

	size, err := s.Size(key)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
}

func TestCopyIsIndependent(t *testing.T) {
	s := New(openTestDB(t))
	key, err := s.Append("", []byte("original"))
	require.NoError(t, err)

	copyKey, err := s.Copy(key)
	require.NoError(t, err)
	assert.NotEqual(t, key, copyKey)

	_, err = s.Append(copyKey, []byte(" appended"))
	require.NoError(t, err)

	original, err := s.Read(key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "original", string(original))

	extended, err := s.Read(copyKey, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "original appended", string(extended))
}

func TestClearTruncatesToZeroLength(t *testing.T) {
	s := New(openTestDB(t))
	key, err := s.Append("", []byte("some content"))
	require.NoError(t, err)

	require.NoError(t, s.Clear(key))
	size, err := s.Size(key)
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestDeleteRemovesKey(t *testing.T) {
	s := New(openTestDB(t))
	key, err := s.Append("", []byte("gone soon"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(key))
	_, err = s.Read(key, 0, -1)
	assert.Error(t, err)
}

func TestReadMissingKeyNotFound(t *testing.T) {
	s := New(openTestDB(t))
	_, err := s.Read("nonexistent", 0, -1)
	assert.Error(t, err)
}
