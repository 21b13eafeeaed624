package txnrec

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

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("abc123"))
	assert.True(t, ValidName("a.b-c"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("has spaces"))
	assert.False(t, ValidName("has/slash"))
}

func TestBeginAndGet(t *testing.T) {
	s := New(openTestDB(t))
	rec, err := s.Begin("txn1", 3)
	require.NoError(t, err)
	assert.Equal(t, "txn1", rec.Name)
	assert.EqualValues(t, 3, rec.BaseRev)

	got, err := s.Get("txn1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestBeginRejectsDuplicateName(t *testing.T) {
	s := New(openTestDB(t))
	_, err := s.Begin("txn1", 0)
	require.NoError(t, err)

	_, err = s.Begin("txn1", 0)
	assert.Error(t, err)
}

func TestBeginRejectsIllegalName(t *testing.T) {
	s := New(openTestDB(t))
	_, err := s.Begin("has spaces", 0)
	assert.Error(t, err)
}

func TestSetProperty(t *testing.T) {
	s := New(openTestDB(t))
	_, err := s.Begin("txn1", 0)
	require.NoError(t, err)

	require.NoError(t, s.SetProperty("txn1", "svn:log", "a commit message"))
	rec, err := s.Get("txn1")
	require.NoError(t, err)
	assert.Equal(t, "a commit message", rec.Props["svn:log"])
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := New(openTestDB(t))
	_, err := s.Begin("txn1", 0)
	require.NoError(t, err)

	require.NoError(t, s.Delete("txn1"))
	_, err = s.Get("txn1")
	assert.Error(t, err)
}

func TestNextCopyIDMonotoneAcrossCalls(t *testing.T) {
	s := New(openTestDB(t))
	a, err := s.NextCopyID()
	require.NoError(t, err)
	b, err := s.NextCopyID()
	require.NoError(t, err)
	c, err := s.NextCopyID()
	require.NoError(t, err)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(2), b)
	assert.Equal(t, int64(3), c)
}
