package revindex

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

func TestNewBootstrapsRevisionZero(t *testing.T) {
	idx, err := New(openTestDB(t), "0.0.r0")
	require.NoError(t, err)
	assert.EqualValues(t, 0, idx.Youngest())

	root, err := idx.RootOf(0)
	require.NoError(t, err)
	assert.Equal(t, "0.0.r0", root)
}

func TestPublishAdvancesYoungest(t *testing.T) {
	idx, err := New(openTestDB(t), "0.0.r0")
	require.NoError(t, err)

	rev, err := idx.Publish("0.0.r1", map[string]string{"svn:log": "first commit"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rev)
	assert.EqualValues(t, 1, idx.Youngest())

	root, err := idx.RootOf(1)
	require.NoError(t, err)
	assert.Equal(t, "0.0.r1", root)
}

func TestRevisionPropertiesAreUnversioned(t *testing.T) {
	idx, err := New(openTestDB(t), "0.0.r0")
	require.NoError(t, err)

	require.NoError(t, idx.SetProperty(0, "svn:log", "edited after the fact"))
	v, ok, err := idx.GetProperty(0, "svn:log")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "edited after the fact", v)

	_, ok, err = idx.GetProperty(0, "svn:author")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProplistReturnsACopy(t *testing.T) {
	idx, err := New(openTestDB(t), "0.0.r0")
	require.NoError(t, err)
	require.NoError(t, idx.SetProperty(0, "a", "1"))

	props, err := idx.Proplist(0)
	require.NoError(t, err)
	props["a"] = "mutated locally"

	again, err := idx.Proplist(0)
	require.NoError(t, err)
	assert.Equal(t, "1", again["a"])
}

func TestRootOfMissingRevisionErrors(t *testing.T) {
	idx, err := New(openTestDB(t), "0.0.r0")
	require.NoError(t, err)
	_, err = idx.RootOf(99)
	assert.Error(t, err)
}

func TestYoungestSurvivesReopen(t *testing.T) {
	db := openTestDB(t)
	idx1, err := New(db, "0.0.r0")
	require.NoError(t, err)
	_, err = idx1.Publish("0.0.r1", nil)
	require.NoError(t, err)

	idx2, err := New(db, "0.0.r0")
	require.NoError(t, err)
	assert.EqualValues(t, 1, idx2.Youngest())
}
