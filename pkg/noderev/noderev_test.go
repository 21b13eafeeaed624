package noderev

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

func TestIDStringAndParseRoundTrip(t *testing.T) {
	cases := []ID{
		NewRevID(3, 1, 17),
		NewRevID(0, 0, 0),
		NewTxnID(9, 2, "abc123"),
	}
	for _, id := range cases {
		parsed, err := ParseID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id.Node, parsed.Node)
		assert.Equal(t, id.Copy, parsed.Copy)
		assert.Equal(t, id.IsTxn(), parsed.IsTxn())
		if id.IsTxn() {
			assert.Equal(t, id.TxnName, parsed.TxnName)
		} else {
			assert.Equal(t, id.Rev, parsed.Rev)
		}
	}
}

func TestParseIDRejectsMalformed(t *testing.T) {
	cases := []string{"", "3.1", "x.1.r2", "3.x.r2", "3.1.q2", "3.1.r"}
	for _, s := range cases {
		_, err := ParseID(s)
		assert.Error(t, err, s)
	}
}

func TestRelatedAndSameLineOfHistory(t *testing.T) {
	a := NewRevID(5, 1, 10)
	b := NewRevID(5, 2, 11)
	c := NewRevID(6, 1, 10)

	assert.True(t, Related(a, b))
	assert.False(t, SameLineOfHistory(a, b))
	assert.False(t, Related(a, c))
}

func TestCreateNodeAndGet(t *testing.T) {
	s, err := New(openTestDB(t))
	require.NoError(t, err)

	id, err := s.CreateNode(Record{Kind: KindFile, CreatedPath: "/a.txt"}, 0, "txn1")
	require.NoError(t, err)
	assert.True(t, id.IsTxn())

	rec, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, KindFile, rec.Kind)
	assert.Equal(t, "/a.txt", rec.CreatedPath)
	assert.Equal(t, "", rec.PredecessorID)
}

func TestCreateSuccessorIncrementsPredecessorCount(t *testing.T) {
	s, err := New(openTestDB(t))
	require.NoError(t, err)

	first, err := s.CreateNode(Record{Kind: KindFile, PredecessorCount: 0}, 0, "txn1")
	require.NoError(t, err)

	second, err := s.CreateSuccessor(first, Record{Kind: KindFile}, 0, "txn2")
	require.NoError(t, err)

	rec, err := s.Get(second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.PredecessorCount)
	assert.Equal(t, first.String(), rec.PredecessorID)
	assert.Equal(t, first.Node, second.Node)
}

func TestPutRequiresMutableID(t *testing.T) {
	s, err := New(openTestDB(t))
	require.NoError(t, err)

	id, err := s.CreateNode(Record{Kind: KindFile}, 0, "txn1")
	require.NoError(t, err)
	frozen, err := s.Freeze(id, 7)
	require.NoError(t, err)

	err = s.Put(frozen, Record{Kind: KindFile})
	assert.Error(t, err)
}

func TestFreezeRewritesIDAndDeletesOld(t *testing.T) {
	s, err := New(openTestDB(t))
	require.NoError(t, err)

	id, err := s.CreateNode(Record{Kind: KindDir, CreatedPath: "/"}, 0, "txn1")
	require.NoError(t, err)

	frozen, err := s.Freeze(id, 5)
	require.NoError(t, err)
	assert.False(t, frozen.IsTxn())
	assert.Equal(t, int64(5), frozen.Rev)

	_, err = s.Get(id)
	assert.Error(t, err)

	rec, err := s.Get(frozen)
	require.NoError(t, err)
	assert.Equal(t, KindDir, rec.Kind)
}

func TestListByTxnFindsOnlyMatchingTxn(t *testing.T) {
	s, err := New(openTestDB(t))
	require.NoError(t, err)

	a, err := s.CreateNode(Record{Kind: KindFile}, 0, "txn-a")
	require.NoError(t, err)
	b, err := s.CreateNode(Record{Kind: KindFile}, 0, "txn-a")
	require.NoError(t, err)
	_, err = s.CreateNode(Record{Kind: KindFile}, 0, "txn-b")
	require.NoError(t, err)

	ids, err := s.ListByTxn("txn-a")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	idSet := map[string]bool{a.String(): true, b.String(): true}
	for _, id := range ids {
		assert.True(t, idSet[id.String()])
	}
}

func TestCounterSurvivesReopen(t *testing.T) {
	db := openTestDB(t)
	s1, err := New(db)
	require.NoError(t, err)
	first, err := s1.CreateNode(Record{Kind: KindFile}, 0, "txn1")
	require.NoError(t, err)

	s2, err := New(db)
	require.NoError(t, err)
	second, err := s2.CreateNode(Record{Kind: KindFile}, 0, "txn1")
	require.NoError(t, err)

	assert.NotEqual(t, first.Node, second.Node)
}

func TestBootstrapWritesFixedID(t *testing.T) {
	s, err := New(openTestDB(t))
	require.NoError(t, err)

	rootID := NewRevID(0, 0, 0)
	require.NoError(t, s.Bootstrap(rootID, Record{Kind: KindDir, CreatedPath: "/"}))

	rec, err := s.Get(rootID)
	require.NoError(t, err)
	assert.Equal(t, "/", rec.CreatedPath)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s, err := New(openTestDB(t))
	require.NoError(t, err)

	id, err := s.CreateNode(Record{Kind: KindFile}, 0, "txn1")
	require.NoError(t, err)
	require.NoError(t, s.Delete(id))

	_, err = s.Get(id)
	assert.Error(t, err)
}
