package txn

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornicdb/pkg/dag"
	"github.com/orneryd/nornicdb/pkg/fserr"
	"github.com/orneryd/nornicdb/pkg/locks"
	"github.com/orneryd/nornicdb/pkg/noderev"
	"github.com/orneryd/nornicdb/pkg/reps"
	"github.com/orneryd/nornicdb/pkg/revindex"
	"github.com/orneryd/nornicdb/pkg/session"
	"github.com/orneryd/nornicdb/pkg/strs"
	"github.com/orneryd/nornicdb/pkg/txnrec"
)

const rootNodeID int64 = 0

type testRepo struct {
	eng  *Engine
	dag  *dag.DAG
	revs *revindex.Index
	reps *reps.Store
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ss := strs.New(db)
	rs := reps.New(db, ss, reps.Config{MinWindowSize: 8, ChainRecursionLimit: 4})
	nr, err := noderev.New(db)
	require.NoError(t, err)

	rootID := noderev.NewRevID(rootNodeID, 0, 0)
	require.NoError(t, nr.Bootstrap(rootID, noderev.Record{Kind: noderev.KindDir, CreatedPath: "/"}))

	ri, err := revindex.New(db, rootID.String())
	require.NoError(t, err)
	tx := txnrec.New(db)
	d := dag.New(nr, rs, ri, tx)
	lk := locks.New(db)

	eng := New(nr, rs, ri, tx, d, lk, 4)
	return &testRepo{eng: eng, dag: d, revs: ri, reps: rs}
}

func TestBasicCommitCreatesFileVisibleInNextRevision(t *testing.T) {
	r := newTestRepo(t)
	txnName, err := r.eng.Begin(r.revs.Youngest())
	require.NoError(t, err)

	ed := r.eng.NewEditor(txnName)
	root, err := ed.OpenRoot(0)
	require.NoError(t, err)
	file, err := ed.AddFile(root, "hello.txt", "", 0)
	require.NoError(t, err)
	stream, err := ed.ApplyTextDelta(file, nil)
	require.NoError(t, err)
	_, err = stream.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, ed.CloseFile(file, nil))
	require.NoError(t, ed.CloseDirectory(root))

	rev, err := ed.CloseEdit(nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, rev)

	newRoot, err := r.dag.GetRevisionRoot(rev)
	require.NoError(t, err)
	found, err := r.dag.Open(newRoot, "hello.txt")
	require.NoError(t, err)
	require.Equal(t, noderev.KindFile, found.Kind)
}

func TestAbortDiscardsAllTxnState(t *testing.T) {
	r := newTestRepo(t)
	txnName, err := r.eng.Begin(r.revs.Youngest())
	require.NoError(t, err)

	ed := r.eng.NewEditor(txnName)
	root, err := ed.OpenRoot(0)
	require.NoError(t, err)
	_, err = ed.AddFile(root, "doomed.txt", "", 0)
	require.NoError(t, err)

	require.NoError(t, ed.AbortEdit())

	ids, err := r.eng.nodeRevs.ListByTxn(txnName)
	require.NoError(t, err)
	require.Empty(t, ids)
	require.EqualValues(t, 0, r.revs.Youngest())
}

func TestNonConflictingConcurrentCommitsBothSucceed(t *testing.T) {
	r := newTestRepo(t)
	base := r.revs.Youngest()

	txnA, err := r.eng.Begin(base)
	require.NoError(t, err)
	edA := r.eng.NewEditor(txnA)
	rootA, err := edA.OpenRoot(0)
	require.NoError(t, err)
	_, err = edA.AddFile(rootA, "a.txt", "", 0)
	require.NoError(t, err)
	require.NoError(t, edA.CloseDirectory(rootA))
	revA, err := edA.CloseEdit(nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, revA)

	txnB, err := r.eng.Begin(base)
	require.NoError(t, err)
	edB := r.eng.NewEditor(txnB)
	rootB, err := edB.OpenRoot(0)
	require.NoError(t, err)
	_, err = edB.AddFile(rootB, "b.txt", "", 0)
	require.NoError(t, err)
	require.NoError(t, edB.CloseDirectory(rootB))
	revB, err := edB.CloseEdit(nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, revB)

	finalRoot, err := r.dag.GetRevisionRoot(revB)
	require.NoError(t, err)
	entries, err := r.dag.DirEntries(finalRoot)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	require.True(t, names["a.txt"])
	require.True(t, names["b.txt"])
}

func TestConflictingEditsToSameFileFailCommit(t *testing.T) {
	r := newTestRepo(t)
	base := r.revs.Youngest()

	// Seed a file at r1 that both txns will then independently edit.
	seedTxn, err := r.eng.Begin(base)
	require.NoError(t, err)
	seedEd := r.eng.NewEditor(seedTxn)
	seedRoot, err := seedEd.OpenRoot(0)
	require.NoError(t, err)
	seedFile, err := seedEd.AddFile(seedRoot, "shared.txt", "", 0)
	require.NoError(t, err)
	seedStream, err := seedEd.ApplyTextDelta(seedFile, nil)
	require.NoError(t, err)
	_, err = seedStream.Write([]byte("original"))
	require.NoError(t, err)
	require.NoError(t, seedEd.CloseFile(seedFile, nil))
	require.NoError(t, seedEd.CloseDirectory(seedRoot))
	seedRev, err := seedEd.CloseEdit(nil)
	require.NoError(t, err)

	txnA, err := r.eng.Begin(seedRev)
	require.NoError(t, err)
	edA := r.eng.NewEditor(txnA)
	rootA, err := edA.OpenRoot(0)
	require.NoError(t, err)
	fileA, err := edA.OpenFile(rootA, "shared.txt", 0)
	require.NoError(t, err)
	streamA, err := edA.ApplyTextDelta(fileA, nil)
	require.NoError(t, err)
	_, err = streamA.Write([]byte("edit from A"))
	require.NoError(t, err)
	require.NoError(t, edA.CloseFile(fileA, nil))
	require.NoError(t, edA.CloseDirectory(rootA))

	txnB, err := r.eng.Begin(seedRev)
	require.NoError(t, err)
	edB := r.eng.NewEditor(txnB)
	rootB, err := edB.OpenRoot(0)
	require.NoError(t, err)
	fileB, err := edB.OpenFile(rootB, "shared.txt", 0)
	require.NoError(t, err)
	streamB, err := edB.ApplyTextDelta(fileB, nil)
	require.NoError(t, err)
	_, err = streamB.Write([]byte("edit from B"))
	require.NoError(t, err)
	require.NoError(t, edB.CloseFile(fileB, nil))
	require.NoError(t, edB.CloseDirectory(rootB))

	_, err = edA.CloseEdit(nil)
	require.NoError(t, err)

	_, err = edB.CloseEdit(nil)
	require.Error(t, err)
	require.True(t, fserr.Is(err, fserr.KindConflict))
}

func TestCommitWithoutSessionSkipsLockCheck(t *testing.T) {
	r := newTestRepo(t)
	base := r.revs.Youngest()

	seedTxn, err := r.eng.Begin(base)
	require.NoError(t, err)
	seedEd := r.eng.NewEditor(seedTxn)
	seedRoot, err := seedEd.OpenRoot(0)
	require.NoError(t, err)
	_, err = seedEd.AddFile(seedRoot, "locked.txt", "", 0)
	require.NoError(t, err)
	require.NoError(t, seedEd.CloseDirectory(seedRoot))
	seedRev, err := seedEd.CloseEdit(nil)
	require.NoError(t, err)

	_, err = r.eng.locks.Lock("/locked.txt", "alice", "", "", nil, false, nil, nil)
	require.NoError(t, err)

	txnName, err := r.eng.Begin(seedRev)
	require.NoError(t, err)
	ed := r.eng.NewEditor(txnName)
	root, err := ed.OpenRoot(0)
	require.NoError(t, err)
	file, err := ed.OpenFile(root, "locked.txt", 0)
	require.NoError(t, err)
	stream, err := ed.ApplyTextDelta(file, nil)
	require.NoError(t, err)
	_, err = stream.Write([]byte("intruding edit"))
	require.NoError(t, err)
	require.NoError(t, ed.CloseFile(file, nil))
	require.NoError(t, ed.CloseDirectory(root))

	// No session: lock enforcement is skipped.
	_, err = ed.CloseEdit(nil)
	require.NoError(t, err)
}

func TestCommitWithWrongSessionTokenFailsLockCheck(t *testing.T) {
	r := newTestRepo(t)
	base := r.revs.Youngest()

	seedTxn, err := r.eng.Begin(base)
	require.NoError(t, err)
	seedEd := r.eng.NewEditor(seedTxn)
	seedRoot, err := seedEd.OpenRoot(0)
	require.NoError(t, err)
	_, err = seedEd.AddFile(seedRoot, "locked.txt", "", 0)
	require.NoError(t, err)
	require.NoError(t, seedEd.CloseDirectory(seedRoot))
	seedRev, err := seedEd.CloseEdit(nil)
	require.NoError(t, err)

	l, err := r.eng.locks.Lock("/locked.txt", "alice", "", "", nil, false, nil, nil)
	require.NoError(t, err)
	_ = l

	txnName, err := r.eng.Begin(seedRev)
	require.NoError(t, err)
	ed := r.eng.NewEditor(txnName)
	root, err := ed.OpenRoot(0)
	require.NoError(t, err)
	file, err := ed.OpenFile(root, "locked.txt", 0)
	require.NoError(t, err)
	stream, err := ed.ApplyTextDelta(file, nil)
	require.NoError(t, err)
	_, err = stream.Write([]byte("intruding edit"))
	require.NoError(t, err)
	require.NoError(t, ed.CloseFile(file, nil))
	require.NoError(t, ed.CloseDirectory(root))

	sess := session.New("bob")
	_, err = ed.CloseEdit(sess)
	require.Error(t, err)
}

// TestAbortAfterEditingExistingFileDeletesMutableRepresentation covers
// editing a pre-existing file (one with a predecessor) and then aborting:
// the edit's mutable representation, and the string it owns, must both be
// gone, not stranded under a cleared transaction tag.
func TestAbortAfterEditingExistingFileDeletesMutableRepresentation(t *testing.T) {
	r := newTestRepo(t)
	base := r.revs.Youngest()

	seedTxn, err := r.eng.Begin(base)
	require.NoError(t, err)
	seedEd := r.eng.NewEditor(seedTxn)
	seedRoot, err := seedEd.OpenRoot(0)
	require.NoError(t, err)
	seedFile, err := seedEd.AddFile(seedRoot, "existing.txt", "", 0)
	require.NoError(t, err)
	seedStream, err := seedEd.ApplyTextDelta(seedFile, nil)
	require.NoError(t, err)
	_, err = seedStream.Write([]byte("original content long enough to matter"))
	require.NoError(t, err)
	require.NoError(t, seedEd.CloseFile(seedFile, nil))
	require.NoError(t, seedEd.CloseDirectory(seedRoot))
	seedRev, err := seedEd.CloseEdit(nil)
	require.NoError(t, err)

	txnName, err := r.eng.Begin(seedRev)
	require.NoError(t, err)
	ed := r.eng.NewEditor(txnName)
	root, err := ed.OpenRoot(0)
	require.NoError(t, err)
	file, err := ed.OpenFile(root, "existing.txt", 0)
	require.NoError(t, err)
	stream, err := ed.ApplyTextDelta(file, nil)
	require.NoError(t, err)
	_, err = stream.Write([]byte("replacement content, also long enough"))
	require.NoError(t, err)
	require.NoError(t, ed.CloseFile(file, nil))
	require.NoError(t, ed.CloseDirectory(root))

	rec, err := r.eng.nodeRevs.Get(file.node.ID)
	require.NoError(t, err)
	require.NotEmpty(t, rec.DataKey)
	dataKey := reps.Key(rec.DataKey)

	require.NoError(t, ed.AbortEdit())

	_, err = r.reps.Get(dataKey)
	require.Error(t, err)
	require.True(t, fserr.Is(err, fserr.KindNotFound))
}
