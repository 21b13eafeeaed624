// Package fs wires every subsystem into the top-level filesystem handle
// (spec §1 "the core"): the string store, representation store,
// node-revision store, DAG layer, revision index, path-lock store, and
// transaction/commit engine, all sharing one BadgerDB instance.
package fs

import (
	"log"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicdb/pkg/cache"
	"github.com/orneryd/nornicdb/pkg/config"
	"github.com/orneryd/nornicdb/pkg/dag"
	"github.com/orneryd/nornicdb/pkg/locks"
	"github.com/orneryd/nornicdb/pkg/noderev"
	"github.com/orneryd/nornicdb/pkg/reps"
	"github.com/orneryd/nornicdb/pkg/revindex"
	"github.com/orneryd/nornicdb/pkg/session"
	"github.com/orneryd/nornicdb/pkg/strs"
	"github.com/orneryd/nornicdb/pkg/txn"
	"github.com/orneryd/nornicdb/pkg/txnrec"
)

// rootNodeID is the permanent node id of the repository root, reserved
// across all of history (mirrors pkg/dag's convention; duplicated here only
// as the literal used once, at bootstrap).
const rootNodeID int64 = 0

// Filesystem is one open repository: every subsystem, plus the shared
// BadgerDB instance backing all of their tables.
type Filesystem struct {
	db     *badger.DB
	Config *config.Config

	Strs     *strs.Store
	Reps     *reps.Store
	NodeRevs *noderev.Store
	Revs     *revindex.Index
	Txns     *txnrec.Store
	DAG      *dag.DAG
	Locks    *locks.Store
	Engine   *txn.Engine
	Cache    *cache.NodeRevCache

	Logger *log.Logger
	closed bool
}

// Open opens (creating if absent) the repository at cfg.Storage.DataDir,
// bootstrapping revision 0's empty root the first time.
func Open(cfg *config.Config) (*Filesystem, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Storage.DataDir).
		WithInMemory(cfg.Storage.InMemory).
		WithSyncWrites(cfg.Storage.SyncWrites).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	fsys := &Filesystem{db: db, Config: cfg, Logger: log.Default()}

	fsys.Strs = strs.New(db)
	fsys.Reps = reps.New(db, fsys.Strs, reps.Config{
		MinWindowSize:       cfg.Deltify.MinWindowSize,
		ChainRecursionLimit: cfg.Deltify.ChainRecursionLimit,
	})
	fsys.NodeRevs, err = noderev.New(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	rootID := noderev.NewRevID(rootNodeID, 0, 0)
	if _, err := fsys.NodeRevs.Get(rootID); err != nil {
		if err := fsys.NodeRevs.Bootstrap(rootID, noderev.Record{
			Kind:             noderev.KindDir,
			CreatedPath:      "/",
			PredecessorCount: 0,
		}); err != nil {
			db.Close()
			return nil, err
		}
	}

	fsys.Revs, err = revindex.New(db, rootID.String())
	if err != nil {
		db.Close()
		return nil, err
	}
	fsys.Txns = txnrec.New(db)
	fsys.DAG = dag.New(fsys.NodeRevs, fsys.Reps, fsys.Revs, fsys.Txns)
	fsys.Locks = locks.New(db)
	fsys.Engine = txn.New(fsys.NodeRevs, fsys.Reps, fsys.Revs, fsys.Txns, fsys.DAG, fsys.Locks, cfg.Commit.RetryLimit)
	fsys.Cache = cache.NewNodeRevCache(cfg.Cache.NodeRevisionCacheSize)
	fsys.NodeRevs.SetCache(fsys.Cache)

	return fsys, nil
}

// Close releases the underlying BadgerDB instance and discards the
// node-revision cache (spec §5 "caches ... invalidated on handle close").
func (f *Filesystem) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.Cache.Close()
	return f.db.Close()
}

// Youngest returns the most recently published revision number.
func (f *Filesystem) Youngest() int64 { return f.Revs.Youngest() }

// RevisionRoot returns the root directory node of a committed revision.
func (f *Filesystem) RevisionRoot(rev int64) (*dag.Node, error) {
	return f.DAG.GetRevisionRoot(rev)
}

// TxnRoot returns the root directory node of an open transaction.
func (f *Filesystem) TxnRoot(txnName string) (*dag.Node, error) {
	return f.DAG.GetTxnRoot(txnName)
}

// Begin opens a new transaction against baseRev.
func (f *Filesystem) Begin(baseRev int64) (string, error) {
	return f.Engine.Begin(baseRev)
}

// NewEditor returns an editor-protocol driver bound to txnName.
func (f *Filesystem) NewEditor(txnName string) *txn.Editor {
	return f.Engine.NewEditor(txnName)
}

// Commit merges and publishes txnName as the next revision.
func (f *Filesystem) Commit(txnName string, sess *session.Session) (int64, error) {
	return f.Engine.Commit(txnName, sess)
}

// Abort discards txnName and everything it created.
func (f *Filesystem) Abort(txnName string) error {
	return f.Engine.Abort(txnName)
}

// NewSession constructs a committing-session identity for username.
func (f *Filesystem) NewSession(username string) *session.Session {
	return session.New(username)
}
