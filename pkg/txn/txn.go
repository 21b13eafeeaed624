// Package txn implements the transaction/commit engine (spec §4.5): the
// editor protocol, three-way merge against concurrent commits, and atomic
// revision publication.
package txn

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/orneryd/nornicdb/pkg/dag"
	"github.com/orneryd/nornicdb/pkg/fserr"
	"github.com/orneryd/nornicdb/pkg/locks"
	"github.com/orneryd/nornicdb/pkg/noderev"
	"github.com/orneryd/nornicdb/pkg/reps"
	"github.com/orneryd/nornicdb/pkg/revindex"
	"github.com/orneryd/nornicdb/pkg/session"
	"github.com/orneryd/nornicdb/pkg/txnrec"
)

// Engine drives transaction lifecycle and commit (spec §4.5).
type Engine struct {
	nodeRevs *noderev.Store
	reps     *reps.Store
	revs     *revindex.Index
	txns     *txnrec.Store
	dag      *dag.DAG
	locks    *locks.Store

	// RetryLimit bounds the number of merge-and-recheck-HEAD attempts
	// around a commit (spec §5 "bounded attempt count").
	RetryLimit int
	// DeltifyOnCommit schedules best-effort deltification of every frozen
	// file's new representation against its predecessor after a successful
	// commit (spec §4.5 step 5, §9 open question (a): treated as
	// best-effort here).
	DeltifyOnCommit bool
	// Logger receives warnings on retried transient conflicts and
	// best-effort deltification failures; nil-safe, defaults to
	// log.Default() (spec §10.1).
	Logger *log.Logger
}

// New constructs a transaction/commit engine over the given stores.
func New(nr *noderev.Store, rs *reps.Store, ri *revindex.Index, tx *txnrec.Store, d *dag.DAG, lk *locks.Store, retryLimit int) *Engine {
	if retryLimit <= 0 {
		retryLimit = 10
	}
	return &Engine{nodeRevs: nr, reps: rs, revs: ri, txns: tx, dag: d, locks: lk, RetryLimit: retryLimit}
}

func (e *Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Begin opens a new transaction against baseRev, returning its name.
func (e *Engine) Begin(baseRev int64) (string, error) {
	name := newTxnName()
	if _, err := e.txns.Begin(name, baseRev); err != nil {
		return "", err
	}
	return name, nil
}

// Abort deletes every node-revision and representation tagged with txnName,
// and the transaction record itself (spec §4.5 "Abort").
func (e *Engine) Abort(txnName string) error {
	ids, err := e.nodeRevs.ListByTxn(txnName)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := e.nodeRevs.Get(id)
		if err != nil {
			if fserr.Is(err, fserr.KindNotFound) {
				continue
			}
			return err
		}
		if rec.DataKey != "" {
			if err := e.reps.DeleteMutable(reps.Key(rec.DataKey), txnName); err != nil {
				return err
			}
		}
		if rec.PropsKey != "" {
			if err := e.reps.DeleteMutable(reps.Key(rec.PropsKey), txnName); err != nil {
				return err
			}
		}
		if err := e.nodeRevs.Delete(id); err != nil {
			return err
		}
	}
	return e.txns.Delete(txnName)
}

// Commit merges txnName against the current HEAD and publishes it as the
// next revision (spec §4.5 "Three-way merge at commit", "Atomic
// publication"). sess may be nil for a repository with no lock enforcement
// configured.
func (e *Engine) Commit(txnName string, sess *session.Session) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < e.RetryLimit; attempt++ {
		rev, err := e.tryCommit(txnName, sess)
		if err == nil {
			return rev, nil
		}
		if fserr.Is(err, fserr.KindTransient) {
			lastErr = err
			e.logger().Printf("txn %s: commit attempt %d failed transiently: %v", txnName, attempt+1, err)
			continue
		}
		return 0, err
	}
	return 0, lastErr
}

func (e *Engine) tryCommit(txnName string, sess *session.Session) (int64, error) {
	txnRecord, err := e.txns.Get(txnName)
	if err != nil {
		return 0, err
	}

	headBefore := e.revs.Youngest()
	tRoot, err := e.dag.CloneRoot(txnName)
	if err != nil {
		return 0, err
	}

	if headBefore != txnRecord.BaseRev {
		aRoot, err := e.dag.GetRevisionRoot(txnRecord.BaseRev)
		if err != nil {
			return 0, err
		}
		sRoot, err := e.dag.GetRevisionRoot(headBefore)
		if err != nil {
			return 0, err
		}
		if err := e.mergeDirs(aRoot, sRoot, tRoot, txnName, "/"); err != nil {
			return 0, err
		}
	}

	if sess != nil && e.locks != nil {
		tokens := map[string]struct{}{}
		for _, t := range sess.Tokens() {
			tokens[t] = struct{}{}
		}
		if err := e.locks.AllowLockedOperation("/", true, sess.Username, tokens); err != nil {
			return 0, err
		}
	}

	// Re-check HEAD (spec §4.5 "Atomic publication" step 1): if another
	// commit landed while we merged, retry against the new HEAD rather
	// than publishing against a stale merge.
	headNow := e.revs.Youngest()
	if headNow != headBefore {
		return 0, fserr.Transient("HEAD advanced during commit", nil)
	}

	newRev := headNow + 1
	frozenRoot, frozenIDs, err := e.dag.FreezeTxn(tRoot, txnName, newRev)
	if err != nil {
		return 0, err
	}

	if _, err := e.revs.Publish(frozenRoot.ID.String(), txnRecord.Props); err != nil {
		return 0, err
	}
	if err := e.txns.Delete(txnName); err != nil {
		return 0, err
	}

	if e.DeltifyOnCommit {
		e.deltifyFrozen(frozenIDs)
	}
	return newRev, nil
}

// deltifyFrozen schedules best-effort deltification of every frozen file's
// data representation against its predecessor's (spec §4.5 step 5, a
// best-effort optimisation per spec §9 open question (a)). Failures are
// logged, never surfaced: a file left as a fulltext is still correct.
func (e *Engine) deltifyFrozen(ids []noderev.ID) {
	for _, id := range ids {
		rec, err := e.nodeRevs.Get(id)
		if err != nil || rec.Kind != noderev.KindFile || rec.DataKey == "" || rec.PredecessorID == "" {
			continue
		}
		predID, err := noderev.ParseID(rec.PredecessorID)
		if err != nil {
			continue
		}
		predRec, err := e.nodeRevs.Get(predID)
		if err != nil || predRec.DataKey == "" {
			continue
		}
		if _, err := e.reps.Deltify(reps.Key(rec.DataKey), reps.Key(predRec.DataKey)); err != nil {
			e.logger().Printf("deltify %s against %s: %v", rec.DataKey, predRec.DataKey, err)
		}
	}
}

func newTxnName() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("txn: failed to generate transaction name: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}
