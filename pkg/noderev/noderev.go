package noderev

import (
	"encoding/json"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicdb/pkg/cache"
	"github.com/orneryd/nornicdb/pkg/fserr"
)

// keyPrefix shards the node_revision table within the shared Badger keyspace.
const keyPrefix = byte(0x20)

// counterKey tracks the next node-id to allocate.
var counterKey = []byte{0x21, 'n'}

// Kind is a node's type: file or directory.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// CopyOrigin records where a node-revision's line of history was copied
// from, if it was created by a preserve-history copy (spec §3).
type CopyOrigin struct {
	SourcePath string
	SourceRev  int64
}

// Record is the complete, immutable (once committed) state of one node at
// one point in history (spec §3).
type Record struct {
	Kind Kind

	// PropsKey is the representation key holding this node-revision's
	// properties, or "" if it has none.
	PropsKey string
	// DataKey is the representation key holding this node-revision's
	// content (file bytes, or serialized directory entries), or "" if empty.
	DataKey string

	// PredecessorID is the id this node-revision was cloned from, or "" for
	// the first revision of a node.
	PredecessorID string
	// PredecessorCount is the number of hops back to the node's origin, or
	// -1 if unknown (I8).
	PredecessorCount int64

	// CopyOrigin is non-nil if this node-revision was created by a
	// preserve-history copy.
	CopyOrigin *CopyOrigin

	// CreatedPath is the canonical path this node-revision was created at
	// (I10: the transaction root's is always "/").
	CreatedPath string

	// HasMergeinfo and MergeinfoCount record the mergeinfo flags spec §3
	// names but leaves opaque to the core (merge tracking is layered above
	// the DAG and is out of this spec's scope beyond carrying the flags).
	HasMergeinfo   bool
	MergeinfoCount int64
}

// Store is the append-only node-revision store (spec §4.3).
type Store struct {
	db      *badger.DB
	nodeCtr int64 // accessed only via sync/atomic
	cache   *cache.NodeRevCache
}

// SetCache attaches a bounded node-revision cache that Get consults before
// reading through to Badger, and that Put/Freeze/Delete invalidate (spec §5:
// "caches must be keyed by node-revision id (immutable => safe)"). Passing
// nil disables caching.
func (s *Store) SetCache(c *cache.NodeRevCache) {
	s.cache = c
}

// New wraps an open Badger instance as a node-revision store, loading the
// node-id allocation counter from it.
func New(db *badger.DB) (*Store, error) {
	s := &Store{db: db}
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(counterKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			s.nodeCtr = int64(decodeCounter(val))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func dbKey(id ID) []byte {
	b := make([]byte, 0, 1+len(id.String()))
	b = append(b, keyPrefix)
	return append(b, []byte(id.String())...)
}

// CreateNode allocates a fresh node id and stores rec as its first
// node-revision, tagged with the given copy-id and transaction name.
func (s *Store) CreateNode(rec Record, copyID int64, txnName string) (ID, error) {
	nodeID := atomic.AddInt64(&s.nodeCtr, 1)
	id := NewTxnID(nodeID, copyID, txnName)
	rec.PredecessorID = ""
	if err := s.put(id, rec, true); err != nil {
		return ID{}, err
	}
	return id, nil
}

// CreateSuccessor stores rec as a new node-revision of the same node as
// prevID, tagged with the given copy-id and transaction name, incrementing
// predecessor-count when it was known.
func (s *Store) CreateSuccessor(prevID ID, rec Record, copyID int64, txnName string) (ID, error) {
	prev, err := s.Get(prevID)
	if err != nil {
		return ID{}, err
	}
	id := NewTxnID(prevID.Node, copyID, txnName)
	rec.PredecessorID = prevID.String()
	if prev.PredecessorCount >= 0 {
		rec.PredecessorCount = prev.PredecessorCount + 1
	} else {
		rec.PredecessorCount = -1
	}
	if err := s.put(id, rec, false); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Bootstrap writes rec directly under id, bypassing the usual
// create/successor allocation. Used exactly once, by the filesystem handle
// that owns this store, to plant the fixed root node-revision of revision 0
// (node-id 0, copy-id 0 — reserved and constant across all of history).
func (s *Store) Bootstrap(id ID, rec Record) error {
	return s.put(id, rec, false)
}

// Get reads the record for id, consulting the attached cache first.
func (s *Store) Get(id ID) (Record, error) {
	idStr := id.String()
	if s.cache != nil {
		if v, ok := s.cache.Get(idStr); ok {
			return v.(Record), nil
		}
	}
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(id))
		if err == badger.ErrKeyNotFound {
			return fserr.NotFound(id.String(), "no such node-revision")
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return rec, err
	}
	if s.cache != nil {
		s.cache.Put(idStr, rec)
	}
	return rec, nil
}

// Put overwrites the record for an existing mutable (transaction-tagged)
// id. Used by DAG operations that mutate a node-revision in place within
// the owning transaction (e.g. updating a directory's entry list).
func (s *Store) Put(id ID, rec Record) error {
	if !id.IsTxn() {
		return fserr.NotMutable(id.String())
	}
	if err := s.put(id, rec, false); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(id.String())
	}
	return nil
}

// Freeze rewrites id's storage key under its post-commit revision-tagged
// id, used by the commit engine to promote a transaction's node-revisions
// to immutability (spec §4.5 "Atomic publication" step 3).
func (s *Store) Freeze(txnID ID, rev int64) (ID, error) {
	rec, err := s.Get(txnID)
	if err != nil {
		return ID{}, err
	}
	newID := NewRevID(txnID.Node, txnID.Copy, rev)
	if err := s.put(newID, rec, false); err != nil {
		return ID{}, err
	}
	if err := s.Delete(txnID); err != nil {
		return ID{}, err
	}
	return newID, nil
}

// Delete removes id's record, used on transaction abort.
func (s *Store) Delete(id ID) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey(id))
	}); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(id.String())
	}
	return nil
}

// ListByTxn returns every node-revision id currently tagged with txnName,
// used by transaction abort to find everything it owns (spec §4.5 "Abort").
func (s *Store) ListByTxn(txnName string) ([]ID, error) {
	suffix := []byte(".t" + txnName)
	var out []ID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{keyPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte{keyPrefix}); it.ValidForPrefix([]byte{keyPrefix}); it.Next() {
			key := it.Item().KeyCopy(nil)
			if !hasSuffix(key, suffix) {
				continue
			}
			idStr := string(key[1:])
			id, err := ParseID(idStr)
			if err != nil {
				continue
			}
			out = append(out, id)
		}
		return nil
	})
	return out, err
}

func hasSuffix(b, suffix []byte) bool {
	if len(b) < len(suffix) {
		return false
	}
	return string(b[len(b)-len(suffix):]) == string(suffix)
}

func (s *Store) put(id ID, rec Record, persistCounter bool) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if persistCounter {
			counter := atomic.LoadInt64(&s.nodeCtr)
			if err := txn.Set(counterKey, encodeCounter(uint64(counter))); err != nil {
				return err
			}
		}
		return txn.Set(dbKey(id), data)
	})
}

func encodeCounter(n uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * i))
	}
	return b
}

func decodeCounter(b []byte) uint64 {
	var n uint64
	for i := 0; i < 8 && i < len(b); i++ {
		n |= uint64(b[i]) << (8 * i)
	}
	return n
}
