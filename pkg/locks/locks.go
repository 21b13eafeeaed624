// Package locks implements the path-lock store (spec §4.7): per-path
// digest records plus ancestor-index records for tree lock discovery.
//
// The real filesystem lays a lock out as a digest file at a path derived
// from MD5(canonical-path), sharded into a two-level hex directory (spec §9
// design note). On a KV store that sharding collapses to a flat
// digest-keyed table, which is what this package does — one Badger key per
// digest, holding either a lock record or an ancestor-index record (never
// both for the same path, since a path that has its own lock is never also
// a plain ancestor of another).
package locks

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicdb/pkg/fserr"
)

const (
	lockPrefix  = byte(0x60)
	indexPrefix = byte(0x61)
)

// Lock is one path's lock record (spec §3 "Lock").
type Lock struct {
	Path       string
	Token      string
	Owner      string
	Comment    string
	Created    time.Time
	Expiration *time.Time
}

func (l Lock) expired(now time.Time) bool {
	return l.Expiration != nil && now.After(*l.Expiration)
}

// indexRecord is an ancestor directory's index: direct children (by digest)
// that are themselves locked, or that are ancestors of a deeper lock.
type indexRecord struct {
	Children map[string]string // digest -> child canonical path
}

// Store is the path-lock store.
type Store struct {
	db *badger.DB
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// New wraps an open Badger instance as a path-lock store.
func New(db *badger.DB) *Store {
	return &Store{db: db, Now: time.Now}
}

// Digest returns the hex MD5 digest of a canonical path, the key used
// throughout this store.
func Digest(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

func lockKey(digest string) []byte {
	return append([]byte{lockPrefix}, []byte(digest)...)
}

func indexKey(digest string) []byte {
	return append([]byte{indexPrefix}, []byte(digest)...)
}

func ancestors(path string) []string {
	if path == "/" || path == "" {
		return nil
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	out := make([]string, 0, len(segs))
	cur := ""
	for i := 0; i < len(segs)-1; i++ {
		cur += "/" + segs[i]
		out = append(out, cur)
	}
	out = append(out, "/")
	return out
}

// Lock creates or steals a lock on path (spec §4.7 "lock"). Callers are
// responsible for confirming path names an existing file, not a directory,
// before calling (the store has no notion of the tree itself); pathRev is
// the target's created-rev, checked against currentRev when supplied (spec
// §4.7 "stale" case).
func (s *Store) Lock(path, owner, token, comment string, expiration *time.Time, steal bool, currentRev, pathRev *int64) (Lock, error) {
	digest := Digest(path)
	if currentRev != nil && pathRev != nil && *currentRev < *pathRev {
		return Lock{}, fserr.LockError(path, "stale: current_rev older than path's created-rev")
	}
	if token == "" {
		token = newToken()
	}

	var result Lock
	err := s.db.Update(func(txn *badger.Txn) error {
		existing, err := getLock(txn, digest)
		if err == nil {
			if !steal && !existing.expired(s.Now()) {
				return fserr.LockError(path, "already locked")
			}
		} else if !fserr.Is(err, fserr.KindNotFound) {
			return err
		}

		result = Lock{Path: path, Token: token, Owner: owner, Comment: comment,
			Created: s.Now(), Expiration: expiration}
		if err := putLock(txn, digest, result); err != nil {
			return err
		}
		return addToAncestorIndices(txn, path, digest)
	})
	return result, err
}

// Unlock removes a lock (spec §4.7 "unlock"). Requires a matching token
// unless broken is true (an authorized force-unlock).
func (s *Store) Unlock(path, token string, broken bool) error {
	digest := Digest(path)
	return s.db.Update(func(txn *badger.Txn) error {
		existing, err := getLock(txn, digest)
		if err != nil {
			return err
		}
		if !broken && existing.Token != token {
			return fserr.LockError(path, "bad lock token")
		}
		if err := deleteLock(txn, digest); err != nil {
			return err
		}
		return removeFromAncestorIndices(txn, path, digest)
	})
}

// GetLock returns path's lock, if present and unexpired.
func (s *Store) GetLock(path string) (Lock, error) {
	var l Lock
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		l, err = getLock(txn, Digest(path))
		return err
	})
	if err != nil {
		return Lock{}, err
	}
	if l.expired(s.Now()) {
		return Lock{}, fserr.LockError(path, "lock expired")
	}
	return l, nil
}

// GetLocks walks the index tree rooted at path to depth levels (depth < 0
// means unbounded), returning every live lock found. Expired locks
// encountered are removed as a side effect, matching spec §4.7's "only when
// the caller holds the repository write lock" — callers of GetLocks are
// expected to hold that lock already.
func (s *Store) GetLocks(path string, depth int) ([]Lock, error) {
	var out []Lock
	err := s.db.Update(func(txn *badger.Txn) error {
		return s.walk(txn, path, depth, &out)
	})
	return out, err
}

func (s *Store) walk(txn *badger.Txn, path string, depth int, out *[]Lock) error {
	digest := Digest(path)
	if l, err := getLock(txn, digest); err == nil {
		if l.expired(s.Now()) {
			_ = deleteLock(txn, digest)
			_ = removeFromAncestorIndices(txn, path, digest)
		} else {
			*out = append(*out, l)
		}
	} else if !fserr.Is(err, fserr.KindNotFound) {
		return err
	}

	if depth == 0 {
		return nil
	}
	idx, err := getIndex(txn, digest)
	if err != nil {
		if fserr.Is(err, fserr.KindNotFound) {
			return nil
		}
		return err
	}
	for _, childPath := range idx.Children {
		if err := s.walk(txn, childPath, depth-1, out); err != nil {
			return err
		}
	}
	return nil
}

// AllowLockedOperation verifies that either path carries no live lock, or
// the session's token set and username authorize the operation. recursive
// additionally checks every locked descendant of path (spec §4.7
// "allow_locked_operation"; "Lock-verification rule").
func (s *Store) AllowLockedOperation(path string, recursive bool, username string, tokens map[string]struct{}) error {
	depth := 0
	if recursive {
		depth = -1
	}
	locksFound, err := s.GetLocks(path, depth)
	if err != nil {
		return err
	}
	for _, l := range locksFound {
		if l.Owner != username {
			return fserr.LockError(l.Path, "lock owner mismatch")
		}
		if _, ok := tokens[l.Token]; !ok {
			return fserr.LockError(l.Path, "bad lock token")
		}
	}
	return nil
}

func addToAncestorIndices(txn *badger.Txn, path, leafDigest string) error {
	anc := ancestors(path)
	childDigest, childPath := leafDigest, path
	for _, dir := range anc {
		dirDigest := Digest(dir)
		idx, err := getIndex(txn, dirDigest)
		if err != nil {
			if !fserr.Is(err, fserr.KindNotFound) {
				return err
			}
			idx = indexRecord{Children: map[string]string{}}
		}
		if idx.Children == nil {
			idx.Children = map[string]string{}
		}
		idx.Children[childDigest] = childPath
		if err := putIndex(txn, dirDigest, idx); err != nil {
			return err
		}
		childDigest, childPath = dirDigest, dir
	}
	return nil
}

// removeFromAncestorIndices prunes the leaf's entry from its parent's
// index, and recursively prunes any ancestor index that becomes empty as a
// result (spec §11 "ancestor-index pruning on unlock").
func removeFromAncestorIndices(txn *badger.Txn, path, leafDigest string) error {
	anc := ancestors(path)
	childDigest := leafDigest
	for _, dir := range anc {
		dirDigest := Digest(dir)
		idx, err := getIndex(txn, dirDigest)
		if err != nil {
			if fserr.Is(err, fserr.KindNotFound) {
				return nil
			}
			return err
		}
		delete(idx.Children, childDigest)
		if len(idx.Children) == 0 {
			if err := deleteIndex(txn, dirDigest); err != nil {
				return err
			}
			childDigest = dirDigest
			continue
		}
		if err := putIndex(txn, dirDigest, idx); err != nil {
			return err
		}
		return nil // this ancestor still has other children; stop pruning
	}
	return nil
}

func getLock(txn *badger.Txn, digest string) (Lock, error) {
	var l Lock
	item, err := txn.Get(lockKey(digest))
	if err == badger.ErrKeyNotFound {
		return Lock{}, fserr.NotFound(digest, "no such lock")
	}
	if err != nil {
		return Lock{}, err
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &l) })
	return l, err
}

func putLock(txn *badger.Txn, digest string, l Lock) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return txn.Set(lockKey(digest), data)
}

func deleteLock(txn *badger.Txn, digest string) error {
	return txn.Delete(lockKey(digest))
}

func getIndex(txn *badger.Txn, digest string) (indexRecord, error) {
	var idx indexRecord
	item, err := txn.Get(indexKey(digest))
	if err == badger.ErrKeyNotFound {
		return indexRecord{}, fserr.NotFound(digest, "no such index")
	}
	if err != nil {
		return indexRecord{}, err
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &idx) })
	return idx, err
}

func putIndex(txn *badger.Txn, digest string, idx indexRecord) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return txn.Set(indexKey(digest), data)
}

func deleteIndex(txn *badger.Txn, digest string) error {
	return txn.Delete(indexKey(digest))
}

func newToken() string {
	sum := md5.Sum([]byte(time.Now().String()))
	return "opaquelocktoken:" + hex.EncodeToString(sum[:])
}
