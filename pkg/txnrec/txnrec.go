// Package txnrec implements the bare transaction table (spec §6): the
// on-disk record of a named, persistent workspace with a base revision
// number and custom properties. Transaction lifecycle (begin/commit/abort)
// and the editor/merge machinery built on top live in pkg/txn; this package
// only owns the record itself, so both pkg/dag (which needs a transaction's
// base revision to resolve its root) and pkg/txn can depend on it without a
// cycle.
package txnrec

import (
	"encoding/json"
	"regexp"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicdb/pkg/fserr"
)

const keyPrefix = byte(0x50)

// copyCounterKey persists the monotone copy-id allocator (spec §11: copy
// ids are never reused, even across aborted transactions).
var copyCounterKey = []byte{0x51, 'c'}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

// Record is a transaction's persistent state (spec §3 "Transaction").
type Record struct {
	Name    string
	BaseRev int64
	Props   map[string]string
}

// Store is the transaction table.
type Store struct {
	db *badger.DB
}

// New wraps an open Badger instance as a transaction table.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// ValidName reports whether name is a legal transaction name: one or more
// of [A-Za-z0-9.-] (spec §3).
func ValidName(name string) bool {
	return name != "" && nameRe.MatchString(name)
}

func dbKey(name string) []byte {
	b := make([]byte, 0, 1+len(name))
	b = append(b, keyPrefix)
	return append(b, []byte(name)...)
}

// Begin creates a new transaction record against baseRev.
func (s *Store) Begin(name string, baseRev int64) (Record, error) {
	if !ValidName(name) {
		return Record{}, fserr.PathSyntax(name, "illegal transaction name")
	}
	rec := Record{Name: name, BaseRev: baseRev, Props: map[string]string{}}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(dbKey(name)); err == nil {
			return fserr.AlreadyExists(name)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(dbKey(name), data)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get reads a transaction's record.
func (s *Store) Get(name string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(name))
		if err == badger.ErrKeyNotFound {
			return fserr.NotFound(name, "no such transaction")
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// SetProperty sets one of the transaction's custom properties (e.g.
// svn:log, svn:author, svn:date — spec §6).
func (s *Store) SetProperty(name, key, value string) error {
	rec, err := s.Get(name)
	if err != nil {
		return err
	}
	if rec.Props == nil {
		rec.Props = map[string]string{}
	}
	rec.Props[key] = value
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(name), data)
	})
}

// Delete removes a transaction's record (spec §4.5 "Abort").
func (s *Store) Delete(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey(name))
	})
}

// NextCopyID allocates the next copy-id from the repository-wide monotone
// counter (spec §11).
func (s *Store) NextCopyID() (int64, error) {
	var next int64
	err := s.db.Update(func(txn *badger.Txn) error {
		var cur int64
		item, err := txn.Get(copyCounterKey)
		if err == nil {
			if verr := item.Value(func(val []byte) error {
				cur = int64(decodeUint(val))
				return nil
			}); verr != nil {
				return verr
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		next = cur + 1
		return txn.Set(copyCounterKey, encodeUint(uint64(next)))
	})
	return next, err
}

func encodeUint(n uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * i))
	}
	return b
}

func decodeUint(b []byte) uint64 {
	var n uint64
	for i := 0; i < 8 && i < len(b); i++ {
		n |= uint64(b[i]) << (8 * i)
	}
	return n
}
