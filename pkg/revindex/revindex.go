// Package revindex implements the revision index (spec §4.6): the map from
// revision number to root node-revision id and per-revision (unversioned)
// properties.
package revindex

import (
	"encoding/json"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicdb/pkg/fserr"
)

const keyPrefix = byte(0x40)

var youngestKey = []byte{0x41, 'y'}

// record is the on-disk revision record: root id plus revprops.
type record struct {
	RootID string
	Props  map[string]string
}

// Index is the revision index.
type Index struct {
	db       *badger.DB
	youngest int64 // accessed only via sync/atomic
}

// New wraps an open Badger instance as a revision index, creating revision
// 0 (the empty root) if it doesn't already exist.
func New(db *badger.DB, emptyRootID string) (*Index, error) {
	idx := &Index{db: db, youngest: -1}
	err := db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(youngestKey)
		if err == nil {
			return item.Value(func(val []byte) error {
				idx.youngest = int64(decodeUint(val))
				return nil
			})
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		// First open: publish revision 0.
		rec := record{RootID: emptyRootID, Props: map[string]string{}}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := txn.Set(dbKey(0), data); err != nil {
			return err
		}
		idx.youngest = 0
		return txn.Set(youngestKey, encodeUint(0))
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func dbKey(rev int64) []byte {
	return append([]byte{keyPrefix}, encodeUint(uint64(rev))...)
}

// Youngest returns the most recently published revision number.
func (idx *Index) Youngest() int64 {
	return atomic.LoadInt64(&idx.youngest)
}

// RootOf returns the root node-revision id (as its wire-form string) for rev.
func (idx *Index) RootOf(rev int64) (string, error) {
	r, err := idx.get(rev)
	if err != nil {
		return "", err
	}
	return r.RootID, nil
}

// Publish appends a new revision record, assigning it the next revision
// number, and advances Youngest. Callers must serialize calls to Publish
// themselves (spec §4.5 "Commits are globally serialized").
func (idx *Index) Publish(rootID string, props map[string]string) (int64, error) {
	rev := idx.Youngest() + 1
	rec := record{RootID: rootID, Props: props}
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	err = idx.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dbKey(rev), data); err != nil {
			return err
		}
		return txn.Set(youngestKey, encodeUint(uint64(rev)))
	})
	if err != nil {
		return 0, err
	}
	atomic.StoreInt64(&idx.youngest, rev)
	return rev, nil
}

// GetProperty returns one revision property. Revision properties are
// unversioned (spec §4.6): they may be changed after commit.
func (idx *Index) GetProperty(rev int64, name string) (string, bool, error) {
	r, err := idx.get(rev)
	if err != nil {
		return "", false, err
	}
	v, ok := r.Props[name]
	return v, ok, nil
}

// SetProperty mutates a revision property in place.
func (idx *Index) SetProperty(rev int64, name, value string) error {
	r, err := idx.get(rev)
	if err != nil {
		return err
	}
	if r.Props == nil {
		r.Props = map[string]string{}
	}
	r.Props[name] = value
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return idx.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(rev), data)
	})
}

// Proplist returns a copy of all of rev's revision properties.
func (idx *Index) Proplist(rev int64) (map[string]string, error) {
	r, err := idx.get(rev)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(r.Props))
	for k, v := range r.Props {
		out[k] = v
	}
	return out, nil
}

func (idx *Index) get(rev int64) (record, error) {
	var r record
	err := idx.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(rev))
		if err == badger.ErrKeyNotFound {
			return fserr.NotFound("", "no such revision")
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	return r, err
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
