// Package strs implements the string store (spec §4.1): opaque-keyed,
// append-extendable byte blobs backed by BadgerDB.
//
// Keys are random 16-byte identifiers prefixed with a single byte so the
// string table shares one Badger instance with every other nornicfs table,
// the same sharding trick the teacher storage engine used for nodes, edges,
// and their secondary indexes (one byte-prefixed keyspace per concern).
package strs

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicdb/pkg/fserr"
)

// keyPrefix shards the string table within the shared Badger keyspace.
const keyPrefix = byte(0x10)

// Key identifies a string-store blob.
type Key string

func dbKey(k Key) []byte {
	b := make([]byte, 0, 1+len(k))
	b = append(b, keyPrefix)
	return append(b, []byte(k)...)
}

// Store is the string store, opened over one Badger instance.
type Store struct {
	db *badger.DB
}

// New wraps an open Badger instance as a string store. The caller owns the
// *badger.DB's lifecycle (nornicfs tables share one instance).
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

func newKey() Key {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("strs: failed to generate key: %v", err))
	}
	return Key(hex.EncodeToString(buf[:]))
}

// Append appends bytes to the blob named by key, allocating a new key (and
// blob) if key is empty. Returns the (possibly newly-allocated) key.
func (s *Store) Append(key Key, data []byte) (Key, error) {
	if key == "" {
		key = newKey()
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var existing []byte
		item, err := txn.Get(dbKey(key))
		switch err {
		case nil:
			existing, err = item.ValueCopy(nil)
			if err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
			existing = nil
		default:
			return err
		}
		combined := make([]byte, 0, len(existing)+len(data))
		combined = append(combined, existing...)
		combined = append(combined, data...)
		return txn.Set(dbKey(key), combined)
	})
	if err != nil {
		return "", translateErr(err)
	}
	return key, nil
}

// Read returns up to maxLen bytes of key's blob starting at offset. A short
// read (fewer bytes than maxLen, including zero) signals end of blob; it is
// not an error (spec §8 "Read past end of file returns the suffix and a
// short count").
func (s *Store) Read(key Key, offset, maxLen int64) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		if err == badger.ErrKeyNotFound {
			return fserr.NotFound(string(key), "no such string key")
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if offset >= int64(len(val)) {
				out = []byte{}
				return nil
			}
			end := offset + maxLen
			if end > int64(len(val)) || maxLen < 0 {
				end = int64(len(val))
			}
			out = append([]byte{}, val[offset:end]...)
			return nil
		})
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

// Size returns the length in bytes of key's blob.
func (s *Store) Size(key Key) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		if err == badger.ErrKeyNotFound {
			return fserr.NotFound(string(key), "no such string key")
		}
		if err != nil {
			return err
		}
		n = item.ValueSize()
		return nil
	})
	if err != nil {
		return 0, translateErr(err)
	}
	return n, nil
}

// Copy duplicates key's blob under a new key and returns it.
func (s *Store) Copy(key Key) (Key, error) {
	newK := newKey()
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		if err == badger.ErrKeyNotFound {
			return fserr.NotFound(string(key), "no such string key")
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.Set(dbKey(newK), data)
	})
	if err != nil {
		return "", translateErr(err)
	}
	return newK, nil
}

// Clear truncates key's blob to zero length, leaving the key allocated.
func (s *Store) Clear(key Key) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(key), []byte{})
	})
	return translateErr(err)
}

// Delete removes key's blob entirely.
func (s *Store) Delete(key Key) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey(key))
	})
	return translateErr(err)
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*fserr.Error); ok {
		return err
	}
	if err == badger.ErrConflict {
		return fserr.Transient("string store write conflict", err)
	}
	return err
}
