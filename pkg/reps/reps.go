// Package reps implements the representation store and delta-chain reader
// (spec §4.2): how file and directory contents are physically stored as
// fulltexts or svndiff delta chains against predecessor representations,
// and how deltification decisions are made.
package reps

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicdb/pkg/fserr"
	"github.com/orneryd/nornicdb/pkg/strs"
	"github.com/orneryd/nornicdb/pkg/svndiff"
)

// keyPrefix shards the representation table within the shared Badger keyspace.
const keyPrefix = byte(0x30)

// Key identifies a representation record.
type Key string

// RepKind distinguishes a fulltext representation from a delta chain.
type RepKind int

const (
	KindFulltext RepKind = iota
	KindDelta
)

// Chunk is one entry of a delta representation's chunk list (spec §3): a
// contiguous span of the reconstructed fulltext, produced by applying the
// svndiff window stored at WindowKey to the source representation's bytes.
type Chunk struct {
	TextOffset   int64
	TextLength   int64
	SourceRepKey Key
	WindowKey    strs.Key
	MD5          [16]byte // checksum of the full reconstructed target text
}

// Record describes how to obtain a representation's byte stream (spec §3).
type Record struct {
	Kind RepKind

	// FulltextKey is set when Kind == KindFulltext.
	FulltextKey strs.Key

	// Chunks is set when Kind == KindDelta, in strictly ascending
	// TextOffset order with no gaps (I3).
	Chunks []Chunk

	// TxnTag is non-empty while this representation is still mutable
	// within the named transaction (I2). Cleared at commit.
	TxnTag string
}

// Size returns the content size of the representation: the string size for
// a fulltext, or the end of the last chunk for a delta (spec §4.2).
func (r Record) Size(ss *strs.Store) (int64, error) {
	switch r.Kind {
	case KindFulltext:
		return ss.Size(r.FulltextKey)
	case KindDelta:
		if len(r.Chunks) == 0 {
			return 0, nil
		}
		last := r.Chunks[len(r.Chunks)-1]
		return last.TextOffset + last.TextLength, nil
	default:
		return 0, fmt.Errorf("reps: unknown representation kind %d", r.Kind)
	}
}

// Store is the representation store (spec §4.2).
type Store struct {
	db  *badger.DB
	ss  *strs.Store
	cfg Config
}

// Config controls deltification and recursion policy (spec §4.2).
type Config struct {
	// MinWindowSize: representations smaller than this are never
	// deltified ("policy: skip small files for latency").
	MinWindowSize int
	// ChainRecursionLimit is the delta-chain depth at which a read stops
	// reading source windows by range and instead reconstructs each
	// chunk's whole source fulltext (spec §4.2, §9). That reconstruction
	// reads the source chain again from depth zero, so the total recursion
	// depth of a read is not capped by this value.
	ChainRecursionLimit int
}

// New wraps an open Badger instance and string store as a representation store.
func New(db *badger.DB, ss *strs.Store, cfg Config) *Store {
	if cfg.ChainRecursionLimit <= 0 {
		cfg.ChainRecursionLimit = 32
	}
	return &Store{db: db, ss: ss, cfg: cfg}
}

func dbKey(k Key) []byte {
	b := make([]byte, 0, 1+len(k))
	b = append(b, keyPrefix)
	return append(b, []byte(k)...)
}

// SizeOf returns the content size of the representation stored at key
// (spec §4.2 "Content size").
func (s *Store) SizeOf(key Key) (int64, error) {
	rec, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	return rec.Size(s.ss)
}

// Get reads the record for key.
func (s *Store) Get(key Key) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		if err == badger.ErrKeyNotFound {
			return fserr.NotFound(string(key), "no such representation")
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

func (s *Store) put(key Key, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(key), data)
	})
}

// NewMutableFulltext allocates a new, empty fulltext representation tagged
// with txnName, ready to be written via AppendFulltext.
func (s *Store) NewMutableFulltext(txnName string) (Key, error) {
	strKey, err := s.ss.Append("", nil)
	if err != nil {
		return "", err
	}
	key := Key(strKey)
	if err := s.put(key, Record{Kind: KindFulltext, FulltextKey: strKey, TxnTag: txnName}); err != nil {
		return "", err
	}
	return key, nil
}

// AppendFulltext appends bytes to a mutable fulltext representation's write
// stream (spec §4.2 "Write path": a write-in-progress representation is
// always a fulltext).
func (s *Store) AppendFulltext(key Key, data []byte) error {
	rec, err := s.Get(key)
	if err != nil {
		return err
	}
	if rec.TxnTag == "" {
		return fserr.NotMutable(string(key))
	}
	if rec.Kind != KindFulltext {
		return fmt.Errorf("reps: cannot append to a delta representation directly")
	}
	_, err = s.ss.Append(rec.FulltextKey, data)
	return err
}

// ClearMutable discards all content of a mutable representation, resetting
// it to an empty fulltext (spec §4.2 "Content clear").
func (s *Store) ClearMutable(key Key) error {
	rec, err := s.Get(key)
	if err != nil {
		return err
	}
	if rec.TxnTag == "" {
		return fserr.NotMutable(string(key))
	}
	if rec.Kind == KindDelta {
		for _, c := range rec.Chunks {
			_ = s.ss.Delete(c.WindowKey)
		}
	} else {
		if err := s.ss.Clear(rec.FulltextKey); err != nil {
			return err
		}
	}
	rec.Kind = KindFulltext
	rec.Chunks = nil
	return s.put(key, rec)
}

// Promote clears a representation's transaction tag, marking it immutable.
// Called when the node-revision that owns it is frozen at commit (I2: a
// representation with a transaction tag must only be reachable through
// node-revisions of that same transaction; once the node-revision is
// revision-tagged, its representations must be too).
func (s *Store) Promote(key Key) error {
	if key == "" {
		return nil
	}
	rec, err := s.Get(key)
	if err != nil {
		return err
	}
	if rec.TxnTag == "" {
		return nil
	}
	rec.TxnTag = ""
	return s.put(key, rec)
}

// DeleteMutable discards a representation and every string it owns,
// refusing if it is not tagged with txnName (spec §4.5 "Abort... deletion
// cascades: for each node-revision, its mutable representations' strings
// are deleted").
func (s *Store) DeleteMutable(key Key, txnName string) error {
	rec, err := s.Get(key)
	if err != nil {
		if fserr.Is(err, fserr.KindNotFound) {
			return nil
		}
		return err
	}
	if rec.TxnTag != txnName {
		return nil // not this transaction's to delete
	}
	if rec.Kind == KindDelta {
		for _, c := range rec.Chunks {
			_ = s.ss.Delete(c.WindowKey)
		}
	} else if rec.FulltextKey != "" {
		_ = s.ss.Delete(rec.FulltextKey)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey(key))
	})
}

// GetMutable returns a representation key guaranteed to be mutable within
// txnName, writing through from key if it is not already mutable there
// (spec §4.2 "Getting a mutable copy of an existing representation").
func (s *Store) GetMutable(key Key, txnName string) (Key, error) {
	rec, err := s.Get(key)
	if err != nil {
		return "", err
	}
	if rec.TxnTag == txnName {
		return key, nil
	}

	switch rec.Kind {
	case KindFulltext:
		newStrKey, err := s.ss.Copy(rec.FulltextKey)
		if err != nil {
			return "", err
		}
		newKey := Key(newStrKey)
		if err := s.put(newKey, Record{Kind: KindFulltext, FulltextKey: newStrKey, TxnTag: txnName}); err != nil {
			return "", err
		}
		return newKey, nil
	case KindDelta:
		size, err := rec.Size(s.ss)
		if err != nil {
			return "", err
		}
		data, err := s.ReadRange(key, 0, size)
		if err != nil {
			return "", err
		}
		newStrKey, err := s.ss.Append("", data)
		if err != nil {
			return "", err
		}
		newKey := Key(newStrKey)
		if err := s.put(newKey, Record{Kind: KindFulltext, FulltextKey: newStrKey, TxnTag: txnName}); err != nil {
			return "", err
		}
		return newKey, nil
	default:
		return "", fmt.Errorf("reps: unknown representation kind %d", rec.Kind)
	}
}

// ReadRange implements spec §4.2's read path: read len bytes of key's
// reconstructed fulltext starting at offset, recursing through a delta
// chain's chunk list and source representations, switching to whole-source
// reconstruction at ChainRecursionLimit.
func (s *Store) ReadRange(key Key, offset, length int64) ([]byte, error) {
	return s.readRange(key, offset, length, 0)
}

func (s *Store) readRange(key Key, offset, length int64, depth int) ([]byte, error) {
	rec, err := s.Get(key)
	if err != nil {
		return nil, err
	}

	if rec.Kind == KindFulltext {
		return s.ss.Read(rec.FulltextKey, offset, length)
	}

	if depth >= s.cfg.ChainRecursionLimit {
		// Threshold hit: reconstruct the full representation from whole
		// source fulltexts (which restarts the depth count).
		return s.reconstructFulltextFallback(rec, offset, length)
	}

	end := offset + length
	out := make([]byte, 0, length)
	produced := int64(0)
	for _, c := range rec.Chunks {
		chunkEnd := c.TextOffset + c.TextLength
		if chunkEnd <= offset || c.TextOffset >= end {
			continue // no overlap with the requested window
		}
		windowData, err := s.ss.Read(c.WindowKey, 0, -1)
		if err != nil {
			return nil, err
		}
		win, err := svndiff.Decode(windowData)
		if err != nil {
			return nil, fserr.Corrupt(string(key), "malformed delta window: "+err.Error())
		}
		sourceBytes, err := s.readRange(c.SourceRepKey, win.SourceOffset, win.SourceLength, depth+1)
		if err != nil {
			return nil, err
		}
		target, err := svndiff.Apply(win, sourceBytes)
		if err != nil {
			return nil, fserr.Corrupt(string(key), "delta apply failed: "+err.Error())
		}
		// target reconstructs [c.TextOffset, c.TextOffset+c.TextLength);
		// copy the sub-range that overlaps [offset, end).
		lo := maxI64(offset, c.TextOffset) - c.TextOffset
		hi := minI64(end, chunkEnd) - c.TextOffset
		out = append(out, target[lo:hi]...)
		produced += hi - lo
		if offset+produced >= end {
			break
		}
	}
	return out, nil
}

// reconstructFulltextFallback walks every chunk of rec from the start to
// build the full target text, ignoring the requested window, then slices
// it. This only triggers when ChainRecursionLimit is hit (spec §9 design
// note: "fall back to fulltext reconstruction of the source when the bound
// is hit").
func (s *Store) reconstructFulltextFallback(rec Record, offset, length int64) ([]byte, error) {
	size, err := rec.Size(s.ss)
	if err != nil {
		return nil, err
	}
	full := make([]byte, 0, size)
	for _, c := range rec.Chunks {
		windowData, err := s.ss.Read(c.WindowKey, 0, -1)
		if err != nil {
			return nil, err
		}
		win, err := svndiff.Decode(windowData)
		if err != nil {
			return nil, fserr.Corrupt("", "malformed delta window: "+err.Error())
		}
		src, err := s.reconstructSourceFulltext(c.SourceRepKey)
		if err != nil {
			return nil, err
		}
		target, err := svndiff.Apply(win, src)
		if err != nil {
			return nil, fserr.Corrupt("", "delta apply failed: "+err.Error())
		}
		full = append(full, target...)
	}
	end := offset + length
	if end > int64(len(full)) {
		end = int64(len(full))
	}
	if offset > int64(len(full)) {
		offset = int64(len(full))
	}
	return full[offset:end], nil
}

func (s *Store) reconstructSourceFulltext(key Key) ([]byte, error) {
	rec, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	size, err := rec.Size(s.ss)
	if err != nil {
		return nil, err
	}
	return s.readRange(key, 0, size, 0)
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
