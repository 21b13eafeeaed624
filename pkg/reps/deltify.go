package reps

import (
	"crypto/md5"

	"github.com/orneryd/nornicdb/pkg/fserr"
	"github.com/orneryd/nornicdb/pkg/svndiff"
)

// Deltify re-stores target as a delta against source, a representation on
// the same node's line of history (spec §4.2 "Deltification"). It is a
// post-commit, best-effort optimization (spec §9 open question (a)): safe
// to skip, safe to retry, never required for correctness.
//
// Deltify refuses (returning false, nil) rather than erroring when:
//   - target == source (would violate I4)
//   - target's fulltext is smaller than cfg.MinWindowSize
//   - the resulting delta is not smaller than target's current storage
func (s *Store) Deltify(target, source Key) (bool, error) {
	if target == source {
		return false, nil
	}

	targetRec, err := s.Get(target)
	if err != nil {
		return false, err
	}
	targetSize, err := targetRec.Size(s.ss)
	if err != nil {
		return false, err
	}
	if targetSize < int64(s.cfg.MinWindowSize) {
		return false, nil
	}

	targetBytes, err := s.ReadRange(target, 0, targetSize)
	if err != nil {
		return false, err
	}
	sourceRec, err := s.Get(source)
	if err != nil {
		return false, err
	}
	sourceSize, err := sourceRec.Size(s.ss)
	if err != nil {
		return false, err
	}
	sourceBytes, err := s.ReadRange(source, 0, sourceSize)
	if err != nil {
		return false, err
	}

	currentSize, err := s.storageSize(targetRec)
	if err != nil {
		return false, err
	}

	window := svndiff.Generate(sourceBytes, targetBytes)
	window.SourceOffset = 0
	window.SourceLength = sourceSize
	encoded := svndiff.Encode(window)

	if int64(len(encoded)) >= currentSize {
		// Not smaller: keep target as-is (spec §4.2).
		return false, nil
	}

	windowKey, err := s.ss.Append("", encoded)
	if err != nil {
		return false, err
	}

	newRec := Record{
		Kind:   KindDelta,
		TxnTag: targetRec.TxnTag,
		Chunks: []Chunk{{
			TextOffset:   0,
			TextLength:   targetSize,
			SourceRepKey: source,
			WindowKey:    windowKey,
			MD5:          md5.Sum(targetBytes),
		}},
	}

	oldChunks := targetRec.Chunks
	oldFulltext := targetRec.FulltextKey
	if err := s.put(target, newRec); err != nil {
		_ = s.ss.Delete(windowKey)
		return false, err
	}

	// Reclaim storage target exclusively owned before deltification.
	if targetRec.Kind == KindFulltext && oldFulltext != "" {
		_ = s.ss.Delete(oldFulltext)
	}
	for _, c := range oldChunks {
		_ = s.ss.Delete(c.WindowKey)
	}
	return true, nil
}

func (s *Store) storageSize(rec Record) (int64, error) {
	switch rec.Kind {
	case KindFulltext:
		return s.ss.Size(rec.FulltextKey)
	case KindDelta:
		var total int64
		for _, c := range rec.Chunks {
			n, err := s.ss.Size(c.WindowKey)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	default:
		return 0, fserr.Corrupt("", "unknown representation kind")
	}
}
