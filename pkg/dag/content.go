package dag

import (
	"crypto/md5"

	"github.com/orneryd/nornicdb/pkg/fserr"
	"github.com/orneryd/nornicdb/pkg/noderev"
	"github.com/orneryd/nornicdb/pkg/reps"
)

// GetContents returns length bytes of a file's content starting at offset
// (spec §4.4 "Content read").
func (d *DAG) GetContents(file *Node, offset, length int64) ([]byte, error) {
	if file.Kind != noderev.KindFile {
		return nil, fserr.NotFile(file.CreatedPath)
	}
	rec, err := d.record(file)
	if err != nil {
		return nil, err
	}
	if rec.DataKey == "" {
		return nil, nil
	}
	return d.Reps.ReadRange(reps.Key(rec.DataKey), offset, length)
}

// FileLength returns the current byte length of a file's content.
func (d *DAG) FileLength(file *Node) (int64, error) {
	if file.Kind != noderev.KindFile {
		return 0, fserr.NotFile(file.CreatedPath)
	}
	rec, err := d.record(file)
	if err != nil {
		return 0, err
	}
	if rec.DataKey == "" {
		return 0, nil
	}
	return d.Reps.SizeOf(reps.Key(rec.DataKey))
}

// FileChecksum returns the MD5 digest of a file's full content (spec §4.4
// "Content checksum").
func (d *DAG) FileChecksum(file *Node) ([16]byte, error) {
	length, err := d.FileLength(file)
	if err != nil {
		return [16]byte{}, err
	}
	data, err := d.GetContents(file, 0, length)
	if err != nil {
		return [16]byte{}, err
	}
	return md5.Sum(data), nil
}

// EditStream is a write handle over a mutable file's content, obtained via
// BeginEdit. Writes append to the file's mutable fulltext representation
// (spec §4.2 "Write path": a write-in-progress representation is always a
// fulltext; never a delta under construction), which BeginEdit has emptied.
// The representation is written in place, so a reader of the same
// node-revision sees the content written so far.
type EditStream struct {
	dag     *DAG
	file    *Node
	txnName string
	key     reps.Key
}

// BeginEdit clears file's mutable content and returns a stream to write its
// new bytes (spec §4.4 "apply_textdelta" / "Content write", simplified here
// to whole-content replacement rather than svndiff-encoded deltas over the
// wire). The stored representation stays a fulltext until after commit;
// deltification against its predecessor happens post-publish, as a
// best-effort pass over the frozen revision (spec §4.5 step 5), not here.
func (d *DAG) BeginEdit(file *Node, txnName string) (*EditStream, error) {
	if file.Kind != noderev.KindFile {
		return nil, fserr.NotFile(file.CreatedPath)
	}
	rec, err := d.requireMutable(file, txnName)
	if err != nil {
		return nil, err
	}
	var key reps.Key
	if rec.DataKey == "" {
		newKey, err := d.Reps.NewMutableFulltext(txnName)
		if err != nil {
			return nil, err
		}
		key = newKey
		rec.DataKey = string(newKey)
		if err := d.NodeRevs.Put(file.ID, rec); err != nil {
			return nil, err
		}
	} else {
		key, err = d.Reps.GetMutable(reps.Key(rec.DataKey), txnName)
		if err != nil {
			return nil, err
		}
		if string(key) != rec.DataKey {
			rec.DataKey = string(key)
			if err := d.NodeRevs.Put(file.ID, rec); err != nil {
				return nil, err
			}
		}
		if err := d.Reps.ClearMutable(key); err != nil {
			return nil, err
		}
	}
	return &EditStream{dag: d, file: file, txnName: txnName, key: key}, nil
}

// Write appends bytes to the stream.
func (es *EditStream) Write(p []byte) (int, error) {
	if err := es.dag.Reps.AppendFulltext(es.key, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// FinalizeEdits closes the stream. Deltification is never performed here:
// it is a post-commit optimization (spec §4.5 step 5) run by the commit
// engine once the written representation is no longer a still-mutable,
// transaction-tagged one, so a subsequent abort can still find and delete it.
func (es *EditStream) FinalizeEdits() error {
	return nil
}

// ThingsDifferent reports whether two node-revisions' props and/or content
// differ (spec §4.4 "things_different"). Identical representation keys
// always count as equal. When the keys differ, strict compares the bytes
// (spec §11's strict/loose distinction), while loose treats differing
// non-empty keys as different without reading them.
func (d *DAG) ThingsDifferent(a, b *Node, strict bool) (propsDiffer, contentDiffers bool, err error) {
	ra, err := d.record(a)
	if err != nil {
		return false, false, err
	}
	rb, err := d.record(b)
	if err != nil {
		return false, false, err
	}

	propsDiffer = ra.PropsKey != rb.PropsKey
	if propsDiffer && !strict && ra.PropsKey != "" && rb.PropsKey != "" {
		propsDiffer, err = d.repsDiffer(ra.PropsKey, rb.PropsKey, false)
		if err != nil {
			return false, false, err
		}
	} else if propsDiffer && strict {
		propsDiffer, err = d.repsDiffer(ra.PropsKey, rb.PropsKey, true)
		if err != nil {
			return false, false, err
		}
	}

	contentDiffers = ra.DataKey != rb.DataKey
	if contentDiffers {
		contentDiffers, err = d.repsDiffer(ra.DataKey, rb.DataKey, strict)
		if err != nil {
			return false, false, err
		}
	}
	return propsDiffer, contentDiffers, nil
}

func (d *DAG) repsDiffer(keyA, keyB string, strict bool) (bool, error) {
	if keyA == keyB {
		return false, nil
	}
	if keyA == "" || keyB == "" {
		return true, nil
	}
	if !strict {
		return true, nil
	}
	sizeA, err := d.Reps.SizeOf(reps.Key(keyA))
	if err != nil {
		return false, err
	}
	sizeB, err := d.Reps.SizeOf(reps.Key(keyB))
	if err != nil {
		return false, err
	}
	if sizeA != sizeB {
		return true, nil
	}
	dataA, err := d.Reps.ReadRange(reps.Key(keyA), 0, sizeA)
	if err != nil {
		return false, err
	}
	dataB, err := d.Reps.ReadRange(reps.Key(keyB), 0, sizeB)
	if err != nil {
		return false, err
	}
	if len(dataA) != len(dataB) {
		return true, nil
	}
	for i := range dataA {
		if dataA[i] != dataB[i] {
			return true, nil
		}
	}
	return false, nil
}
