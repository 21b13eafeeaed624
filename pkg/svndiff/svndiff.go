// Package svndiff implements the delta window codec used by the
// representation store (spec §4.2, §11) to encode one svndiff-style window:
// a byte stream that reconstructs a contiguous range of a target fulltext
// from a source fulltext plus new literal data.
//
// This is not a byte-for-byte clone of Subversion's wire format (see
// _examples/original_source/subversion/libsvn_fs/reps-strings.c for that),
// but it follows the same window/instruction model: each window is a
// sequence of instructions, each either copying a run of bytes from the
// source range or inserting literal new data, applied in order to produce
// the target range.
package svndiff

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// magic identifies a nornicfs delta window stream.
var magic = [4]byte{'N', 'S', 'V', '1'}

// OpKind identifies an instruction's source.
type OpKind byte

const (
	// OpCopy copies bytes from the source range.
	OpCopy OpKind = 0
	// OpInsert inserts literal bytes carried in the window itself.
	OpInsert OpKind = 1
)

// Instruction is one step in reconstructing the target range.
type Instruction struct {
	Kind   OpKind
	Offset int64  // source offset, meaningful only for OpCopy
	Length int64  // number of bytes this instruction produces
	Data   []byte // literal bytes, meaningful only for OpInsert
}

// Window is a single svndiff-style window: a source range plus an ordered
// list of instructions that reconstruct a target range from it.
type Window struct {
	SourceOffset int64
	SourceLength int64
	TargetLength int64
	Instructions []Instruction
}

// Encode serializes a window to its wire form.
func Encode(w *Window) []byte {
	buf := make([]byte, 0, 64+w.TargetLength/2)
	buf = append(buf, magic[:]...)
	buf = appendVarint(buf, w.SourceOffset)
	buf = appendVarint(buf, w.SourceLength)
	buf = appendVarint(buf, w.TargetLength)
	buf = appendVarint(buf, int64(len(w.Instructions)))
	for _, ins := range w.Instructions {
		buf = append(buf, byte(ins.Kind))
		buf = appendVarint(buf, ins.Length)
		switch ins.Kind {
		case OpCopy:
			buf = appendVarint(buf, ins.Offset)
		case OpInsert:
			buf = appendVarint(buf, int64(len(ins.Data)))
			buf = append(buf, ins.Data...)
		}
	}
	return buf
}

// Decode parses a window from its wire form.
func Decode(b []byte) (*Window, error) {
	if len(b) < 4 || [4]byte(b[:4]) != magic {
		return nil, errors.New("svndiff: bad magic")
	}
	r := &reader{buf: b, pos: 4}

	w := &Window{}
	var err error
	if w.SourceOffset, err = r.varint(); err != nil {
		return nil, err
	}
	if w.SourceLength, err = r.varint(); err != nil {
		return nil, err
	}
	if w.TargetLength, err = r.varint(); err != nil {
		return nil, err
	}
	count, err := r.varint()
	if err != nil {
		return nil, err
	}
	w.Instructions = make([]Instruction, 0, count)
	for i := int64(0); i < count; i++ {
		kindB, err := r.byteVal()
		if err != nil {
			return nil, err
		}
		ins := Instruction{Kind: OpKind(kindB)}
		if ins.Length, err = r.varint(); err != nil {
			return nil, err
		}
		switch ins.Kind {
		case OpCopy:
			if ins.Offset, err = r.varint(); err != nil {
				return nil, err
			}
		case OpInsert:
			n, err := r.varint()
			if err != nil {
				return nil, err
			}
			ins.Data, err = r.bytes(int(n))
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("svndiff: unknown instruction kind %d", ins.Kind)
		}
		w.Instructions = append(w.Instructions, ins)
	}
	return w, nil
}

// Apply reconstructs the target range bytes of w given the full source
// bytes (source[w.SourceOffset : w.SourceOffset+w.SourceLength] is what the
// window's copy instructions index into, with Offset relative to
// SourceOffset).
func Apply(w *Window, source []byte) ([]byte, error) {
	out := make([]byte, 0, w.TargetLength)
	for _, ins := range w.Instructions {
		switch ins.Kind {
		case OpCopy:
			start := w.SourceOffset + ins.Offset
			end := start + ins.Length
			if start < 0 || end > int64(len(source)) {
				return nil, fmt.Errorf("svndiff: copy instruction out of range [%d:%d) source len %d", start, end, len(source))
			}
			out = append(out, source[start:end]...)
		case OpInsert:
			if int64(len(ins.Data)) != ins.Length {
				return nil, fmt.Errorf("svndiff: insert instruction length mismatch")
			}
			out = append(out, ins.Data...)
		}
	}
	if int64(len(out)) != w.TargetLength {
		return nil, fmt.Errorf("svndiff: reconstructed %d bytes, window declares %d", len(out), w.TargetLength)
	}
	return out, nil
}

// Generate produces a single window that reconstructs target in full from
// source, using a simple greedy longest-common-run matcher. It is not a
// byte-optimal diff algorithm (no suffix automaton or rolling hash), but it
// finds exact runs shared with the source and falls back to literal inserts
// for everything else, which is sufficient to make deltification shrink
// storage for incrementally-edited files (spec §4.2's intended case: small
// line-level edits to an otherwise-unchanged file).
func Generate(source, target []byte) *Window {
	const minMatch = 16
	w := &Window{SourceOffset: 0, SourceLength: int64(len(source)), TargetLength: int64(len(target))}

	index := buildIndex(source, minMatch)

	i := 0
	for i < len(target) {
		if len(target)-i >= minMatch {
			if srcOff, runLen, ok := bestMatch(index, source, target, i, minMatch); ok {
				w.Instructions = append(w.Instructions, Instruction{
					Kind: OpCopy, Offset: int64(srcOff), Length: int64(runLen),
				})
				i += runLen
				continue
			}
		}
		// No match at i: insert a single literal byte. Adjacent inserts are
		// coalesced below.
		w.Instructions = append(w.Instructions, Instruction{
			Kind: OpInsert, Length: 1, Data: []byte{target[i]},
		})
		i++
	}
	return coalesceInserts(w)
}

func coalesceInserts(w *Window) *Window {
	merged := make([]Instruction, 0, len(w.Instructions))
	for _, ins := range w.Instructions {
		if ins.Kind == OpInsert && len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Kind == OpInsert {
				last.Data = append(last.Data, ins.Data...)
				last.Length += ins.Length
				continue
			}
		}
		merged = append(merged, ins)
	}
	w.Instructions = merged
	return w
}

// buildIndex maps each minMatch-byte prefix seen in source to its (first)
// starting offset.
func buildIndex(source []byte, minMatch int) map[string]int {
	idx := make(map[string]int)
	for i := 0; i+minMatch <= len(source); i++ {
		key := string(source[i : i+minMatch])
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

func bestMatch(index map[string]int, source, target []byte, i, minMatch int) (srcOff, runLen int, ok bool) {
	if i+minMatch > len(target) {
		return 0, 0, false
	}
	key := string(target[i : i+minMatch])
	off, found := index[key]
	if !found {
		return 0, 0, false
	}
	run := minMatch
	for off+run < len(source) && i+run < len(target) && source[off+run] == target[i+run] {
		run++
	}
	return off, run, true
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) byteVal() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errors.New("svndiff: truncated stream")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errors.New("svndiff: truncated stream")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return append([]byte{}, b...), nil
}

func (r *reader) varint() (int64, error) {
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		return 0, errors.New("svndiff: malformed varint")
	}
	r.pos += n
	return v, nil
}

func appendVarint(buf []byte, v int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
