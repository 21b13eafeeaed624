// Package noderev implements the node-revision data model and store
// (spec §4.3, §6) — the append-only map from node-revision id to the
// immutable (once committed) record describing one node's state at one
// point in history.
package noderev

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orneryd/nornicdb/pkg/fserr"
)

// ID is a node-revision id: the triple (node-id, copy-id, txn-or-rev-id)
// from spec §3/§6. Its wire form is three dotted base36 parts, the third
// prefixed with 't' for a transaction or 'r' for a revision, e.g. "3.1.r17".
type ID struct {
	Node int64
	Copy int64
	// TxnName is set (and Rev is zero/ignored) when this id belongs to a
	// still-open transaction; otherwise Rev holds the committing revision
	// number and TxnName is empty.
	TxnName string
	Rev     int64
	isTxn   bool
}

// NewRevID builds an id tagged with a committed revision.
func NewRevID(node, copy, rev int64) ID {
	return ID{Node: node, Copy: copy, Rev: rev, isTxn: false}
}

// NewTxnID builds an id tagged with an open transaction.
func NewTxnID(node, copy int64, txnName string) ID {
	return ID{Node: node, Copy: copy, TxnName: txnName, isTxn: true}
}

// IsTxn reports whether this id belongs to a mutable, uncommitted transaction.
func (id ID) IsTxn() bool { return id.isTxn }

// String renders the wire form, e.g. "3.1.r17" or "3.1.t9".
func (id ID) String() string {
	third := "r" + strconv.FormatInt(id.Rev, 36)
	if id.isTxn {
		third = "t" + id.TxnName
	}
	return fmt.Sprintf("%s.%s.%s",
		strconv.FormatInt(id.Node, 36), strconv.FormatInt(id.Copy, 36), third)
}

// ParseID parses the wire form produced by String.
func ParseID(s string) (ID, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return ID{}, fserr.PathSyntax(s, "malformed node-revision id")
	}
	node, err := strconv.ParseInt(parts[0], 36, 64)
	if err != nil {
		return ID{}, fserr.PathSyntax(s, "malformed node id component")
	}
	copyID, err := strconv.ParseInt(parts[1], 36, 64)
	if err != nil {
		return ID{}, fserr.PathSyntax(s, "malformed copy id component")
	}
	third := parts[2]
	if len(third) < 2 {
		return ID{}, fserr.PathSyntax(s, "malformed txn-or-rev component")
	}
	switch third[0] {
	case 'r':
		rev, err := strconv.ParseInt(third[1:], 36, 64)
		if err != nil {
			return ID{}, fserr.PathSyntax(s, "malformed revision component")
		}
		return NewRevID(node, copyID, rev), nil
	case 't':
		return NewTxnID(node, copyID, third[1:]), nil
	default:
		return ID{}, fserr.PathSyntax(s, "txn-or-rev component must start with 'r' or 't'")
	}
}

// Related reports whether two ids name revisions of the same node (I5, §6
// GLOSSARY "same line of history" shares this node-id test).
func Related(a, b ID) bool { return a.Node == b.Node }

// SameLineOfHistory reports whether two ids are on the same line of history:
// same node-id *and* same copy-id (§3's GLOSSARY definition; used by spec §8
// scenario 4, where a history-preserving copy gets a new node-id and a new
// copy-id, so the copy and its origin are neither related nor on the same
// line).
func SameLineOfHistory(a, b ID) bool { return a.Node == b.Node && a.Copy == b.Copy }
