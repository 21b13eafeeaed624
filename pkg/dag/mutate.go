package dag

import (
	"encoding/json"

	"github.com/orneryd/nornicdb/pkg/fserr"
	"github.com/orneryd/nornicdb/pkg/noderev"
	"github.com/orneryd/nornicdb/pkg/reps"
)

// requireMutable returns n's record, failing with KindNotMutable unless n's
// id is tagged with txnName.
func (d *DAG) requireMutable(n *Node, txnName string) (noderev.Record, error) {
	if !n.ID.IsTxn() || n.ID.TxnName != txnName {
		return noderev.Record{}, fserr.NotMutable(n.CreatedPath)
	}
	return d.record(n)
}

// CloneRoot ensures txnName's root is mutable, cloning it from the
// transaction's base revision root if it is not already (spec §4.4).
func (d *DAG) CloneRoot(txnName string) (*Node, error) {
	mutableID := noderev.NewTxnID(rootNodeID, 0, txnName)
	if n, err := d.nodeFromID(mutableID); err == nil {
		return n, nil
	} else if !fserr.Is(err, fserr.KindNotFound) {
		return nil, err
	}

	txnRecord, err := d.Txns.Get(txnName)
	if err != nil {
		return nil, err
	}
	baseRoot, err := d.GetRevisionRoot(txnRecord.BaseRev)
	if err != nil {
		return nil, err
	}
	rec, err := d.record(baseRoot)
	if err != nil {
		return nil, err
	}

	newID, err := d.NodeRevs.CreateSuccessor(baseRoot.ID, noderev.Record{
		Kind:        noderev.KindDir,
		PropsKey:    rec.PropsKey,
		DataKey:     rec.DataKey,
		CreatedPath: "/",
	}, baseRoot.ID.Copy, txnName)
	if err != nil {
		return nil, err
	}
	return &Node{ID: newID, Kind: noderev.KindDir, CreatedPath: "/"}, nil
}

// CloneChild ensures parent's child named `name` is mutable within txnName,
// cloning it if necessary and rewriting parent's entry to point at the
// clone (spec §4.4). Parent must already be mutable. If copyID is nil the
// clone inherits the child's existing copy-root; a non-nil copyID is used
// instead.
func (d *DAG) CloneChild(parent *Node, name string, txnName string, copyID *int64) (*Node, error) {
	if _, err := d.requireMutable(parent, txnName); err != nil {
		return nil, err
	}
	child, err := d.Open(parent, name)
	if err != nil {
		return nil, err
	}
	if child.ID.IsTxn() && child.ID.TxnName == txnName {
		return child, nil // already mutable
	}

	rec, err := d.record(child)
	if err != nil {
		return nil, err
	}
	effectiveCopyID := child.ID.Copy
	if copyID != nil {
		effectiveCopyID = *copyID
	}
	newID, err := d.NodeRevs.CreateSuccessor(child.ID, rec, effectiveCopyID, txnName)
	if err != nil {
		return nil, err
	}
	newNode := &Node{ID: newID, Kind: rec.Kind, CreatedPath: rec.CreatedPath}

	if err := d.setChildEntry(parent, txnName, name, newID, rec.Kind); err != nil {
		return nil, err
	}
	return newNode, nil
}

// MakeFile creates a new, empty mutable file named `name` in parent (spec §4.4).
func (d *DAG) MakeFile(parent *Node, txnName, name string) (*Node, error) {
	return d.makeEntry(parent, txnName, name, noderev.KindFile)
}

// MakeDir creates a new, empty mutable directory named `name` in parent (spec §4.4).
func (d *DAG) MakeDir(parent *Node, txnName, name string) (*Node, error) {
	return d.makeEntry(parent, txnName, name, noderev.KindDir)
}

func (d *DAG) makeEntry(parent *Node, txnName, name string, kind noderev.Kind) (*Node, error) {
	if err := validateEntryName(name); err != nil {
		return nil, err
	}
	if parent.Kind != noderev.KindDir {
		return nil, fserr.NotDirectory(parent.CreatedPath)
	}
	if _, err := d.requireMutable(parent, txnName); err != nil {
		return nil, err
	}
	if _, err := d.Open(parent, name); err == nil {
		return nil, fserr.AlreadyExists(joinPath(parent.CreatedPath, name))
	} else if !fserr.Is(err, fserr.KindNotFound) {
		return nil, err
	}

	path := joinPath(parent.CreatedPath, name)
	rec := noderev.Record{Kind: kind, CreatedPath: path, PredecessorCount: 0}

	var err error
	if kind == noderev.KindDir {
		rec.DataKey, err = d.newMutableDirData(txnName, nil)
	} else {
		rec.DataKey, err = d.newMutableFileData(txnName)
	}
	if err != nil {
		return nil, err
	}

	id, err := d.NodeRevs.CreateNode(rec, 0, txnName)
	if err != nil {
		return nil, err
	}
	if err := d.setChildEntry(parent, txnName, name, id, kind); err != nil {
		return nil, err
	}
	return &Node{ID: id, Kind: kind, CreatedPath: path}, nil
}

// DeleteEntry removes `name` from parent (spec §4.4). Deletion removes the
// directory entry; the addressed node-revision remains reachable through
// prior revisions (spec §1 non-goal: no garbage collection of history).
func (d *DAG) DeleteEntry(parent *Node, txnName, name string) error {
	if _, err := d.requireMutable(parent, txnName); err != nil {
		return err
	}
	entries, err := d.DirEntries(parent)
	if err != nil {
		return err
	}
	found := false
	out := entries[:0:0]
	for _, e := range entries {
		if e.Name == name {
			found = true
			continue
		}
		out = append(out, e)
	}
	if !found {
		return fserr.NotFound(joinPath(parent.CreatedPath, name), "no such entry")
	}
	return d.writeEntries(parent, txnName, out)
}

// SetEntry directly writes parent's entry for `name` to id/kind, used by
// the merge algorithm (spec §4.4 "used for merge").
func (d *DAG) SetEntry(parent *Node, txnName, name string, id noderev.ID, kind noderev.Kind) error {
	if _, err := d.requireMutable(parent, txnName); err != nil {
		return err
	}
	return d.setChildEntry(parent, txnName, name, id, kind)
}

// Copy inserts fromNode into toParent under `name`. If preserveHistory is
// true, a brand new node-id is allocated (not a successor of fromNode's
// node-id) and tagged with newCopyID, carrying a CopyOrigin back to
// fromPath/fromRev; otherwise fromNode's id is inserted as-is, with no new
// node-revision allocated and no copy-id change (spec §4.4). A
// history-preserving copy must *not* share fromNode's node-id: spec §8
// scenario 4 pins `related(hello@4, copy@4)==false`, and Related is defined
// as same node-id (spec GLOSSARY), so reusing fromNode's node-id here would
// make the copy and its origin spuriously "related".
func (d *DAG) Copy(toParent *Node, txnName, name string, fromNode *Node, fromPath string, fromRev int64, preserveHistory bool, newCopyID int64) error {
	if err := validateEntryName(name); err != nil {
		return err
	}
	if _, err := d.requireMutable(toParent, txnName); err != nil {
		return err
	}
	if _, err := d.Open(toParent, name); err == nil {
		return fserr.AlreadyExists(joinPath(toParent.CreatedPath, name))
	} else if !fserr.Is(err, fserr.KindNotFound) {
		return err
	}

	if !preserveHistory {
		return d.setChildEntry(toParent, txnName, name, fromNode.ID, fromNode.Kind)
	}

	rec, err := d.record(fromNode)
	if err != nil {
		return err
	}
	rec.CopyOrigin = &noderev.CopyOrigin{SourcePath: fromPath, SourceRev: fromRev}
	rec.CreatedPath = joinPath(toParent.CreatedPath, name)
	rec.PredecessorCount = 0
	newID, err := d.NodeRevs.CreateNode(rec, newCopyID, txnName)
	if err != nil {
		return err
	}
	return d.setChildEntry(toParent, txnName, name, newID, rec.Kind)
}

func (d *DAG) setChildEntry(parent *Node, txnName, name string, id noderev.ID, kind noderev.Kind) error {
	entries, err := d.DirEntries(parent)
	if err != nil {
		return err
	}
	replaced := false
	for i, e := range entries {
		if e.Name == name {
			entries[i] = DirEntry{Name: name, ID: id.String(), Kind: kind}
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, DirEntry{Name: name, ID: id.String(), Kind: kind})
	}
	return d.writeEntries(parent, txnName, entries)
}

func (d *DAG) writeEntries(parent *Node, txnName string, entries []DirEntry) error {
	rec, err := d.record(parent)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if rec.DataKey == "" {
		key, err := d.newMutableDirData(txnName, entries)
		if err != nil {
			return err
		}
		rec.DataKey = key
		return d.NodeRevs.Put(parent.ID, rec)
	}
	key, err := d.Reps.GetMutable(reps.Key(rec.DataKey), txnName)
	if err != nil {
		return err
	}
	if string(key) != rec.DataKey {
		rec.DataKey = string(key)
		if err := d.NodeRevs.Put(parent.ID, rec); err != nil {
			return err
		}
	}
	if err := d.Reps.ClearMutable(key); err != nil {
		return err
	}
	return d.Reps.AppendFulltext(key, data)
}

func (d *DAG) newMutableDirData(txnName string, entries []DirEntry) (string, error) {
	if entries == nil {
		entries = []DirEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	key, err := d.Reps.NewMutableFulltext(txnName)
	if err != nil {
		return "", err
	}
	if err := d.Reps.AppendFulltext(key, data); err != nil {
		return "", err
	}
	return string(key), nil
}

func (d *DAG) newMutableFileData(txnName string) (string, error) {
	key, err := d.Reps.NewMutableFulltext(txnName)
	if err != nil {
		return "", err
	}
	return string(key), nil
}
