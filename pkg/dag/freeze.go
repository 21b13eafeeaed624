package dag

import (
	"encoding/json"

	"github.com/orneryd/nornicdb/pkg/noderev"
	"github.com/orneryd/nornicdb/pkg/reps"
)

// FreezeTxn promotes every node-revision reachable from root that is still
// tagged with txnName to the given revision, rewriting directory entries
// that pointed at a since-frozen child so the tree stays self-consistent
// (spec §4.5 "Atomic publication" step 3). It returns the frozen root
// handle plus the full list of ids it froze, in post-order (children before
// their parent), for callers that want to schedule deltification afterward.
func (d *DAG) FreezeTxn(root *Node, txnName string, rev int64) (*Node, []noderev.ID, error) {
	var frozen []noderev.ID
	newRoot, err := d.freezeNode(root, txnName, rev, &frozen)
	if err != nil {
		return nil, nil, err
	}
	return newRoot, frozen, nil
}

func (d *DAG) freezeNode(n *Node, txnName string, rev int64, frozen *[]noderev.ID) (*Node, error) {
	if !n.ID.IsTxn() || n.ID.TxnName != txnName {
		return n, nil // not owned by this transaction; leave untouched
	}
	rec, err := d.record(n)
	if err != nil {
		return nil, err
	}

	if n.Kind == noderev.KindDir && rec.DataKey != "" {
		entries, err := d.readEntries(reps.Key(rec.DataKey))
		if err != nil {
			return nil, err
		}
		changed := false
		for i, e := range entries {
			childID, err := noderev.ParseID(e.ID)
			if err != nil {
				return nil, err
			}
			if !childID.IsTxn() || childID.TxnName != txnName {
				continue
			}
			childNode := &Node{ID: childID, Kind: e.Kind, CreatedPath: joinPath(n.CreatedPath, e.Name)}
			newChild, err := d.freezeNode(childNode, txnName, rev, frozen)
			if err != nil {
				return nil, err
			}
			entries[i].ID = newChild.ID.String()
			changed = true
		}
		if changed {
			data, err := json.Marshal(entries)
			if err != nil {
				return nil, err
			}
			if err := d.Reps.ClearMutable(reps.Key(rec.DataKey)); err != nil {
				return nil, err
			}
			if err := d.Reps.AppendFulltext(reps.Key(rec.DataKey), data); err != nil {
				return nil, err
			}
		}
	}

	if err := d.Reps.Promote(reps.Key(rec.DataKey)); err != nil {
		return nil, err
	}
	if err := d.Reps.Promote(reps.Key(rec.PropsKey)); err != nil {
		return nil, err
	}

	newID, err := d.NodeRevs.Freeze(n.ID, rev)
	if err != nil {
		return nil, err
	}
	newNode := &Node{ID: newID, Kind: n.Kind, CreatedPath: n.CreatedPath}
	*frozen = append(*frozen, newID)
	return newNode, nil
}
