package txn

import (
	"github.com/orneryd/nornicdb/pkg/dag"
	"github.com/orneryd/nornicdb/pkg/fserr"
	"github.com/orneryd/nornicdb/pkg/noderev"
)

// mergeDirs performs the recursive three-way merge spec §4.5 describes: S
// (newest committed root, or subtree) is folded into T (the transaction's
// mutable tree) using A (the transaction's base revision, or subtree) as
// the common ancestor. aDir may be nil, meaning the path didn't exist in A.
func (e *Engine) mergeDirs(aDir, sDir, tDir *dag.Node, txnName, path string) error {
	aEntries, err := e.entryMap(aDir)
	if err != nil {
		return err
	}
	sEntries, err := e.entryMap(sDir)
	if err != nil {
		return err
	}
	tEntries, err := e.entryMap(tDir)
	if err != nil {
		return err
	}

	names := map[string]struct{}{}
	for n := range aEntries {
		names[n] = struct{}{}
	}
	for n := range sEntries {
		names[n] = struct{}{}
	}
	for n := range tEntries {
		names[n] = struct{}{}
	}

	for name := range names {
		aE, aOK := aEntries[name]
		sE, sOK := sEntries[name]
		tE, tOK := tEntries[name]
		childPath := joinPath(path, name)

		if entriesEqual(sOK, sE, aOK, aE) {
			continue // S left this entry unchanged from A; T's state stands.
		}
		if entriesEqual(tOK, tE, aOK, aE) {
			// T left it unchanged from A; adopt whatever S did.
			if !sOK {
				if tOK {
					if err := e.dag.DeleteEntry(tDir, txnName, name); err != nil {
						return err
					}
				}
				continue
			}
			childID, err := noderev.ParseID(sE.ID)
			if err != nil {
				return err
			}
			if err := e.dag.SetEntry(tDir, txnName, name, childID, sE.Kind); err != nil {
				return err
			}
			continue
		}
		if entriesEqual(sOK, sE, tOK, tE) {
			continue // both sides converged to the same state independently.
		}

		// Both S and T changed this entry from A, and disagree.
		if !sOK || !tOK {
			return fserr.Conflict(childPath, "one side deleted the entry, the other modified it")
		}
		if sE.Kind != tE.Kind {
			return fserr.Conflict(childPath, "concurrent changes disagree on file vs. directory")
		}

		if sE.Kind == noderev.KindDir {
			var aChild *dag.Node
			if aOK {
				aID, err := noderev.ParseID(aE.ID)
				if err != nil {
					return err
				}
				aChild, err = e.dag.NodeFromID(aID)
				if err != nil {
					return err
				}
			}
			sID, err := noderev.ParseID(sE.ID)
			if err != nil {
				return err
			}
			sChild, err := e.dag.NodeFromID(sID)
			if err != nil {
				return err
			}
			tChild, err := e.dag.CloneChild(tDir, name, txnName, nil)
			if err != nil {
				return err
			}
			if err := e.mergeDirs(aChild, sChild, tChild, txnName, childPath); err != nil {
				return err
			}
			continue
		}

		sID, err := noderev.ParseID(sE.ID)
		if err != nil {
			return err
		}
		tID, err := noderev.ParseID(tE.ID)
		if err != nil {
			return err
		}
		sNode, err := e.dag.NodeFromID(sID)
		if err != nil {
			return err
		}
		tNode, err := e.dag.NodeFromID(tID)
		if err != nil {
			return err
		}
		propsDiffer, contentDiffers, err := e.dag.ThingsDifferent(sNode, tNode, true)
		if err != nil {
			return err
		}
		if propsDiffer || contentDiffers {
			return fserr.Conflict(childPath, "concurrent modification of the same file")
		}
		// Both sides ended up with equivalent content/props; T's id stands.
	}
	return nil
}

func (e *Engine) entryMap(dir *dag.Node) (map[string]dag.DirEntry, error) {
	out := map[string]dag.DirEntry{}
	if dir == nil {
		return out, nil
	}
	entries, err := e.dag.DirEntries(dir)
	if err != nil {
		return nil, err
	}
	for _, en := range entries {
		out[en.Name] = en
	}
	return out, nil
}

func entriesEqual(okX bool, eX dag.DirEntry, okY bool, eY dag.DirEntry) bool {
	if okX != okY {
		return false
	}
	if !okX {
		return true
	}
	return eX.ID == eY.ID
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
