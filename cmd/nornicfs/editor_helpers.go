package main

import (
	"strings"

	"github.com/orneryd/nornicdb/pkg/dag"
	"github.com/orneryd/nornicdb/pkg/txn"
)

// splitParent splits a repository path into its parent directory's segments
// and its final entry name. "/foo/bar" -> (["foo"], "bar").
func splitParent(path string) ([]string, string, error) {
	segs, err := dag.SplitPath(path)
	if err != nil {
		return nil, "", err
	}
	if len(segs) == 0 {
		return nil, "", nil // the root itself
	}
	return segs[:len(segs)-1], segs[len(segs)-1], nil
}

// openParentChain descends from the transaction root to the directory
// naming path's parent, opening (and thus cloning to mutable) every
// intermediate directory along the way. It returns every baton visited,
// root first, so the caller can CloseDirectory each one in reverse once
// the leaf edit is done.
func openParentChain(ed *txn.Editor, baseRev int64, parentSegs []string) ([]*txn.DirBaton, error) {
	root, err := ed.OpenRoot(baseRev)
	if err != nil {
		return nil, err
	}
	batons := []*txn.DirBaton{root}
	cur := root
	for _, seg := range parentSegs {
		child, err := ed.OpenDirectory(cur, seg, baseRev)
		if err != nil {
			return nil, err
		}
		batons = append(batons, child)
		cur = child
	}
	return batons, nil
}

// closeChain closes every directory baton in batons, deepest first.
func closeChain(ed *txn.Editor, batons []*txn.DirBaton) error {
	for i := len(batons) - 1; i >= 0; i-- {
		if err := ed.CloseDirectory(batons[i]); err != nil {
			return err
		}
	}
	return nil
}

func joinSegs(segs []string) string {
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/")
}
