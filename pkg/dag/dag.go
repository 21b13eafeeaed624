// Package dag implements the typed view over node-revisions (spec §4.4):
// open/create/clone/delete/copy of files and directories, with
// mutable-clone propagation.
//
// A Node is an immutable handle identified by its full node-revision id
// (spec §9 design note: mutation returns a new handle rather than
// re-tagging a live one in place). Callers that hold a Node for a directory
// whose entry was just replaced by a clone must re-open it — by path, or by
// using the Node returned from the mutating call — rather than assume their
// old handle still reflects the tree.
package dag

import (
	"encoding/json"
	"strings"

	"github.com/orneryd/nornicdb/pkg/fserr"
	"github.com/orneryd/nornicdb/pkg/noderev"
	"github.com/orneryd/nornicdb/pkg/reps"
	"github.com/orneryd/nornicdb/pkg/revindex"
	"github.com/orneryd/nornicdb/pkg/txnrec"
)

// rootNodeID is the node id of the repository root, reserved and constant
// across all of history (mirroring FSFS's fixed root-node convention) so
// get_revision_root/get_txn_root never need a separate lookup table.
const rootNodeID int64 = 0

// DirEntry names one child of a directory by its full node-revision id
// (I5): a sub-tree unchanged across two revisions shares the exact same id
// in its parent's entry list.
type DirEntry struct {
	Name string
	ID   string // noderev.ID wire form
	Kind noderev.Kind
}

// Node is an immutable handle to one node-revision.
type Node struct {
	ID          noderev.ID
	Kind        noderev.Kind
	CreatedPath string
}

// DAG is the typed view, wired to the underlying node-revision and
// representation stores.
type DAG struct {
	NodeRevs *noderev.Store
	Reps     *reps.Store
	Revs     *revindex.Index
	Txns     *txnrec.Store
}

// New constructs a DAG view over the given stores.
func New(nr *noderev.Store, rs *reps.Store, ri *revindex.Index, tx *txnrec.Store) *DAG {
	return &DAG{NodeRevs: nr, Reps: rs, Revs: ri, Txns: tx}
}

// GetRevisionRoot returns the root directory node of a committed revision.
func (d *DAG) GetRevisionRoot(rev int64) (*Node, error) {
	wire, err := d.Revs.RootOf(rev)
	if err != nil {
		return nil, err
	}
	id, err := noderev.ParseID(wire)
	if err != nil {
		return nil, err
	}
	return d.nodeFromID(id)
}

// GetTxnRoot returns the root directory node of a (possibly not-yet-mutable)
// transaction: if the root has been cloned for mutation already, that
// mutable node-revision is returned; otherwise the base revision's
// (immutable) root is returned, matching spec §4.4's
// "constructs a synthetic id (txn-root, txn-id) and reads it" — here
// resolved by probing the transaction-tagged root id and falling back to
// the base revision's root if it isn't mutable yet.
func (d *DAG) GetTxnRoot(txnName string) (*Node, error) {
	mutableID := noderev.NewTxnID(rootNodeID, 0, txnName)
	if n, err := d.nodeFromID(mutableID); err == nil {
		return n, nil
	} else if !fserr.Is(err, fserr.KindNotFound) {
		return nil, err
	}

	txnRec, err := d.Txns.Get(txnName)
	if err != nil {
		return nil, err
	}
	return d.GetRevisionRoot(txnRec.BaseRev)
}

// NodeFromID resolves a full node-revision id to a Node handle directly,
// without a containing directory (used by the commit engine's merge, which
// already has ids from directory entries).
func (d *DAG) NodeFromID(id noderev.ID) (*Node, error) {
	return d.nodeFromID(id)
}

func (d *DAG) nodeFromID(id noderev.ID) (*Node, error) {
	rec, err := d.NodeRevs.Get(id)
	if err != nil {
		return nil, err
	}
	return &Node{ID: id, Kind: rec.Kind, CreatedPath: rec.CreatedPath}, nil
}

// record is a small helper returning a node's full record.
func (d *DAG) record(n *Node) (noderev.Record, error) {
	return d.NodeRevs.Get(n.ID)
}

// DirEntries lists a directory's children (spec §4.4).
func (d *DAG) DirEntries(dir *Node) ([]DirEntry, error) {
	if dir.Kind != noderev.KindDir {
		return nil, fserr.NotDirectory(dir.CreatedPath)
	}
	rec, err := d.record(dir)
	if err != nil {
		return nil, err
	}
	if rec.DataKey == "" {
		return nil, nil
	}
	return d.readEntries(reps.Key(rec.DataKey))
}

func (d *DAG) readEntries(key reps.Key) ([]DirEntry, error) {
	size, err := d.Reps.SizeOf(key)
	if err != nil {
		return nil, err
	}
	data, err := d.Reps.ReadRange(key, 0, size)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []DirEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fserr.Corrupt(string(key), "malformed directory entry list: "+err.Error())
	}
	return entries, nil
}

// Open looks up a single child of dir by name.
func (d *DAG) Open(dir *Node, name string) (*Node, error) {
	if err := validateEntryName(name); err != nil {
		return nil, err
	}
	entries, err := d.DirEntries(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			id, err := noderev.ParseID(e.ID)
			if err != nil {
				return nil, err
			}
			return d.nodeFromID(id)
		}
	}
	return nil, fserr.NotFound(joinPath(dir.CreatedPath, name), "no such entry")
}

// OpenPath resolves a '/'-separated path from root, applying spec §4 path
// normalization (I7: "//" collapses to "/", no leading/trailing "/" except
// the bare root).
func (d *DAG) OpenPath(root *Node, path string) (*Node, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	cur := root
	for _, seg := range segs {
		cur, err = d.Open(cur, seg)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// SplitPath normalizes and splits a repository path into entry names,
// validating each against I6/I7.
func SplitPath(path string) ([]string, error) {
	if path == "/" || path == "" {
		return nil, nil
	}
	if strings.HasPrefix(path, "/") {
		path = path[1:]
	}
	if strings.HasSuffix(path, "/") {
		return nil, fserr.PathSyntax(path, "path must not end with '/'")
	}
	raw := strings.Split(path, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue // collapse "//"
		}
		if err := validateEntryName(s); err != nil {
			return nil, err
		}
		segs = append(segs, s)
	}
	return segs, nil
}

func validateEntryName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fserr.PathSyntax(name, "illegal entry name")
	}
	if strings.ContainsAny(name, "/\x00") {
		return fserr.PathSyntax(name, "entry name may not contain '/' or NUL")
	}
	return nil
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
