package txn

import (
	"encoding/json"

	"github.com/orneryd/nornicdb/pkg/dag"
	"github.com/orneryd/nornicdb/pkg/fserr"
	"github.com/orneryd/nornicdb/pkg/noderev"
	"github.com/orneryd/nornicdb/pkg/reps"
	"github.com/orneryd/nornicdb/pkg/session"
)

// Editor drives the editor protocol of spec §4.5 against one open
// transaction, mapping each call to the corresponding DAG operation.
// Editor calls on a directory baton must be bracketed: CloseDirectory after
// all descendant work for it, matching the spec's baton-passing model
// (spec §9: a baton holds a borrowed reference to the enclosing
// transaction plus owned per-baton state, released on close).
type Editor struct {
	eng     *Engine
	txnName string
}

// NewEditor returns an Editor bound to txnName.
func (e *Engine) NewEditor(txnName string) *Editor {
	return &Editor{eng: e, txnName: txnName}
}

// DirBaton is the open handle for one directory being edited.
type DirBaton struct {
	node  *dag.Node
	props map[string]*string // nil value => delete that property on close
}

// FileBaton is the open handle for one file being edited.
type FileBaton struct {
	node         *dag.Node
	props        map[string]*string
	edit         *dag.EditStream
	baseChecksum []byte
}

// OpenRoot begins editing the transaction's root directory.
func (ed *Editor) OpenRoot(baseRev int64) (*DirBaton, error) {
	root, err := ed.eng.dag.CloneRoot(ed.txnName)
	if err != nil {
		return nil, err
	}
	return &DirBaton{node: root, props: map[string]*string{}}, nil
}

// DeleteEntry removes name from parent.
func (ed *Editor) DeleteEntry(parent *DirBaton, name string) error {
	return ed.eng.dag.DeleteEntry(parent.node, ed.txnName, name)
}

// AddDirectory creates a new directory named name in parent. If
// copySrcPath is non-empty, the directory is instead a history-preserving
// copy of that path as it existed at copySrcRev.
func (ed *Editor) AddDirectory(parent *DirBaton, name, copySrcPath string, copySrcRev int64) (*DirBaton, error) {
	if copySrcPath != "" {
		child, err := ed.copyInto(parent, name, copySrcPath, copySrcRev)
		if err != nil {
			return nil, err
		}
		return &DirBaton{node: child, props: map[string]*string{}}, nil
	}
	child, err := ed.eng.dag.MakeDir(parent.node, ed.txnName, name)
	if err != nil {
		return nil, err
	}
	return &DirBaton{node: child, props: map[string]*string{}}, nil
}

// OpenDirectory resolves an existing child of parent for editing, cloning
// it to mutable first.
func (ed *Editor) OpenDirectory(parent *DirBaton, name string, baseRev int64) (*DirBaton, error) {
	child, err := ed.eng.dag.CloneChild(parent.node, name, ed.txnName, nil)
	if err != nil {
		return nil, err
	}
	if child.Kind != noderev.KindDir {
		return nil, fserr.NotDirectory(child.CreatedPath)
	}
	return &DirBaton{node: child, props: map[string]*string{}}, nil
}

// AddFile creates a new file named name in parent, or a history-preserving
// copy if copySrcPath is non-empty.
func (ed *Editor) AddFile(parent *DirBaton, name, copySrcPath string, copySrcRev int64) (*FileBaton, error) {
	if copySrcPath != "" {
		child, err := ed.copyInto(parent, name, copySrcPath, copySrcRev)
		if err != nil {
			return nil, err
		}
		return &FileBaton{node: child, props: map[string]*string{}}, nil
	}
	child, err := ed.eng.dag.MakeFile(parent.node, ed.txnName, name)
	if err != nil {
		return nil, err
	}
	return &FileBaton{node: child, props: map[string]*string{}}, nil
}

// OpenFile resolves an existing file for editing, cloning it to mutable first.
func (ed *Editor) OpenFile(parent *DirBaton, name string, baseRev int64) (*FileBaton, error) {
	child, err := ed.eng.dag.CloneChild(parent.node, name, ed.txnName, nil)
	if err != nil {
		return nil, err
	}
	if child.Kind != noderev.KindFile {
		return nil, fserr.NotFile(child.CreatedPath)
	}
	return &FileBaton{node: child, props: map[string]*string{}}, nil
}

func (ed *Editor) copyInto(parent *DirBaton, name, srcPath string, srcRev int64) (*dag.Node, error) {
	srcRoot, err := ed.eng.dag.GetRevisionRoot(srcRev)
	if err != nil {
		return nil, err
	}
	srcNode, err := ed.eng.dag.OpenPath(srcRoot, srcPath)
	if err != nil {
		return nil, err
	}
	copyID, err := ed.eng.txns.NextCopyID()
	if err != nil {
		return nil, err
	}
	if err := ed.eng.dag.Copy(parent.node, ed.txnName, name, srcNode, srcPath, srcRev, true, copyID); err != nil {
		return nil, err
	}
	return ed.eng.dag.Open(parent.node, name)
}

// ApplyTextDelta returns a write-stream for file's new content. The stream
// takes the new content as plain bytes, not as svndiff windows, and replaces
// the file's previous content. baseChecksum is stored on fb; neither
// ApplyTextDelta nor CloseFile compares it against the file's content.
func (ed *Editor) ApplyTextDelta(fb *FileBaton, baseChecksum []byte) (*dag.EditStream, error) {
	stream, err := ed.eng.dag.BeginEdit(fb.node, ed.txnName)
	if err != nil {
		return nil, err
	}
	fb.edit = stream
	fb.baseChecksum = baseChecksum
	return stream, nil
}

// ChangeFileProp buffers a property change on fb, applied at CloseFile. A
// nil value deletes the property.
func (ed *Editor) ChangeFileProp(fb *FileBaton, name string, value *string) {
	fb.props[name] = value
}

// ChangeDirProp buffers a property change on db, applied at CloseDirectory.
func (ed *Editor) ChangeDirProp(db *DirBaton, name string, value *string) {
	db.props[name] = value
}

// CloseFile finalizes fb's content and applies its buffered properties,
// failing with checksum-mismatch if finalChecksum doesn't match. Content is
// left as a fulltext; deltification against its predecessor is a
// post-commit concern handled by the commit engine (spec §4.5 step 5), not
// here — doing it earlier would clear the representation's transaction tag
// before commit and strand it on abort (it would no longer match the
// mutable-cleanup's transaction-tag check).
func (ed *Editor) CloseFile(fb *FileBaton, finalChecksum []byte) error {
	if fb.edit != nil {
		if finalChecksum != nil {
			sum, err := ed.eng.dag.FileChecksum(fb.node)
			if err != nil {
				return err
			}
			if !bytesEqual(sum[:], finalChecksum) {
				return fserr.ChecksumMismatch(fb.node.CreatedPath, finalChecksum, sum[:])
			}
		}
		if err := fb.edit.FinalizeEdits(); err != nil {
			return err
		}
	}
	return ed.applyProps(fb.node, fb.props)
}

// CloseDirectory applies db's buffered directory properties.
func (ed *Editor) CloseDirectory(db *DirBaton) error {
	return ed.applyProps(db.node, db.props)
}

// CloseEdit commits the transaction, producing the next revision. sess may
// be nil for a repository with no lock enforcement configured.
func (ed *Editor) CloseEdit(sess *session.Session) (int64, error) {
	return ed.eng.Commit(ed.txnName, sess)
}

// AbortEdit aborts the transaction, discarding all work performed through
// this Editor.
func (ed *Editor) AbortEdit() error {
	return ed.eng.Abort(ed.txnName)
}

func (ed *Editor) applyProps(node *dag.Node, changes map[string]*string) error {
	if len(changes) == 0 {
		return nil
	}
	rec, err := ed.eng.nodeRevs.Get(node.ID)
	if err != nil {
		return err
	}
	props := map[string]string{}
	if rec.PropsKey != "" {
		size, err := ed.eng.reps.SizeOf(reps.Key(rec.PropsKey))
		if err != nil {
			return err
		}
		data, err := ed.eng.reps.ReadRange(reps.Key(rec.PropsKey), 0, size)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &props); err != nil {
				return fserr.Corrupt(rec.PropsKey, "malformed property map: "+err.Error())
			}
		}
	}
	for k, v := range changes {
		if v == nil {
			delete(props, k)
		} else {
			props[k] = *v
		}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	if rec.PropsKey == "" {
		key, err := ed.eng.reps.NewMutableFulltext(ed.txnName)
		if err != nil {
			return err
		}
		rec.PropsKey = string(key)
	} else {
		key, err := ed.eng.reps.GetMutable(reps.Key(rec.PropsKey), ed.txnName)
		if err != nil {
			return err
		}
		rec.PropsKey = string(key)
		if err := ed.eng.reps.ClearMutable(key); err != nil {
			return err
		}
	}
	if err := ed.eng.reps.AppendFulltext(reps.Key(rec.PropsKey), data); err != nil {
		return err
	}
	return ed.eng.nodeRevs.Put(node.ID, rec)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
