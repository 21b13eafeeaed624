package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/nornicdb/pkg/dag"
	"github.com/orneryd/nornicdb/pkg/noderev"
)

// dumpNode is the yaml-serializable view of one node-revision, used by the
// dump command to produce a human-readable snapshot of a subtree.
type dumpNode struct {
	Name     string      `yaml:"name"`
	ID       string      `yaml:"id"`
	Kind     string      `yaml:"kind"`
	Size     int64       `yaml:"size,omitempty"`
	Checksum string      `yaml:"md5,omitempty"`
	Entries  []*dumpNode `yaml:"entries,omitempty"`
}

func buildDump(d *dag.DAG, node *dag.Node, name string) (*dumpNode, error) {
	out := &dumpNode{Name: name, ID: node.ID.String()}
	switch node.Kind {
	case noderev.KindDir:
		out.Kind = "dir"
		entries, err := d.DirEntries(node)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			id, err := noderev.ParseID(e.ID)
			if err != nil {
				return nil, err
			}
			child, err := d.NodeFromID(id)
			if err != nil {
				return nil, err
			}
			childDump, err := buildDump(d, child, e.Name)
			if err != nil {
				return nil, err
			}
			out.Entries = append(out.Entries, childDump)
		}
	case noderev.KindFile:
		out.Kind = "file"
		size, err := d.FileLength(node)
		if err != nil {
			return nil, err
		}
		out.Size = size
		sum, err := d.FileChecksum(node)
		if err != nil {
			return nil, err
		}
		out.Checksum = fmt.Sprintf("%x", sum)
	}
	return out, nil
}

func newDumpCmd() *cobra.Command {
	var rev int64
	var txnName string
	cmd := &cobra.Command{
		Use:   "dump [path]",
		Short: "print a YAML snapshot of a subtree's node-revisions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			root, err := resolveRoot(repo, rev, txnName)
			if err != nil {
				return err
			}
			node, err := repo.DAG.OpenPath(root, path)
			if err != nil {
				return err
			}
			name := path
			if name == "/" || name == "" {
				name = "/"
			}
			tree, err := buildDump(repo.DAG, node, name)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(tree)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cmd.Flags().Int64Var(&rev, "rev", -1, "revision to dump from (default: youngest)")
	cmd.Flags().StringVar(&txnName, "txn", "", "transaction to dump from instead of a revision")
	return cmd
}
