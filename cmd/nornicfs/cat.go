package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/nornicdb/pkg/dag"
)

func resolveRoot(repo interface {
	RevisionRoot(int64) (*dag.Node, error)
	TxnRoot(string) (*dag.Node, error)
	Youngest() int64
}, rev int64, txnName string) (*dag.Node, error) {
	if txnName != "" {
		return repo.TxnRoot(txnName)
	}
	if rev < 0 {
		rev = repo.Youngest()
	}
	return repo.RevisionRoot(rev)
}

func newCatCmd() *cobra.Command {
	var rev int64
	var txnName string
	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "print a file's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			root, err := resolveRoot(repo, rev, txnName)
			if err != nil {
				return err
			}
			node, err := repo.DAG.OpenPath(root, args[0])
			if err != nil {
				return err
			}
			length, err := repo.DAG.FileLength(node)
			if err != nil {
				return err
			}
			data, err := repo.DAG.GetContents(node, 0, length)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	cmd.Flags().Int64Var(&rev, "rev", -1, "revision to read from (default: youngest)")
	cmd.Flags().StringVar(&txnName, "txn", "", "transaction to read from instead of a revision")
	return cmd
}
