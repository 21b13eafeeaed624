package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orneryd/nornicdb/pkg/noderev"
)

func newLsCmd() *cobra.Command {
	var rev int64
	var txnName string
	cmd := &cobra.Command{
		Use:   "ls <path>",
		Short: "list a directory's entries",
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
			entries, err := repo.DAG.DirEntries(node)
			if err != nil {
				return err
			}
			for _, e := range entries {
				kind := "file"
				if e.Kind == noderev.KindDir {
					kind = "dir "
				}
				fmt.Printf("%s  %-30s  %s\n", kind, e.Name, e.ID)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&rev, "rev", -1, "revision to list from (default: youngest)")
	cmd.Flags().StringVar(&txnName, "txn", "", "transaction to list from instead of a revision")
	return cmd
}
