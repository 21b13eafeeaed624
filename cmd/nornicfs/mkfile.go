package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMkfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkfile <txn> <path>",
		Short: "create an empty file within an open transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnName, path := args[0], args[1]
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			parentSegs, name, err := splitParent(path)
			if err != nil {
				return err
			}
			if name == "" {
				return fmt.Errorf("cannot mkfile the root")
			}

			ed := repo.NewEditor(txnName)
			batons, err := openParentChain(ed, 0, parentSegs)
			if err != nil {
				return err
			}
			parent := batons[len(batons)-1]
			child, err := ed.AddFile(parent, name, "", 0)
			if err != nil {
				return err
			}
			if err := ed.CloseFile(child, nil); err != nil {
				return err
			}
			if err := closeChain(ed, batons); err != nil {
				return err
			}
			fmt.Printf("added %s\n", path)
			return nil
		},
	}
}
