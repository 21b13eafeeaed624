package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort <txn>",
		Short: "discard a transaction and everything it created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Abort(args[0]); err != nil {
				return err
			}
			fmt.Printf("aborted %s\n", args[0])
			return nil
		},
	}
}
