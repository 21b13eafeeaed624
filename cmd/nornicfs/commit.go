package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orneryd/nornicdb/pkg/session"
)

func newCommitCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "commit <txn>",
		Short: "merge and publish a transaction as the next revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnName := args[0]
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			var sess *session.Session
			if username != "" {
				sess = repo.NewSession(username)
			}
			rev, err := repo.Commit(txnName, sess)
			if err != nil {
				return err
			}
			fmt.Printf("committed revision %d\n", rev)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "committing user, checked against every lock in the repository (default: no lock enforcement)")
	return cmd
}
