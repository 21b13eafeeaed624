package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLockCmd() *cobra.Command {
	var owner, comment string
	var steal bool
	var expiresIn time.Duration
	cmd := &cobra.Command{
		Use:   "lock <path>",
		Short: "take a path lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			currentRev := repo.Youngest()
			root, err := repo.RevisionRoot(currentRev)
			if err != nil {
				return err
			}
			node, err := repo.DAG.OpenPath(root, path)
			if err != nil {
				return err
			}
			pathRev := node.ID.Rev

			var expiration *time.Time
			if expiresIn > 0 {
				t := time.Now().Add(expiresIn)
				expiration = &t
			}

			l, err := repo.Locks.Lock(path, owner, "", comment, expiration, steal, &currentRev, &pathRev)
			if err != nil {
				return err
			}
			fmt.Printf("locked %s\ntoken: %s\n", l.Path, l.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "lock owner username")
	cmd.Flags().StringVar(&comment, "comment", "", "lock comment")
	cmd.Flags().BoolVar(&steal, "steal", false, "steal an existing, non-expired lock")
	cmd.Flags().DurationVar(&expiresIn, "expires", 0, "lock lifetime (default: never expires)")
	return cmd
}
