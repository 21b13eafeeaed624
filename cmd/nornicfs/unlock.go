package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUnlockCmd() *cobra.Command {
	var token string
	var force bool
	cmd := &cobra.Command{
		Use:   "unlock <path>",
		Short: "release a path lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Locks.Unlock(path, token, force); err != nil {
				return err
			}
			fmt.Printf("unlocked %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "lock token (required unless --force)")
	cmd.Flags().BoolVar(&force, "force", false, "break the lock without a matching token")
	return cmd
}

func newLockStatusCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "lock-status <path>",
		Short: "list locks at or beneath a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			locksFound, err := repo.Locks.GetLocks(path, depth)
			if err != nil {
				return err
			}
			if len(locksFound) == 0 {
				fmt.Println("no locks")
				return nil
			}
			for _, l := range locksFound {
				fmt.Printf("%s  owner=%s  token=%s\n", l.Path, l.Owner, l.Token)
				if l.Comment != "" {
					fmt.Printf("  comment: %s\n", l.Comment)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", -1, "how many levels beneath path to search (default: unbounded)")
	return cmd
}
