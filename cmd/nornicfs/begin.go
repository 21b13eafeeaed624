package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newBeginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "begin [base-revision]",
		Short: "open a new transaction against a revision (default: youngest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			baseRev := repo.Youngest()
			if len(args) == 1 {
				baseRev, err = strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid revision %q: %w", args[0], err)
				}
			}

			name, err := repo.Begin(baseRev)
			if err != nil {
				return err
			}
			fmt.Println(name)
			return nil
		},
	}
}
