package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "log",
		Short: "list revisions, youngest first, with their unversioned properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			youngest := repo.Youngest()
			shown := int64(0)
			for rev := youngest; rev >= 0 && (limit <= 0 || shown < limit); rev-- {
				props, err := repo.Revs.Proplist(rev)
				if err != nil {
					return err
				}
				fmt.Printf("r%d\n", rev)
				for k, v := range props {
					fmt.Printf("  %s: %s\n", k, v)
				}
				shown++
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 0, "maximum number of revisions to print (default: all)")
	return cmd
}
