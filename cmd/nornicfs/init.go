package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orneryd/nornicdb/pkg/config"
	"github.com/orneryd/nornicdb/pkg/fs"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "create a new repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			cfg := config.LoadFromEnv()
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}
			repo, err := fs.Open(cfg)
			if err != nil {
				return err
			}
			defer repo.Close()
			fmt.Printf("initialized repository at %s, revision 0\n", cfg.Storage.DataDir)
			return nil
		},
	}
}
