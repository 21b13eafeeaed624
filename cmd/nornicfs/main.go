// Command nornicfs is the command-line driver for the versioned,
// transactional filesystem engine implemented by pkg/fs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/nornicdb/pkg/config"
	"github.com/orneryd/nornicdb/pkg/fs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// openRepo loads configuration from the environment, overrides the data
// directory with --data-dir if given, and opens the repository.
func openRepo(cmd *cobra.Command) (*fs.Filesystem, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	cfg := config.LoadFromEnv()
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	return fs.Open(cfg)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "nornicfs",
		Short: "nornicfs - a versioned, transactional filesystem engine",
		Long: `nornicfs is a content-addressed, transactional, append-only
versioned filesystem engine, in the style of Subversion's FSFS/FSX
repository format, backed by a single embedded BadgerDB instance.

Every write happens inside a transaction; a transaction is committed
by three-way merging it against the current HEAD and publishing it as
the next revision.`,
	}
	rootCmd.PersistentFlags().String("data-dir", "", "repository data directory (overrides NORNICFS_DATA_DIR)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nornicfs v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newBeginCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newMkfileCmd())
	rootCmd.AddCommand(newWriteCmd())
	rootCmd.AddCommand(newCommitCmd())
	rootCmd.AddCommand(newAbortCmd())
	rootCmd.AddCommand(newCatCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newLogCmd())
	rootCmd.AddCommand(newLockCmd())
	rootCmd.AddCommand(newUnlockCmd())
	rootCmd.AddCommand(newLockStatusCmd())
	rootCmd.AddCommand(newDumpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nornicfs:", err)
		os.Exit(1)
	}
}
