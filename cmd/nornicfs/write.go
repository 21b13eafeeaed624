package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newWriteCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "write <txn> <path>",
		Short: "replace a file's content within an open transaction (reads stdin, or --from)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnName, path := args[0], args[1]
			repo, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			var r io.Reader = os.Stdin
			if from != "" {
				f, err := os.Open(from)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}

			parentSegs, name, err := splitParent(path)
			if err != nil {
				return err
			}
			if name == "" {
				return fmt.Errorf("cannot write to the root")
			}

			ed := repo.NewEditor(txnName)
			batons, err := openParentChain(ed, 0, parentSegs)
			if err != nil {
				return err
			}
			parent := batons[len(batons)-1]
			file, err := ed.OpenFile(parent, name, 0)
			if err != nil {
				return err
			}
			stream, err := ed.ApplyTextDelta(file, nil)
			if err != nil {
				return err
			}
			if _, err := stream.Write(data); err != nil {
				return err
			}
			if err := ed.CloseFile(file, nil); err != nil {
				return err
			}
			if err := closeChain(ed, batons); err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes to %s\n", len(data), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "local file to read content from (default: stdin)")
	return cmd
}
