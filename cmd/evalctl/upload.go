package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func uploadCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image or file for use in case messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open upload: %w", err)
			}
			defer f.Close()

			upload, err := newClient().Upload(cmd.Context(), kind, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			return printJSON(cmd, upload)
		},
	}
	cmd.Flags().StringVar(&kind, "type", "file", "Upload type: image or file")
	return cmd
}
