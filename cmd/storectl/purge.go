package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var purgeBlobsCmd = &cobra.Command{
	Use:   "purge-blobs",
	Short: "Remove expired reserved/temporary blob links and unreferenced content",
	Long: `Runs the blob purge pass of spec.md §4.3/§4.8 once: expired Reserved
and Temporary link rows are removed, and any hash left with zero links
has its content deleted from the blob backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		kvStore, blobs, err := openStore(ctx(), cfg)
		if err != nil {
			return err
		}
		defer kvStore.Close()

		removed, err := blobs.Purge(ctx(), time.Now())
		if err != nil {
			return fmt.Errorf("storectl purge-blobs: %w", err)
		}
		fmt.Printf("removed %d expired blob link(s)\n", removed)
		return nil
	},
}
