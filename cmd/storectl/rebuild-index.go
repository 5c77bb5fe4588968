package main

import (
	"fmt"
	"strconv"

	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/task"
	"github.com/spf13/cobra"
)

var rebuildIndexCmd = &cobra.Command{
	Use:   "rebuild-index ACCOUNT",
	Short: "Carry forward pending schema migrations for one account's archives",
	Long: `Drives task.RebuildIndexHandler directly against ACCOUNT, outside the
task queue's lease/due-time machinery: every archived record whose schema
version trails archive.CurrentSchemaVersion is re-marshaled in place, per
spec.md §4.4's migration path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("storectl rebuild-index: invalid account %q: %w", args[0], err)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		kvStore, _, err := openStore(ctx(), cfg)
		if err != nil {
			return err
		}
		defer kvStore.Close()

		handler := task.NewRebuildIndexHandler(kvStore)
		ops, err := handler.Handle(ctx(), task.Task{Account: uint32(account)})
		if err != nil {
			return fmt.Errorf("storectl rebuild-index: %w", err)
		}
		if len(ops) == 0 {
			fmt.Println("no records needed migration")
			return nil
		}

		if _, err := kvStore.Write(ctx(), &kv.Batch{Ops: ops}); err != nil {
			return fmt.Errorf("storectl rebuild-index: commit: %w", err)
		}
		fmt.Printf("migrated %d record(s)\n", len(ops))
		return nil
	},
}
