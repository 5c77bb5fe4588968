// Command storectl is operator tooling over a configured store: ad-hoc
// sync queries, blob purge, per-account index rebuilds, and raw key
// inspection. It is not a protocol front-end (no IMAP/JMAP/SMTP/DAV) —
// grounded on the teacher's cmd/warren-migrate, a narrow maintenance
// binary linked against the same packages the long-running server uses
// rather than talking to it over the wire.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "storectl",
	Short: "Operator tooling for the mail/groupware storage core",
	Long: `storectl drives ad-hoc maintenance operations against a configured
store: enumerating sync changes, purging expired blobs, rebuilding
per-account indexes after a schema migration, and inspecting raw keys.

It links directly against the same internal/store packages a protocol
server would use; it does not speak any wire protocol itself.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "storectl.yaml", "path to the storectl YAML config file")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(purgeBlobsCmd)
	rootCmd.AddCommand(rebuildIndexCmd)
	rootCmd.AddCommand(inspectCmd)
}

func ctx() context.Context {
	return context.Background()
}
