// updatewatch follows the update server's event stream, raises notifications
// for container updates and serves health and metrics.
//
// Usage: updatewatch run --config configs/updatewatch.example.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "updatewatch",
		Short: "Follow the container update event stream",
		Long: `updatewatch keeps a live connection to the update server's event stream,
reconnecting with exponential backoff, and turns update events into
notifications.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
