package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidemark/tidemark/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync with the server now",
	Long: `Run one sync cycle against the configured server.

A cycle refreshes categories, pulls remote task changes past the local
high-water mark, then pushes local dirty mutations. On a fresh database
the first pull fetches the full account. Partial failures are reported
but never lose local edits; the next run picks up where this one
stopped.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st := openStore()
		defer st.Close()

		coordinator := newCoordinator(st, &syncer.Config{
			OnProgress: func(current, total int, firstSync bool) {
				if firstSync {
					fmt.Printf("\rFetching tasks: %d/%d", current, total)
					if current == total {
						fmt.Println()
					}
				}
			},
		})

		start := time.Now()
		result, err := coordinator.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
			os.Exit(1)
		}

		elapsed := time.Since(start).Round(time.Millisecond)
		fmt.Printf("Sync complete in %v\n", elapsed)
		fmt.Printf("   Pulled: %d new, %d updated, %d kept local\n",
			result.Pull.Inserted, result.Pull.Updated, result.Pull.Skipped)
		fmt.Printf("   Pushed: %d", result.Pushed)
		if result.Rejected > 0 {
			fmt.Printf(" (%d rejected, will retry)", result.Rejected)
		}
		fmt.Println()
		fmt.Printf("   Version: %d\n", result.RemoteVersion)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
