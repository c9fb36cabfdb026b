package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local database and sync status",
	Long: `Display the state of the local task database.

Shows:
  - Database location and size
  - Task counts and pending local changes
  - Synced server version and last sync time`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		path := storePath()

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			fmt.Println("No task database yet")
			fmt.Println("Run 'tm add' or 'tm sync' to create one")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking database: %v\n", err)
			os.Exit(1)
		}

		st := openStore()
		defer st.Close()

		taskCount, err := st.CountTasks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting tasks: %v\n", err)
			os.Exit(1)
		}
		dirty, err := st.CountDirty(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting pending changes: %v\n", err)
			os.Exit(1)
		}
		version, err := st.MaxSyncedVersion(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading sync state: %v\n", err)
			os.Exit(1)
		}

		size := info.Size()
		sizeStr := fmt.Sprintf("%d bytes", size)
		if size > 1024*1024 {
			sizeStr = fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
		} else if size > 1024 {
			sizeStr = fmt.Sprintf("%.1f KB", float64(size)/1024)
		}

		fmt.Printf("Database: %s (%s)\n", path, sizeStr)
		fmt.Printf("Tasks: %d\n", taskCount)
		fmt.Printf("Pending changes: %d\n", dirty)
		fmt.Printf("Synced version: %d\n", version)

		if at, err := st.LastSyncAt(ctx); err == nil && !at.IsZero() {
			fmt.Printf("Last sync: %s\n", at.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("Last sync: never")
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
