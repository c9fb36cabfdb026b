package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var doneCmd = &cobra.Command{
	Use:   "done <key>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st := openStore()
		defer st.Close()

		task := mustResolveTask(ctx, st, args[0])
		task.Completed = true

		if err := st.UpdateLocal(ctx, task); err != nil {
			fmt.Fprintf(os.Stderr, "Error updating task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Done: %s\n", task.Content)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete a task",
	Long: `Delete a task.

The task disappears from listings immediately but is only removed on
the server after the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st := openStore()
		defer st.Close()

		task := mustResolveTask(ctx, st, args[0])

		if err := st.SoftDelete(ctx, task.Key); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Deleted: %s\n", task.Content)
	},
}

func init() {
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(rmCmd)
}
