package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidemark/tidemark/internal/record"
	"github.com/tidemark/tidemark/internal/store"
)

var (
	listCategory  int64
	listCompleted bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks in sort order.

By default only open tasks are shown. Tasks that have not yet been
pushed to the server are marked with *.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st := openStore()
		defer st.Close()

		tasks, err := st.ListTasks(ctx, store.ListFilter{
			CategoryID:       listCategory,
			IncludeCompleted: listCompleted,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing tasks: %v\n", err)
			os.Exit(1)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks")
			return
		}

		for _, t := range tasks {
			fmt.Println(formatTask(t))
		}

		dirty, err := st.CountDirty(ctx)
		if err == nil && dirty > 0 {
			fmt.Printf("\n%d unsynced change(s)\n", dirty)
		}
	},
}

func formatTask(t *record.Task) string {
	mark := "[ ]"
	if t.Completed {
		mark = "[x]"
	}

	dirty := " "
	if t.Dirty() {
		dirty = "*"
	}

	line := fmt.Sprintf("%s%s %s  %s", dirty, mark, shortKey(t.Key), t.Content)
	if t.Reminder != nil {
		line += fmt.Sprintf("  (remind %s)", t.Reminder.Format("2006-01-02 15:04"))
	}
	return line
}

// shortKey truncates a UUID key for display.
func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

func init() {
	listCmd.Flags().Int64VarP(&listCategory, "category", "c", -1, "category ID (-1 = all)")
	listCmd.Flags().BoolVar(&listCompleted, "completed", false, "include completed tasks")
	rootCmd.AddCommand(listCmd)
}
