package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/tidemark/tidemark/internal/record"
	"github.com/tidemark/tidemark/internal/sortkey"
	"github.com/tidemark/tidemark/internal/store"
)

var (
	addCategory int64
	addDesc     string
	addRemind   string
	addTop      bool
)

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a task",
	Long: `Add a task to the local database.

The task is created locally and pushed to the server on the next sync.
Reminders accept natural language:

  tm add "Renew passport" --remind "tomorrow at 9am"
  tm add "Water plants" --category 3 --remind "next friday"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		content := strings.Join(args, " ")
		ctx := context.Background()

		st := openStore()
		defer st.Close()

		task := &record.Task{
			Key:         uuid.NewString(),
			Content:     content,
			Description: addDesc,
			CategoryID:  addCategory,
		}

		if addRemind != "" {
			at, err := parseReminder(addRemind)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			task.Reminder = &at
		}

		sk, err := placementKey(ctx, st, addCategory, addTop)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error choosing position: %v\n", err)
			os.Exit(1)
		}
		task.SortKey = sk

		if err := st.InsertLocal(ctx, task); err != nil {
			fmt.Fprintf(os.Stderr, "Error adding task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Added %s\n", task.Key)
		if task.Reminder != nil {
			fmt.Printf("   Reminder: %s\n", task.Reminder.Format("2006-01-02 15:04"))
		}
	},
}

// parseReminder interprets a natural-language time expression relative to now.
func parseReminder(text string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(text, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing reminder %q: %w", text, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("could not understand reminder %q", text)
	}
	return result.Time, nil
}

// placementKey picks a sort key at the top or bottom of a category's list.
func placementKey(ctx context.Context, st *store.Store, categoryID int64, top bool) (decimal.Decimal, error) {
	tasks, err := st.ListTasks(ctx, store.ListFilter{
		CategoryID:       categoryID,
		IncludeCompleted: true,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(tasks) == 0 {
		return sortkey.Between(nil, nil)
	}
	if top {
		first := tasks[0].SortKey
		return sortkey.Between(nil, &first)
	}
	last := tasks[len(tasks)-1].SortKey
	return sortkey.Between(&last, nil)
}

func init() {
	addCmd.Flags().Int64VarP(&addCategory, "category", "c", 0, "category ID")
	addCmd.Flags().StringVarP(&addDesc, "desc", "d", "", "task description")
	addCmd.Flags().StringVarP(&addRemind, "remind", "r", "", "reminder time (natural language)")
	addCmd.Flags().BoolVar(&addTop, "top", false, "place at the top of the list")
	rootCmd.AddCommand(addCmd)
}
