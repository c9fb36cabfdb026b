package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/tidemark/tidemark/internal/record"
	"github.com/tidemark/tidemark/internal/sortkey"
	"github.com/tidemark/tidemark/internal/store"
)

var (
	moveAfter  string
	moveBefore string
	moveTop    bool
	moveBottom bool
)

var moveCmd = &cobra.Command{
	Use:   "move <key>",
	Short: "Reorder a task within its category",
	Long: `Move a task to a new position in its category.

Exactly one of --after, --before, --top or --bottom must be given.
Positions are kept as fractional sort keys, so a move touches only the
moved task. When a gap between neighbors is exhausted the whole
category is renumbered and the move retried.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if countSet(moveAfter != "", moveBefore != "", moveTop, moveBottom) != 1 {
			fmt.Fprintf(os.Stderr, "Error: exactly one of --after, --before, --top, --bottom required\n")
			os.Exit(1)
		}

		ctx := context.Background()

		st := openStore()
		defer st.Close()

		task := mustResolveTask(ctx, st, args[0])

		sk, err := targetKey(ctx, st, task)
		if errors.Is(err, sortkey.ErrRenumberRequired) {
			n, rerr := st.RenumberCategory(ctx, task.CategoryID)
			if rerr != nil {
				fmt.Fprintf(os.Stderr, "Error renumbering category: %v\n", rerr)
				os.Exit(1)
			}
			fmt.Printf("Renumbered %d task(s)\n", n)
			sk, err = targetKey(ctx, st, task)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error choosing position: %v\n", err)
			os.Exit(1)
		}

		if err := st.Reorder(ctx, task.Key, sk); err != nil {
			fmt.Fprintf(os.Stderr, "Error moving task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Moved: %s\n", task.Content)
	},
}

// targetKey computes the sort key for the requested position, reading the
// task's category fresh so a preceding renumber is observed.
func targetKey(ctx context.Context, st *store.Store, task *record.Task) (decimal.Decimal, error) {
	tasks, err := st.ListTasks(ctx, store.ListFilter{
		CategoryID:       task.CategoryID,
		IncludeCompleted: true,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	// The moved task itself is not a neighbor.
	peers := tasks[:0:0]
	for _, t := range tasks {
		if t.Key != task.Key {
			peers = append(peers, t)
		}
	}

	switch {
	case moveTop:
		if len(peers) == 0 {
			return sortkey.Between(nil, nil)
		}
		first := peers[0].SortKey
		return sortkey.Between(nil, &first)

	case moveBottom:
		if len(peers) == 0 {
			return sortkey.Between(nil, nil)
		}
		last := peers[len(peers)-1].SortKey
		return sortkey.Between(&last, nil)

	case moveAfter != "":
		anchor := mustResolveTask(ctx, st, moveAfter)
		lower := anchor.SortKey
		upper := nextKeyAfter(peers, anchor.Key)
		return sortkey.Between(&lower, upper)

	default: // moveBefore
		anchor := mustResolveTask(ctx, st, moveBefore)
		upper := anchor.SortKey
		lower := prevKeyBefore(peers, anchor.Key)
		return sortkey.Between(lower, &upper)
	}
}

func nextKeyAfter(peers []*record.Task, anchorKey string) *decimal.Decimal {
	for i, t := range peers {
		if t.Key == anchorKey && i+1 < len(peers) {
			sk := peers[i+1].SortKey
			return &sk
		}
	}
	return nil
}

func prevKeyBefore(peers []*record.Task, anchorKey string) *decimal.Decimal {
	for i, t := range peers {
		if t.Key == anchorKey && i > 0 {
			sk := peers[i-1].SortKey
			return &sk
		}
	}
	return nil
}

func countSet(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func init() {
	moveCmd.Flags().StringVar(&moveAfter, "after", "", "place after this task")
	moveCmd.Flags().StringVar(&moveBefore, "before", "", "place before this task")
	moveCmd.Flags().BoolVar(&moveTop, "top", false, "place at the top")
	moveCmd.Flags().BoolVar(&moveBottom, "bottom", false, "place at the bottom")
	rootCmd.AddCommand(moveCmd)
}
