package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidemark/tidemark/internal/category"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Show the category tree",
	Long: `Show categories as the server organizes them: folders at the top
level with their member categories nested underneath.

Categories are read-only on this side; they are replaced wholesale from
the server on every sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st := openStore()
		defer st.Close()

		cats, err := st.AllCategories(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading categories: %v\n", err)
			os.Exit(1)
		}

		tree := category.Build(cats)
		if len(tree.Roots) == 0 {
			fmt.Println("No categories (run 'tm sync' to fetch them)")
			return
		}

		for _, root := range tree.Roots {
			printNode(root, 0)
		}
	},
}

func printNode(n *category.Node, depth int) {
	indent := strings.Repeat("   ", depth)
	label := n.Name
	if n.IsFolder {
		label += "/"
	}
	fmt.Printf("%s%s (%d)\n", indent, label, n.ID)
	for _, child := range n.Children {
		printNode(child, depth+1)
	}
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}
