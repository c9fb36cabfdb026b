package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidemark/tidemark/internal/record"
	"github.com/tidemark/tidemark/internal/store"
	"gopkg.in/yaml.v3"
)

var exportOut string

type exportDoc struct {
	Categories []record.Category `yaml:"categories"`
	Tasks      []*record.Task    `yaml:"tasks"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tasks and categories as YAML",
	Long: `Write all tasks and categories to stdout (or a file) as YAML.

Completed tasks are included; deleted ones are not.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		st := openStore()
		defer st.Close()

		tasks, err := st.ListTasks(ctx, store.ListFilter{
			CategoryID:       -1,
			IncludeCompleted: true,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading tasks: %v\n", err)
			os.Exit(1)
		}

		cats, err := st.AllCategories(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading categories: %v\n", err)
			os.Exit(1)
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", exportOut, err)
				os.Exit(1)
			}
			defer f.Close()
			out = f
		}

		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(exportDoc{Categories: cats, Tasks: tasks}); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing export: %v\n", err)
			os.Exit(1)
		}
		if err := enc.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing export: %v\n", err)
			os.Exit(1)
		}

		if exportOut != "" {
			fmt.Printf("Exported %d task(s) to %s\n", len(tasks), exportOut)
		}
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
