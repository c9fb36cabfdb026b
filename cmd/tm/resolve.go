package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tidemark/tidemark/internal/record"
	"github.com/tidemark/tidemark/internal/store"
)

// mustResolveTask finds a task by full key or unique key prefix, exiting
// with a message when nothing (or more than one thing) matches.
func mustResolveTask(ctx context.Context, st *store.Store, key string) *record.Task {
	task, err := st.GetTask(ctx, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error looking up task: %v\n", err)
		os.Exit(1)
	}
	if task != nil {
		return task
	}

	tasks, err := st.ListTasks(ctx, store.ListFilter{
		CategoryID:       -1,
		IncludeCompleted: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error looking up task: %v\n", err)
		os.Exit(1)
	}

	var matches []*record.Task
	for _, t := range tasks {
		if strings.HasPrefix(t.Key, key) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0]
	case 0:
		fmt.Fprintf(os.Stderr, "Error: no task matches %q\n", key)
	default:
		fmt.Fprintf(os.Stderr, "Error: %q is ambiguous (%d matches)\n", key, len(matches))
		for _, t := range matches {
			fmt.Fprintf(os.Stderr, "   %s  %s\n", shortKey(t.Key), t.Content)
		}
	}
	os.Exit(1)
	return nil
}
