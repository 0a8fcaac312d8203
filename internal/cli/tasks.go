package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/cadence/pkg/model"
)

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the live task tree of a running cadence process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var data tasksData
			if _, err := client.Get(cmd.Context(), "/api/v1/tasks", &data); err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(data.Tasks) == 0 {
				fmt.Fprintln(out, "No live tasks.")
				return nil
			}

			fmt.Fprintf(out, "%-44s  %-10s  %-6s  %s\n", "ID", "STATE", "TWEENS", "NAME")
			fmt.Fprintf(out, "%-44s  %-10s  %-6s  %s\n", "--", "-----", "------", "----")
			for _, n := range data.Tasks {
				printTask(out, n, 0)
			}
			return nil
		},
	}
}

func printTask(w io.Writer, n model.TaskNode, depth int) {
	name := strings.Repeat("  ", depth) + n.Name
	state := n.State
	if n.Cancelled && state != "CANCELLED" {
		state += "*"
	}
	if !n.Cancellable {
		name += " (detached)"
	}
	fmt.Fprintf(w, "%-44s  %-10s  %-6d  %s\n", n.ID, state, n.Tweens, name)
	for _, c := range n.Children {
		printTask(w, c, depth+1)
	}
}
