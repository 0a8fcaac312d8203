package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/cadence/pkg/model"
)

type tasksData struct {
	Tasks  []model.TaskNode `json:"tasks"`
	Counts model.TaskCounts `json:"counts"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the frame loop of a running cadence process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var st model.LoopStatus
			if _, err := client.Get(ctx, "/api/v1/loop", &st); err != nil {
				return fmt.Errorf("get loop: %w", err)
			}
			var tasks tasksData
			if _, err := client.Get(ctx, "/api/v1/tasks", &tasks); err != nil {
				return fmt.Errorf("get tasks: %w", err)
			}

			state := "running"
			if st.Paused {
				state = "paused"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loop:      %s\n", state)
			fmt.Fprintf(out, "  Frame:   %s\n", humanize.Comma(int64(st.Frame)))
			fmt.Fprintf(out, "  Elapsed: %.2fs\n", st.Elapsed)
			fmt.Fprintf(out, "  Delta:   %.1fms\n", st.DeltaTime*1000)
			fmt.Fprintf(out, "  Callbacks: %d update, %d render, %d jobs pending\n", st.Updates, st.Renders, st.Pending)
			if st.Panics > 0 {
				fmt.Fprintf(out, "  Panics:  %d\n", st.Panics)
			}

			c := tasks.Counts
			fmt.Fprintf(out, "Tasks:     %d live", c.Live)
			if c.Completed > 0 {
				fmt.Fprintf(out, ", %d completed", c.Completed)
			}
			if c.Cancelled > 0 {
				fmt.Fprintf(out, ", %d cancelled", c.Cancelled)
			}
			if c.Failed > 0 {
				fmt.Fprintf(out, ", %d failed", c.Failed)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
