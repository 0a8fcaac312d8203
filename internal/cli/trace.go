package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/cadence/internal/trace"
	"github.com/me/cadence/pkg/model"
)

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded runs in a trace database",
	}
	cmd.AddCommand(newTraceRunsCmd(), newTraceEventsCmd())
	return cmd
}

func openTrace(ctx context.Context, path string) (*trace.SQLiteStore, error) {
	st, err := trace.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newTraceRunsCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "runs <db>",
		Short: "List recorded runs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openTrace(ctx, args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			opts := model.ListOptions{Limit: limit, Offset: offset}
			opts.Clamp()
			runs, total, err := st.ListRuns(ctx, opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			fmt.Fprintf(out, "%-40s  %-20s  %-16s  %10s  %9s  %s\n", "ID", "NAME", "STARTED", "FRAMES", "SIMULATED", "EVENTS")
			for _, r := range runs {
				frames := "-"
				if r.EndedAt != nil {
					frames = humanize.Comma(int64(r.Frames))
				}
				fmt.Fprintf(out, "%-40s  %-20s  %-16s  %10s  %8.2fs  %s\n",
					r.ID, r.Name, humanize.Time(r.StartedAt), frames, r.Simulated, humanize.Comma(int64(r.Events)))
			}
			if len(runs) < total {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", model.DefaultListOptions().Limit, "Maximum runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")
	return cmd
}

func newTraceEventsCmd() *cobra.Command {
	var limit, offset int
	var kind string

	cmd := &cobra.Command{
		Use:   "events <db> <run_id>",
		Short: "List the events of a recorded run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "" && !model.EventKind(kind).Valid() {
				return fmt.Errorf("unknown event kind %q (want transition, emit or log)", kind)
			}
			ctx := cmd.Context()
			st, err := openTrace(ctx, args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(ctx, args[1])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return model.NewNotFoundError("Run", args[1])
			}

			opts := model.ListOptions{Limit: limit, Offset: offset, Kind: kind}
			opts.Clamp()
			events, total, err := st.ListEvents(ctx, run.ID, opts)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s), %s events\n", run.ID, run.Name, humanize.Comma(int64(total)))
			fmt.Fprintf(out, "%6s  %8s  %9s  %-10s  %s\n", "SEQ", "FRAME", "ELAPSED", "KIND", "DETAIL")
			for _, ev := range events {
				fmt.Fprintf(out, "%6d  %8d  %8.3fs  %-10s  %s\n", ev.Seq, ev.Frame, ev.Elapsed, ev.Kind, eventDetail(ev))
			}
			if len(events) < total-offset {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(events), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", model.DefaultListOptions().Limit, "Maximum events to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Events to skip")
	cmd.Flags().StringVar(&kind, "kind", "", "Only show events of this kind (transition, emit, log)")
	return cmd
}

func eventDetail(ev *model.TraceEvent) string {
	switch ev.Kind {
	case model.EventTransition:
		name := ev.TaskName
		if name == "" {
			name = ev.TaskID
		}
		s := fmt.Sprintf("%s %s -> %s", name, ev.From, ev.To)
		if ev.Error != "" {
			s += ": " + ev.Error
		}
		return s
	case model.EventEmit:
		return strings.Join(ev.Keys, ", ")
	default:
		return ev.Message
	}
}
