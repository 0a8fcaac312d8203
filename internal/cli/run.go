package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/cadence/internal/scenario"
	"github.com/me/cadence/internal/server"
	"github.com/me/cadence/internal/trace"
	"github.com/me/cadence/pkg/loop"
	"github.com/me/cadence/pkg/model"
	"github.com/me/cadence/pkg/runner"
)

// ErrTasksFailed is returned by run when any task of the scenario failed.
var ErrTasksFailed = errors.New("tasks failed")

func newRunCmd() *cobra.Command {
	var realtime bool
	var traceDB, debugAddr string
	var fps int

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario headless or in real time",
		Long: `Runs the tasks of a scenario file until they all finish or the scenario
duration runs out.

By default the loop is stepped as fast as possible with a fixed delta of
1/fps seconds. With --realtime a ticker drives the loop at fps, and
--debug-addr serves the debug API while the scenario runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("trace-db") {
				cfg.TraceDB = traceDB
			}
			if flags.Changed("debug-addr") {
				cfg.DebugAddr = debugAddr
			}

			sc, err := scenario.Load(args[0])
			if err != nil {
				printValidation(cmd.ErrOrStderr(), err)
				return err
			}
			switch {
			case flags.Changed("fps"):
				cfg.FPS = fps
			case sc.FPS > 0:
				cfg.FPS = sc.FPS
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.DebugAddr != "" && !realtime {
				return fmt.Errorf("--debug-addr needs --realtime")
			}

			return runScenario(cmd.Context(), cmd.OutOrStdout(), sc, realtime)
		},
	}

	cmd.Flags().BoolVar(&realtime, "realtime", false, "Drive the loop with a wall-clock ticker")
	cmd.Flags().StringVar(&traceDB, "trace-db", "", "Record the run to this SQLite database")
	cmd.Flags().StringVar(&debugAddr, "debug-addr", "", "Serve the debug API on this address (with --realtime)")
	cmd.Flags().IntVar(&fps, "fps", 60, "Frame rate (overrides the scenario)")
	return cmd
}

func printValidation(w io.Writer, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return
	}
	for _, d := range apiErr.Details {
		fmt.Fprintf(w, "  %s: %s\n", d.Path, d.Message)
	}
}

func runScenario(ctx context.Context, out io.Writer, sc *scenario.Scenario, realtime bool) error {
	lp := loop.New(loop.WithLogger(logger))
	eng := runner.NewEngine(lp, runner.WithLogger(logger))

	var opts []scenario.Option
	opts = append(opts, scenario.WithLogger(logger))

	var traces *trace.SQLiteStore
	var rec *trace.Recorder
	if cfg.TraceDB != "" {
		st, err := openTrace(ctx, cfg.TraceDB)
		if err != nil {
			return fmt.Errorf("open trace db: %w", err)
		}
		defer st.Close()
		traces = st

		rec, err = trace.NewRecorder(ctx, st, lp, sc.Name, logger)
		if err != nil {
			return err
		}
		eng.AddHook(rec.Hook())
		opts = append(opts, scenario.OnLog(func(task, msg string) {
			rec.Log(task + ": " + msg)
		}))
	}

	run, err := scenario.New(sc, eng, opts...)
	if err != nil {
		return err
	}
	if rec != nil {
		trace.Watch(rec, run.State())
	}

	var res scenario.Result
	if realtime {
		res = runRealtime(ctx, lp, eng, run, sc, rec, traces)
	} else {
		res = run.RunHeadless(cfg.FrameStep())
	}

	if rec != nil {
		if err := rec.Finish(ctx); err != nil {
			return err
		}
	}

	printResult(out, sc, run, res, rec)
	if res.Tasks.Failed > 0 {
		return fmt.Errorf("%d %w", res.Tasks.Failed, ErrTasksFailed)
	}
	return nil
}

// runRealtime ticks the loop from a Driver until the run finishes, the
// scenario duration runs out or ctx is cancelled. The loop belongs to the
// driver goroutine until the driver has stopped.
func runRealtime(ctx context.Context, lp *loop.Loop, eng *runner.Engine, run *scenario.Run, sc *scenario.Scenario, rec *trace.Recorder, traces *trace.SQLiteStore) scenario.Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := sc.Duration
	if limit <= 0 {
		limit = scenario.DefaultDuration
	}

	if cfg.DebugAddr != "" {
		m := server.NewMonitor(lp, eng, server.WithState(server.EventState(run.State())))
		m.Attach()
		var opts []server.Option
		if traces != nil {
			opts = append(opts, server.WithTraceStore(traces))
		}
		srv := server.New(cfg, m, logger, opts...)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.DebugAddr); err != nil {
				logger.Error("debug server failed", "error", err)
			}
		}()
	}

	done := make(chan struct{})
	var once sync.Once
	var finished bool
	lp.Post(run.Start)
	lp.OnRender(func() {
		if rec != nil && lp.Frame()%uint64(cfg.FPS) == 0 {
			if err := rec.Flush(ctx); err != nil {
				logger.Warn("trace flush failed", "error", err)
			}
		}
		if run.Finished() || lp.Elapsed() >= limit {
			once.Do(func() {
				finished = run.Finished()
				close(done)
			})
		}
	})

	d := loop.NewDriver(lp, cfg.FrameInterval(), logger)
	go d.Start(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	d.Stop()

	if !finished {
		logger.Info("stopping remaining tasks")
		run.Stop()
		lp.Drain()
	}
	return scenario.Result{
		Frames:    lp.Frame(),
		Simulated: lp.Elapsed(),
		Finished:  finished,
		Tasks:     eng.Stats(),
	}
}

func printResult(w io.Writer, sc *scenario.Scenario, run *scenario.Run, res scenario.Result, rec *trace.Recorder) {
	outcome := "finished"
	if !res.Finished {
		outcome = "cut off, remaining tasks cancelled"
	}
	fmt.Fprintf(w, "Scenario:  %s\n", sc.Name)
	fmt.Fprintf(w, "  Outcome:   %s\n", outcome)
	fmt.Fprintf(w, "  Frames:    %s\n", humanize.Comma(int64(res.Frames)))
	fmt.Fprintf(w, "  Simulated: %.2fs\n", res.Simulated)

	t := res.Tasks
	fmt.Fprintf(w, "  Tasks:     %d spawned, %d completed, %d cancelled, %d failed\n",
		t.Spawned, t.Completed, t.Cancelled, t.Failed)

	state := run.State().Get()
	if len(state) > 0 {
		keys := make([]string, 0, len(state))
		for k := range state {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "  State:")
		for _, k := range keys {
			fmt.Fprintf(w, "    %s: %v\n", k, state[k])
		}
	}
	if rec != nil {
		fmt.Fprintf(w, "  Trace run: %s\n", rec.RunID())
	}
}
