package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/cadence/internal/server"
	"github.com/me/cadence/internal/stage"
	"github.com/me/cadence/pkg/loop"
	"github.com/me/cadence/pkg/runner"
)

func newDemoCmd() *cobra.Command {
	var seed int64
	var fps int
	var debugAddr string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the box demo in the terminal",
		Long: `Shows a box that, once started with space, keeps counting, spinning and
moving to random spots. Stopping it cancels the whole flow mid-tween.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("fps") {
				cfg.FPS = fps
			}
			if cmd.Flags().Changed("debug-addr") {
				cfg.DebugAddr = debugAddr
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Seed
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			lp := loop.New(loop.WithLogger(logger))
			eng := runner.NewEngine(lp, runner.WithLogger(logger))
			st := stage.New(eng, 60, 16, uint64(seed), logger)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if cfg.DebugAddr != "" {
				m := server.NewMonitor(lp, eng, server.WithState(server.EventState(st.State())))
				m.Attach()
				srv := server.New(cfg, m, logger)
				go func() {
					if err := srv.ListenAndServe(ctx, cfg.DebugAddr); err != nil {
						logger.Error("debug server failed", "error", err)
					}
				}()
			}

			logger.Debug("demo starting", "seed", seed, "fps", cfg.FPS)
			return stage.Run(ctx, st, cfg.FPS)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for box targets (0 picks one)")
	cmd.Flags().IntVar(&fps, "fps", 60, "Frame rate")
	cmd.Flags().StringVar(&debugAddr, "debug-addr", "", "Serve the debug API on this address")
	return cmd
}
