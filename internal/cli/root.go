// Package cli implements the cadence command line.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/cadence/internal/config"
	"github.com/me/cadence/internal/logging"
)

var (
	flagConfig    string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
	client *Client
)

// defaultServer returns the default debug API URL, checking CADENCE_SERVER first.
func defaultServer() string {
	if s := os.Getenv("CADENCE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:6060"
}

// NewRootCmd creates the root cobra command for the cadence CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cadence",
		Short: "cadence: cooperative tasks on a frame loop",
		Long:  "cadence runs task choreographies on a frame loop, headless or in real time, and inspects them.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				c.LogLevel = flagLogLevel
			}
			if flags.Changed("log-format") {
				c.LogFormat = flagLogFormat
			}
			if flagDebug {
				c.LogLevel = "debug"
			}
			cfg = c
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (YAML)")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Debug API URL for status, tasks, cancel and state (or CADENCE_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "Log format (text, json, auto)")

	root.AddCommand(
		newDemoCmd(),
		newRunCmd(),
		newEasingsCmd(),
		newTraceCmd(),
		newStatusCmd(),
		newTasksCmd(),
		newCancelCmd(),
		newStateCmd(),
	)

	return root
}
