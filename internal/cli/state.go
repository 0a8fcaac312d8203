package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state [key=value ...]",
		Short: "Show the state container, or emit a patch to it",
		Long: `With no arguments, prints the state container of a running cadence process.
With key=value pairs, emits them as one patch. Values are YAML scalars, so
count=3 sends a number, running=true a boolean and label=box a string.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var state map[string]any
			if len(args) == 0 {
				if _, err := client.Get(cmd.Context(), "/api/v1/state", &state); err != nil {
					return fmt.Errorf("get state: %w", err)
				}
				printState(cmd.OutOrStdout(), state)
				return nil
			}

			patch, err := parsePatch(args)
			if err != nil {
				return err
			}
			if _, err := client.Post(cmd.Context(), "/api/v1/state", patch, &state); err != nil {
				return fmt.Errorf("emit state: %w", err)
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func parsePatch(args []string) (map[string]any, error) {
	patch := make(map[string]any, len(args))
	for _, arg := range args {
		k, raw, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected key=value", arg)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("value of %s: %w", k, err)
		}
		patch[k] = v
	}
	return patch, nil
}

func printState(w io.Writer, state map[string]any) {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, state[k])
	}
}
