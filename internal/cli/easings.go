package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/cadence/internal/easingexpr"
	"github.com/me/cadence/pkg/easing"
)

var sparks = []rune("▁▂▃▄▅▆▇█")

func newEasingsCmd() *cobra.Command {
	var samples int
	var expr string

	cmd := &cobra.Command{
		Use:   "easings",
		Short: "List easing curves with sampled values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if samples < 2 {
				return fmt.Errorf("--samples must be at least 2")
			}
			out := cmd.OutOrStdout()
			if expr != "" {
				c, err := easingexpr.Compile(expr, easingexpr.WithLogger(logger))
				if err != nil {
					return err
				}
				printCurve(out, c.Source(), c.Func(), samples)
				return nil
			}
			for _, name := range easing.Names() {
				f, _ := easing.ByName(name)
				printCurve(out, name, f, samples)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&samples, "samples", 5, "Number of evenly spaced samples from t=0 to t=1")
	cmd.Flags().StringVar(&expr, "expr", "", "Sample a JavaScript expression of t instead of the built-in curves")
	return cmd
}

func printCurve(w io.Writer, name string, f easing.Func, samples int) {
	values := make([]string, samples)
	spark := make([]rune, samples)
	for i := range samples {
		v := f(float64(i) / float64(samples-1))
		values[i] = fmt.Sprintf("%6.3f", v)
		spark[i] = sparkFor(v)
	}
	fmt.Fprintf(w, "%-16s  %s  %s\n", name, string(spark), strings.Join(values, " "))
}

// sparkFor maps v to a bar. Values outside 0..1 (overshooting curves) clamp.
func sparkFor(v float64) rune {
	i := int(v*float64(len(sparks)-1) + 0.5)
	return sparks[min(max(i, 0), len(sparks)-1)]
}
