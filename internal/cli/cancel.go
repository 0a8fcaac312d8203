package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task_id>",
		Short: "Cancel a task and its cancellable descendants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			var data map[string]string
			if _, err := client.Post(cmd.Context(), "/api/v1/tasks/"+id+"/cancel", nil, &data); err != nil {
				return fmt.Errorf("cancel task: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Task %s: %s\n", id, data["status"])
			return nil
		},
	}
}
