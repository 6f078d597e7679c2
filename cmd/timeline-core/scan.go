package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JamesPrial/timeline-core/pkg/timeline"
)

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <world-id> [manuscript-id...]",
		Short: "Rescan every manuscript of a world, or the listed ones, and print the task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.runner.Start(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			a.runner.Wait()

			task, err = a.runner.Poll(task.ID)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), task); err != nil {
				return err
			}
			if task.Status == timeline.ScanFailed {
				return fmt.Errorf("scan %s failed: %s", task.ID, task.Error)
			}
			return nil
		},
	}
}
