package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var failOnFindings bool

	cmd := &cobra.Command{
		Use:   "validate <manuscript-id>",
		Short: "Validate one manuscript and print its open inconsistencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.service.ValidateTimeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if failOnFindings && len(result.Inconsistencies) > 0 {
				return fmt.Errorf("%d open inconsistencies in %s", len(result.Inconsistencies), args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failOnFindings, "fail-on-findings", false, "exit non-zero when open inconsistencies remain")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
