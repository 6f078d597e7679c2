package main

import (
	"github.com/spf13/cobra"

	"github.com/JamesPrial/timeline-core/internal/consistency"
	"github.com/JamesPrial/timeline-core/internal/transport"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve timeline tools as JSON-RPC over stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			server := NewServer(consistency.NewTools(a.service, a.runner))
			stdio := transport.NewStreamTransport(cmd.InOrStdin(), cmd.OutOrStdout())
			return stdio.Start(cmd.Context(), server.HandleRequest)
		},
	}
}
