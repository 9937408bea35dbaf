package main

import (
	"fmt"

	flags "github.com/flags-gg/go-flags"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Fetch once and report client and breaker state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := buildClient()
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			if err := client.Refresh(ctx); err != nil {
				fmt.Fprintf(out, "refresh: %v (type=%s, transient=%t)\n", err, flags.ErrorTypeOf(err), flags.IsTransient(err))
			} else {
				fmt.Fprintln(out, "refresh: ok")
			}
			fmt.Fprintln(out, client.DebugInfo())
			fmt.Fprintln(out, flags.GetVersion())
			return nil
		},
	}
}
