package main

import (
	flags "github.com/flags-gg/go-flags"
	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var def bool

	cmd := &cobra.Command{
		Use:   "resolve <flag>...",
		Short: "Resolve one or more flags",
		Long: `Resolve one or more flags and print their state and provenance.

Examples:
  flagsctl resolve beta-ui
  flagsctl resolve beta-ui checkout --default=true --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := buildClient()
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			results := make([]flags.Result, 0, len(args))
			for _, name := range args {
				results = append(results, client.Resolve(ctx, name, def))
			}
			return printResults(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().BoolVar(&def, "default", false, "value to use when a flag cannot be resolved")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every known flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := buildClient()
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			return printResults(cmd.OutOrStdout(), client.List(ctx))
		},
	}
}
