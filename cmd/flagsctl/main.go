// Package main implements flagsctl, a command-line client for the flags.gg
// service built on the go-flags library.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	flags "github.com/flags-gg/go-flags"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFiles   []string
	redisURL   string
	baseURL    string
	timeout    time.Duration
	verbose    bool
	jsonOutput bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flagsctl",
		Short: "Resolve feature flags from flags.gg",
		Long: `flagsctl resolves feature flags the same way an application using the
go-flags library does: environment overrides first, then the local cache,
then the flags.gg service.

Configuration is read from FLAGSGG_* environment variables and optional
.env files.

Examples:
  # Resolve a single flag
  flagsctl resolve beta-ui

  # List every flag, keeping a cache in Redis between runs
  flagsctl list --redis-url redis://localhost:6379/0`,
		Version:       flags.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, ".env files to load before reading the environment")
	root.PersistentFlags().StringVar(&redisURL, "redis-url", "", "persist the flag cache in Redis (overrides FLAGSGG_REDIS_URL)")
	root.PersistentFlags().StringVar(&baseURL, "base-url", "", "flags service URL (overrides FLAGSGG_BASE_URL)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "overall command timeout")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log client activity to stderr")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(newResolveCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newStatusCmd())
	return root
}

// buildClient assembles a client from the environment and the global flags.
func buildClient() (*flags.Client, func(), error) {
	cfg, err := flags.LoadConfig(envFiles...)
	if err != nil {
		return nil, nil, err
	}
	if redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, nil, err
		}
	}

	client, err := flags.New(cfg, flags.WithZapLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Closing client failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return client, cleanup, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

type resultView struct {
	Flag       string          `json:"flag"`
	Enabled    bool            `json:"enabled"`
	ID         string          `json:"id,omitempty"`
	Variant    json.RawMessage `json:"variant,omitempty"`
	Provenance string          `json:"provenance"`
	Error      string          `json:"error,omitempty"`
}

func viewOf(res flags.Result) resultView {
	v := resultView{
		Flag:       res.Flag,
		Enabled:    res.Enabled(),
		ID:         res.State.ID,
		Variant:    res.State.Variant,
		Provenance: res.Provenance.String(),
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

func printResults(w io.Writer, results []flags.Result) error {
	views := make([]resultView, 0, len(results))
	for _, res := range results {
		views = append(views, viewOf(res))
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	for _, v := range views {
		line := fmt.Sprintf("%-32s %-5t %s", v.Flag, v.Enabled, v.Provenance)
		if v.Error != "" {
			line += "  (" + v.Error + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
