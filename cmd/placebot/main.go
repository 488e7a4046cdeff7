// CLAUDE:SUMMARY placebot CLI: run (traversal loop + journal + status server), check (dry resolve of the target tree), version.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

type exitError struct {
	Code int
	Err  error
}

func (e *exitError) Error() string {
	if e == nil || e.Err == nil {
		return "command failed"
	}
	return e.Err.Error()
}

func (e *exitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// globalOptions are shared by every subcommand.
type globalOptions struct {
	ConfigPath string
	Target     string
	LogLevel   string
}

func main() {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "placebot",
		Short:         "Collaborative canvas agent: keeps target images painted, one pixel at a time",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", env("PLACEBOT_CONFIG", ""), "YAML config file")
	root.PersistentFlags().StringVar(&opts.Target, "target", "", "root target descriptor (overrides config and PLACEBOT_TARGET)")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "debug|info|warn|error (overrides config and PLACEBOT_LOG_LEVEL)")

	root.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		var coded *exitError
		if errors.As(err, &coded) {
			if coded.Err != nil {
				slog.Error("placebot: exiting", "error", coded.Err)
			}
			os.Exit(coded.Code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print placebot version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "placebot %s (%s)\n", version, commit)
			return err
		},
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
