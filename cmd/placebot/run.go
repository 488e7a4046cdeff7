package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/placebot/journal"
	"github.com/hazyhaar/placebot/remote"
	"github.com/hazyhaar/placebot/status"
	"github.com/hazyhaar/placebot/traversal"
)

type runOptions struct {
	StatusAddr  string
	JournalPath string
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := runOptions{}
	command := &cobra.Command{
		Use:   "run",
		Short: "Run the traversal loop until interrupted or a fatal protocol error",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global, true)
			if err != nil {
				return err
			}
			if opts.StatusAddr != "" {
				cfg.Status.Addr = opts.StatusAddr
			}
			if opts.JournalPath != "" {
				cfg.Journal.Path = opts.JournalPath
			}
			logger := newLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			j, err := journal.Open(cfg.Journal.Path, journal.WithLogger(logger))
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			defer j.Close()

			deps := newCollaborators(cfg, logger)
			placer := remote.NewPlacer(deps.client, cfg.Username, cfg.Password)
			engine := traversal.New(traversal.Config{
				Root:           cfg.Target,
				IdleInterval:   cfg.Loop.IdleInterval,
				FailureBackoff: cfg.Loop.FailureBackoff,
				CanvasWidth:    cfg.Canvas.Width,
				CanvasHeight:   cfg.Canvas.Height,
			}, deps.resolver, deps.client, placer,
				traversal.WithLogger(logger),
				traversal.WithRecorder(j),
			)

			logger.Info("placebot: starting", "version", version, "target", cfg.Target,
				"user", cfg.Username, "journal", cfg.Journal.Path, "status_addr", cfg.Status.Addr)

			var srvDone chan error
			if cfg.Status.Addr != "" {
				srvDone = make(chan error, 1)
				srv := status.New(status.Config{
					Addr:         cfg.Status.Addr,
					User:         cfg.Status.User,
					PasswordHash: cfg.Status.PasswordHash,
					Root:         cfg.Target,
					Version:      version,
				}, engine, j, logger)
				go func() {
					err := srv.ListenAndServe(ctx)
					if err != nil {
						cancel()
					}
					srvDone <- err
				}()
			}

			err = engine.RunForever(ctx)
			cancel()
			if srvDone != nil {
				if serr := <-srvDone; serr != nil {
					return &exitError{Code: 1, Err: serr}
				}
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return &exitError{Code: 1, Err: err}
			}
			logger.Info("placebot: stopped")
			return nil
		},
	}
	command.Flags().StringVar(&opts.StatusAddr, "status-addr", "", "status server listen address (overrides config)")
	command.Flags().StringVar(&opts.JournalPath, "journal", "", "SQLite journal path (overrides config)")
	return command
}
