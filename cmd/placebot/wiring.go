package main

import (
	"log/slog"
	"os"

	"github.com/hazyhaar/placebot/horosafe"
	"github.com/hazyhaar/placebot/internal/config"
	"github.com/hazyhaar/placebot/internal/fetch"
	"github.com/hazyhaar/placebot/remote"
	"github.com/hazyhaar/placebot/target"
)

// loadConfig reads the config file and applies flag overrides on top of the
// file and the environment.
func loadConfig(opts *globalOptions, needCredentials bool) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, &exitError{Code: 2, Err: err}
	}
	if opts.Target != "" {
		cfg.Target = opts.Target
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if err := cfg.Validate(needCredentials); err != nil {
		return nil, &exitError{Code: 2, Err: err}
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// collaborators are the network-facing pieces shared by run and check.
type collaborators struct {
	client   *remote.Client
	resolver *target.Resolver
}

func newCollaborators(cfg *config.Config, logger *slog.Logger) *collaborators {
	fc := fetch.Config{
		Timeout:   cfg.API.Timeout,
		MaxBytes:  cfg.API.MaxBytes,
		UserAgent: cfg.API.UserAgent,
	}
	if cfg.API.AllowPrivate {
		fc.URLValidator = horosafe.ValidateScheme
	}
	fetcher := fetch.New(fc)
	client := remote.NewClient(remote.Config{
		BaseURL:     cfg.API.BaseURL,
		LoginPath:   cfg.API.LoginPath,
		DrawPath:    cfg.API.DrawPath,
		BoardPath:   cfg.API.BoardPath,
		HeaderBytes: cfg.API.HeaderBytes,
	}, fetcher, logger)
	return &collaborators{
		client:   client,
		resolver: target.NewResolver(client, client, target.WithLogger(logger)),
	}
}
