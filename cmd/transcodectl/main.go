// Package main provides transcodectl, an operator CLI for inspecting and
// managing the on-demand transcode cache without going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/soundvault/soundvault-server/internal/config"
	"github.com/soundvault/soundvault-server/internal/logger"
	"github.com/soundvault/soundvault-server/internal/transcode"
)

func main() {
	ctx := context.Background()

	appl := &cli.Command{
		Name:  "transcodectl",
		Usage: "Inspect and manage the audio transcode cache",
		Commands: []*cli.Command{
			cacheCommand(),
			invalidateCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "transcodectl: %v\n", err)
		os.Exit(1)
	}
}

// openFacade loads the server's configuration and starts a transcode facade
// against the same cache directory the running server uses. The caller is
// responsible for calling Shutdown.
func openFacade(ctx context.Context) (*transcode.Facade, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})

	opts := transcode.DefaultOptions(cfg.Transcode.CachePath)
	if cfg.Transcode.MaxCacheSizeBytes > 0 {
		opts.MaxCacheSizeBytes = uint64(cfg.Transcode.MaxCacheSizeBytes)
	}
	if cfg.Transcode.FFmpegPath != "" {
		opts.ConverterPath = cfg.Transcode.FFmpegPath
	}
	if cfg.Transcode.FFprobePath != "" {
		opts.ProberPath = cfg.Transcode.FFprobePath
	}

	facade, err := transcode.NewFacade(opts, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("construct transcode facade: %w", err)
	}

	if err := facade.Start(ctx); err != nil {
		return nil, fmt.Errorf("start transcode facade: %w", err)
	}

	return facade, nil
}
