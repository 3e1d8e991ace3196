package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

func invalidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "invalidate",
		Usage:     "Drop every cached preset for a song so the next playback re-transcodes it",
		ArgsUsage: "<song-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			songID := cmd.Args().First()
			if songID == "" {
				return errors.New("invalidate requires a song id argument")
			}

			facade, err := openFacade(ctx)
			if err != nil {
				return err
			}
			defer facade.Shutdown() //nolint:errcheck // best-effort flush after invalidation

			if err := facade.InvalidateSong(songID); err != nil {
				return fmt.Errorf("invalidate song %s: %w", songID, err)
			}

			fmt.Printf("invalidated cached transcodes for song %s\n", songID)
			return nil
		},
	}
}
