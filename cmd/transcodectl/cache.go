package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the transcode cache",
		Commands: []*cli.Command{
			{
				Name:  "size",
				Usage: "Print the current on-disk cache size in bytes",
				Action: func(ctx context.Context, _ *cli.Command) error {
					facade, err := openFacade(ctx)
					if err != nil {
						return err
					}
					defer facade.Shutdown() //nolint:errcheck // best-effort flush on a read-only command

					fmt.Printf("%d\n", facade.CacheSize())
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every cached transcode and reset the index",
				Action: func(ctx context.Context, _ *cli.Command) error {
					facade, err := openFacade(ctx)
					if err != nil {
						return err
					}
					defer facade.Shutdown() //nolint:errcheck // best-effort flush after clearing

					if err := facade.ClearCache(); err != nil {
						return fmt.Errorf("clear cache: %w", err)
					}

					fmt.Println("cache cleared")
					return nil
				},
			},
		},
	}
}
