// Command archivetool inspects ar archives and assembles tar layers from files and other
// tar archives.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	var logger *zap.Logger

	app := &cli.Command{
		Name:  "archivetool",
		Usage: "Read ar archives and build tar layers",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log Level (debug, info, warn, error, fatal)",
				Action: func(ctx context.Context, command *cli.Command, s string) error {
					if _, err := zapcore.ParseLevel(s); err != nil {
						return fmt.Errorf("invalid log level %s: %w", s, err)
					}
					return nil
				},
			},
		},
		Commands: []*cli.Command{
			arCommand,
			tarCommand,
			versionCommand,
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			var err error
			logger, err = createLogger(command.Bool("debug"), command.String("log-level"))
			if err != nil {
				return nil, err
			}
			return withLogger(ctx, logger), nil
		},
		ExitErrHandler: func(ctx context.Context, command *cli.Command, err error) {
			if err == nil {
				return
			}
			if logger != nil {
				logger.Fatal("failed to run application", zap.Error(err))
			}
			log.Fatal(fmt.Errorf("failed to run application: %w", err))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()

	if err := app.Run(ctx, os.Args); err != nil {
		os.Exit(1)
	}
}
