package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/please-build/archive/ar"
)

var arCommand = &cli.Command{
	Name:  "ar",
	Usage: "Inspect ar archives such as .deb packages",
	Commands: []*cli.Command{
		arListCommand,
		arExtractCommand,
	},
}

var arListCommand = &cli.Command{
	Name:  "list",
	Usage: "List the members of an ar archive",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "The ar archive to list",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		path := command.StringArg("archive")
		if path == "" {
			return fmt.Errorf("no archive provided")
		}

		return ar.Walk(path, func(e *ar.Entry) error {
			_, err := fmt.Fprintf(os.Stdout, "%s %5d/%-5d %10d %s %s\n",
				os.FileMode(e.Mode).Perm(), e.Uid, e.Gid, e.Size, e.ModTime.UTC().Format("2006-01-02 15:04:05"), e.Name)
			return err
		}, ar.WithLogger(getLogger(ctx).Named("ar")))
	},
}

var arExtractCommand = &cli.Command{
	Name:  "extract",
	Usage: "Write the data of one ar member to a file or stdout",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "The ar archive to read",
		},
		&cli.StringArg{
			Name:      "member",
			UsageText: "The member to extract, e.g. data.tar.xz",
		},
	},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "File to write the member to (default: stdout)",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)
		path := command.StringArg("archive")
		member := command.StringArg("member")
		if path == "" || member == "" {
			return fmt.Errorf("an archive and a member name are required")
		}

		var found *ar.Entry
		err := ar.Walk(path, func(e *ar.Entry) error {
			if e.Name == member {
				found = e
				return ar.ErrStop
			}
			return nil
		}, ar.WithLogger(logger.Named("ar")))
		if err != nil {
			return err
		}
		if found == nil {
			return fmt.Errorf("member %s not found in %s", member, path)
		}

		out := command.String("output")
		if out == "" {
			_, err := os.Stdout.Write(found.Data)
			return err
		}
		if err := os.WriteFile(out, found.Data, os.FileMode(found.Mode).Perm()|0200); err != nil {
			return fmt.Errorf("failed to write member: %w", err)
		}
		logger.Info("extracted member", zap.String("member", member), zap.String("output", out), zap.Int64("size", found.Size))
		return nil
	},
}
