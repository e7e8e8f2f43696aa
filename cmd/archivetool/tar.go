package main

import (
	"archive/tar"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/please-build/archive/ar"
	"github.com/please-build/archive/tarfile"
)

var tarCommand = &cli.Command{
	Name:  "tar",
	Usage: "Build tar layers",
	Commands: []*cli.Command{
		tarBuildCommand,
	},
}

var tarBuildCommand = &cli.Command{
	Name:  "build",
	Usage: "Build an uncompressed tar layer from files, directories, links and other archives",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Usage:    "The tar file to write",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "dir",
			Usage: "Add an empty directory entry",
		},
		&cli.StringSliceFlag{
			Name:  "file",
			Usage: "Add a file as name=path",
		},
		&cli.StringSliceFlag{
			Name:  "link",
			Usage: "Add a symlink as name=target",
		},
		&cli.StringSliceFlag{
			Name:  "tar",
			Usage: "Merge the content of a tar archive (.tar, .tar.gz, .tgz, .tar.bz2, .tar.xz, .tar.lzma)",
		},
		&cli.StringSliceFlag{
			Name:  "deb",
			Usage: "Merge the data archive of a Debian package",
		},
		&cli.IntFlag{
			Name:  "root-uid",
			Usage: "Owner id of merged entries to rewrite to root",
		},
		&cli.IntFlag{
			Name:  "root-gid",
			Usage: "Group id of merged entries to rewrite to root",
		},
		&cli.BoolFlag{
			Name:  "numeric",
			Usage: "Drop owner names of merged entries",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "Skip merged entries whose name starts with this prefix",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)
		output := command.String("output")

		w, err := tarfile.Create(output, tarfile.WithLogger(logger.Named("tarfile")))
		if err != nil {
			return err
		}
		if err := buildLayer(command, w); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}

		logger.Info("wrote layer", zap.String("output", output))
		return nil
	},
}

func buildLayer(command *cli.Command, w *tarfile.Writer) error {
	for _, dir := range command.StringSlice("dir") {
		if err := w.AddEntry(tarfile.Entry{Name: dir, Kind: tar.TypeDir}); err != nil {
			return err
		}
	}
	for _, pair := range command.StringSlice("file") {
		name, path, err := splitPair(pair)
		if err != nil {
			return err
		}
		if err := w.AddEntry(tarfile.Entry{Name: name, File: path}); err != nil {
			return err
		}
	}
	for _, pair := range command.StringSlice("link") {
		name, target, err := splitPair(pair)
		if err != nil {
			return err
		}
		if err := w.AddEntry(tarfile.Entry{Name: name, Kind: tar.TypeSymlink, Link: target}); err != nil {
			return err
		}
	}

	opts := mergeOptions(command)
	for _, src := range command.StringSlice("tar") {
		if err := w.MergeArchive(src, opts...); err != nil {
			return err
		}
	}
	for _, deb := range command.StringSlice("deb") {
		if err := mergeDeb(w, deb, opts); err != nil {
			return err
		}
	}
	return nil
}

func mergeOptions(command *cli.Command) []tarfile.MergeOption {
	var opts []tarfile.MergeOption
	if command.IsSet("root-uid") {
		opts = append(opts, tarfile.WithRootUID(int(command.Int("root-uid"))))
	}
	if command.IsSet("root-gid") {
		opts = append(opts, tarfile.WithRootGID(int(command.Int("root-gid"))))
	}
	if command.Bool("numeric") {
		opts = append(opts, tarfile.WithNumericOwners())
	}
	if excludes := command.StringSlice("exclude"); len(excludes) > 0 {
		opts = append(opts, tarfile.WithNameFilter(func(name string) bool {
			name = strings.TrimPrefix(name, "./")
			return lo.NoneBy(excludes, func(prefix string) bool {
				return strings.HasPrefix(name, prefix)
			})
		}))
	}
	return opts
}

// mergeDeb merges the data.tar.* member of a Debian package.
func mergeDeb(w *tarfile.Writer, deb string, opts []tarfile.MergeOption) error {
	var data *ar.Entry
	err := ar.Walk(deb, func(e *ar.Entry) error {
		if strings.HasPrefix(e.Name, "data.") {
			data = e
			return ar.ErrStop
		}
		return nil
	})
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%s has no data archive", deb)
	}

	// MergeArchive picks the decompressor from the extension, so keep the member's name.
	dir, err := os.MkdirTemp("", "archivetool")
	if err != nil {
		return fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(data.Name))
	if err := os.WriteFile(path, data.Data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", data.Name, err)
	}
	return w.MergeArchive(path, opts...)
}

func splitPair(pair string) (string, string, error) {
	name, value, ok := strings.Cut(pair, "=")
	if !ok || name == "" || value == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", pair)
	}
	return name, value, nil
}
