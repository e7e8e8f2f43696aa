package main

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/urfave/cli/v3"
)

// Build information populated at init() from debug.ReadBuildInfo().
var (
	Version   = "unknown"
	GoVersion = "unknown"
	Commit    = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	Version = info.Main.Version
	GoVersion = info.GoVersion
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			Commit = setting.Value
		}
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print version information",
	Action: func(ctx context.Context, command *cli.Command) error {
		fmt.Printf("version: %s\n", Version)
		fmt.Printf("go: %s\n", GoVersion)
		if Commit != "unknown" {
			fmt.Printf("commit: %s\n", Commit)
		}
		return nil
	},
}
