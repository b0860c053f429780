// Package bootstrap assembles the treestat command tree: global flags,
// subcommands and the glue between CLI flags and configuration.
package bootstrap

import (
	urfavecli "github.com/urfave/cli/v3"
)

// globalFlags returns all global flags for the application.
// Note: --version is provided automatically by urfave/cli via Command.Version
func globalFlags() []urfavecli.Flag {
	return []urfavecli.Flag{
		&urfavecli.StringFlag{
			Name:    "root",
			Aliases: []string{"R"},
			Usage:   "Tree root to operate on",
		},
		&urfavecli.StringFlag{
			Name:  "config-file",
			Usage: "Path to configuration file",
		},
		&urfavecli.StringFlag{
			Name:    "untracked",
			Aliases: []string{"u"},
			Usage:   "Untracked reporting mode: no, normal, all or complete",
		},
		&urfavecli.StringFlag{
			Name:  "ignored",
			Usage: "Ignored reporting mode: no or matching",
		},
		&urfavecli.BoolFlag{
			Name:  "verbose",
			Usage: "Include unified diffs for modified files",
		},
		&urfavecli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: long or porcelain",
		},
		&urfavecli.StringFlag{
			Name:  "color",
			Usage: "Color output: auto, always or never",
		},
		&urfavecli.StringFlag{
			Name:    "theme",
			Aliases: []string{"t"},
			Usage:   "Watch screen theme",
		},
		&urfavecli.StringSliceFlag{
			Name:    "scope",
			Aliases: []string{"s"},
			Usage:   "Limit the report to a directory prefix (repeatable)",
		},
		&urfavecli.StringFlag{
			Name:    "wait",
			Aliases: []string{"w"},
			Usage:   "Stale cache wait policy: no, fail, block or a poll count",
		},
		&urfavecli.BoolFlag{
			Name:  "ahead-behind",
			Usage: "Compute ahead/behind against the upstream manifest",
		},
		&urfavecli.BoolFlag{
			Name:  "skip-nested-roots",
			Usage: "Skip directories carrying their own manifest",
		},
		&urfavecli.BoolFlag{
			Name:  "no-cache",
			Usage: "Always scan, ignoring the status cache",
		},
		&urfavecli.BoolFlag{
			Name:  "auto-cache",
			Usage: "Rewrite the status cache after every fresh scan",
		},
		&urfavecli.StringFlag{
			Name:  "cache-path",
			Usage: "Status cache artifact path (default <root>/.treestat/status.cache)",
		},
		&urfavecli.BoolFlag{
			Name:  "trace",
			Usage: "Trace cache reuse decisions to stderr",
		},
		&urfavecli.StringFlag{
			Name:  "debug-log",
			Usage: "Path to debug log file",
		},
	}
}
