package bootstrap

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	urfavecli "github.com/urfave/cli/v3"

	"github.com/treestat/treestat/internal/app"
	"github.com/treestat/treestat/internal/cli"
	"github.com/treestat/treestat/internal/log"
)

// handleSubcommandCompletion checks if completion is being requested and
// outputs flags. Returns true if completion was handled.
func handleSubcommandCompletion(cmd *urfavecli.Command) bool {
	if !slices.Contains(os.Args, "--generate-shell-completion") {
		return false
	}
	outputSubcommandFlags(cmd)
	return true
}

// outputSubcommandFlags prints all visible flags for a subcommand in
// completion format.
func outputSubcommandFlags(cmd *urfavecli.Command) {
	for _, flag := range cmd.Flags {
		if bf, ok := flag.(*urfavecli.BoolFlag); ok && bf.Hidden {
			continue
		}
		if sf, ok := flag.(*urfavecli.StringFlag); ok && sf.Hidden {
			continue
		}
		name := flag.Names()[0]
		usage := ""
		if df, ok := flag.(urfavecli.DocGenerationFlag); ok {
			usage = df.GetUsage()
		}
		prefix := "--"
		if len(name) == 1 {
			prefix = "-"
		}
		if usage != "" {
			fmt.Printf("%s%s:%s\n", prefix, name, usage)
		} else {
			fmt.Printf("%s%s\n", prefix, name)
		}
	}
}

// subcommandShellComplete handles shell completion for subcommands,
// filtering flags on partial matches.
func subcommandShellComplete(_ context.Context, cmd *urfavecli.Command) {
	args := os.Args
	lastArg := ""
	if len(args) > 1 {
		lastArg = args[len(args)-2]
	}
	if lastArg != "--" && strings.HasPrefix(lastArg, "-") {
		outputSubcommandFlagsFiltered(cmd, lastArg)
		return
	}
	outputSubcommandFlags(cmd)
}

// outputSubcommandFlagsFiltered prints flags matching the given prefix.
func outputSubcommandFlagsFiltered(cmd *urfavecli.Command, prefix string) {
	for _, flag := range cmd.Flags {
		name := flag.Names()[0]
		usage := ""
		if df, ok := flag.(urfavecli.DocGenerationFlag); ok {
			usage = df.GetUsage()
		}
		flagPrefix := "--"
		if len(name) == 1 {
			flagPrefix = "-"
		}
		fullFlag := flagPrefix + name
		if !strings.HasPrefix(fullFlag, prefix) {
			continue
		}
		if usage != "" {
			fmt.Printf("%s:%s\n", fullFlag, usage)
		} else {
			fmt.Printf("%s\n", fullFlag)
		}
	}
}

// initCommand returns the init subcommand definition.
func initCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "init",
		Usage: "Create the manifest for a tree",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			if handleSubcommandCompletion(cmd) {
				return nil
			}
			defer func() { _ = log.Close() }()
			cfg, root, err := loadCLIConfig(cmd)
			if err != nil {
				return err
			}
			if v := cmd.String("label"); v != "" {
				cfg.Label = v
			}
			return cli.RunInit(ctx, cfg, root, cmd.String("upstream"), cmd.Bool("force"), os.Stdout)
		},
		ShellComplete: subcommandShellComplete,
		Flags: []urfavecli.Flag{
			&urfavecli.StringFlag{
				Name:  "label",
				Usage: "Label recorded in the manifest and the branch header",
			},
			&urfavecli.StringFlag{
				Name:  "upstream",
				Usage: "Upstream manifest path recorded for ahead/behind",
			},
			&urfavecli.BoolFlag{
				Name:  "force",
				Usage: "Rebuild an existing manifest",
			},
		},
	}
}

func updateCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "update",
		Usage: "Refresh the manifest from the working tree",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			if handleSubcommandCompletion(cmd) {
				return nil
			}
			defer func() { _ = log.Close() }()
			cfg, root, err := loadCLIConfig(cmd)
			if err != nil {
				return err
			}
			return cli.RunUpdate(ctx, cfg, root, os.Stdout)
		},
		ShellComplete: subcommandShellComplete,
	}
}

func statusCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "status",
		Usage: "Report working tree status",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			if handleSubcommandCompletion(cmd) {
				return nil
			}
			return runStatus(ctx, cmd)
		},
		ShellComplete: subcommandShellComplete,
	}
}

// cacheCommand returns the cache subcommand with its write and info
// children.
func cacheCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "cache",
		Usage: "Inspect or rewrite the status cache",
		Commands: []*urfavecli.Command{
			{
				Name:  "write",
				Usage: "Scan and serialize a status cache artifact",
				Action: func(ctx context.Context, cmd *urfavecli.Command) error {
					if handleSubcommandCompletion(cmd) {
						return nil
					}
					defer func() { _ = log.Close() }()
					cfg, root, err := loadCLIConfig(cmd)
					if err != nil {
						return err
					}
					req, err := buildRequest(cfg, cmd)
					if err != nil {
						return err
					}
					return cli.RunCacheWrite(ctx, cfg, root, req, os.Stdout)
				},
				ShellComplete: subcommandShellComplete,
			},
			{
				Name:  "info",
				Usage: "Describe the cache artifact and its provenance",
				Action: func(ctx context.Context, cmd *urfavecli.Command) error {
					if handleSubcommandCompletion(cmd) {
						return nil
					}
					defer func() { _ = log.Close() }()
					cfg, root, err := loadCLIConfig(cmd)
					if err != nil {
						return err
					}
					return cli.RunCacheInfo(cfg, root, os.Stdout)
				},
				ShellComplete: subcommandShellComplete,
			},
		},
	}
}

func monitorCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "monitor",
		Usage: "Watch the tree and keep the cache fresh",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			if handleSubcommandCompletion(cmd) {
				return nil
			}
			defer func() { _ = log.Close() }()
			cfg, root, err := loadCLIConfig(cmd)
			if err != nil {
				return err
			}
			req, err := buildRequest(cfg, cmd)
			if err != nil {
				return err
			}
			return cli.RunMonitor(ctx, cfg, root, req, os.Stdout)
		},
		ShellComplete: subcommandShellComplete,
	}
}

func watchCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "watch",
		Usage: "Interactive live status screen",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			if handleSubcommandCompletion(cmd) {
				return nil
			}
			defer func() { _ = log.Close() }()
			cfg, root, err := loadCLIConfig(cmd)
			if err != nil {
				return err
			}
			req, err := buildRequest(cfg, cmd)
			if err != nil {
				return err
			}
			return app.Run(ctx, cfg, root, req)
		},
		ShellComplete: subcommandShellComplete,
	}
}

// completionCommand returns the completion subcommand definition.
func completionCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "completion",
		Usage:     "Generate shell completion scripts",
		ArgsUsage: "<bash|zsh>",
		Action:    handleCompletion,
	}
}

// handleCompletion handles the completion subcommand.
func handleCompletion(_ context.Context, cmd *urfavecli.Command) error {
	if cmd.NArg() == 0 {
		return fmt.Errorf("usage: treestat completion <bash|zsh>")
	}
	switch shell := cmd.Args().First(); shell {
	case "bash":
		_, _ = os.Stdout.WriteString(bashCompletionScript())
	case "zsh":
		_, _ = os.Stdout.WriteString(zshCompletionScript())
	default:
		return fmt.Errorf("unsupported shell: %s (supported: bash, zsh)", shell)
	}
	return nil
}
