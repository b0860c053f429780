package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	urfavecli "github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/treestat/treestat/internal/buildinfo"
	"github.com/treestat/treestat/internal/cli"
	"github.com/treestat/treestat/internal/config"
	"github.com/treestat/treestat/internal/log"
	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/statuscache"
	"github.com/treestat/treestat/internal/trace"
	"github.com/treestat/treestat/internal/utils"
)

// NewRootCommand assembles the treestat command tree. The bare command
// reports status, so `treestat` and `treestat status` are equivalent.
func NewRootCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:                  "treestat",
		Usage:                 "Track and report working tree status against a manifest",
		Version:               buildinfo.Short(),
		EnableShellCompletion: true,
		Flags:                 globalFlags(),
		Commands: []*urfavecli.Command{
			initCommand(),
			updateCommand(),
			statusCommand(),
			cacheCommand(),
			monitorCommand(),
			watchCommand(),
			completionCommand(),
		},
		Action: runStatus,
	}
}

// loadCLIConfig loads configuration for a command invocation: the YAML
// config file, then per-tree overrides, then flag overrides. It also
// resolves the tree root and returns it absolute.
func loadCLIConfig(cmd *urfavecli.Command) (*config.AppConfig, string, error) {
	setupDebugLog(cmd.String("debug-log"))

	cfg, err := config.LoadConfig(cmd.String("config-file"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	root, err := resolveRoot(cmd.String("root"))
	if err != nil {
		return nil, "", err
	}
	config.MergeTreeConfig(cfg, root)

	applyFlagOverrides(cfg, cmd)

	// A debug log configured in a file rather than on the command line is
	// opened late; without one, buffered records are dropped.
	if cmd.String("debug-log") == "" {
		if cfg.DebugLog != "" {
			setupDebugLog(cfg.DebugLog)
		} else {
			_ = log.SetFile("")
		}
	}

	return cfg, root, nil
}

func setupDebugLog(path string) {
	if path == "" {
		return
	}
	if expanded, err := utils.ExpandPath(path); err == nil {
		path = expanded
	}
	if err := log.SetFile(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening debug log file %q: %v\n", path, err)
	}
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	expanded, err := utils.ExpandPath(root)
	if err != nil {
		return "", fmt.Errorf("expanding root: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	return abs, nil
}

// applyFlagOverrides folds set flags onto cfg, highest precedence. String
// flags override when non-empty; bool flags only switch behavior on.
func applyFlagOverrides(cfg *config.AppConfig, cmd *urfavecli.Command) {
	if v := cmd.String("untracked"); v != "" {
		cfg.UntrackedFiles = v
	}
	if v := cmd.String("ignored"); v != "" {
		cfg.Ignored = v
	}
	if v := cmd.String("format"); v != "" {
		cfg.Format = v
	}
	if v := cmd.String("color"); v != "" {
		cfg.Color = v
	}
	if v := cmd.String("theme"); v != "" {
		cfg.Theme = v
	}
	if v := cmd.String("wait"); v != "" {
		cfg.Wait = v
	}
	if v := cmd.String("debug-log"); v != "" {
		cfg.DebugLog = v
	}
	if v := cmd.String("cache-path"); v != "" {
		if expanded, err := utils.ExpandPath(v); err == nil {
			v = expanded
		}
		cfg.CachePath = v
	}
	if cmd.Bool("skip-nested-roots") {
		cfg.SkipNestedRoots = true
	}
	if cmd.Bool("auto-cache") {
		cfg.AutoCache = true
	}
	if cmd.Bool("trace") {
		cfg.Trace = true
	}
}

// buildRequest turns the configured modes plus per-invocation flags into
// a reporting request.
func buildRequest(cfg *config.AppConfig, cmd *urfavecli.Command) (models.ReportingConfig, error) {
	untracked, err := models.ParseUntrackedMode(cfg.UntrackedFiles)
	if err != nil {
		return models.ReportingConfig{}, err
	}
	ignored, err := models.ParseIgnoredMode(cfg.Ignored)
	if err != nil {
		return models.ReportingConfig{}, err
	}
	return models.ReportingConfig{
		Untracked:       untracked,
		Ignored:         ignored,
		PathScope:       cmd.StringSlice("scope"),
		Verbose:         cmd.Bool("verbose"),
		WantAheadBehind: cmd.Bool("ahead-behind"),
		SkipNestedRoots: cfg.SkipNestedRoots,
	}, nil
}

// colorEnabled resolves the configured color mode against the output.
func colorEnabled(mode string, out *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	return term.IsTerminal(int(out.Fd()))
}

func waitPolicy(cfg *config.AppConfig) (statuscache.WaitPolicy, error) {
	policy, err := statuscache.ParseWaitPolicy(cfg.Wait)
	if err != nil {
		return statuscache.WaitPolicy{}, err
	}
	if cfg.PollIntervalMS > 0 {
		policy.Interval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	return policy, nil
}

// runStatus is the shared action behind `treestat` and `treestat status`.
func runStatus(ctx context.Context, cmd *urfavecli.Command) error {
	defer func() { _ = log.Close() }()

	cfg, root, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}
	req, err := buildRequest(cfg, cmd)
	if err != nil {
		return err
	}
	policy, err := waitPolicy(cfg)
	if err != nil {
		return err
	}

	opts := cli.StatusOptions{
		Report:     req,
		Format:     cfg.Format,
		Color:      colorEnabled(cfg.Color, os.Stdout),
		UseCache:   !cmd.Bool("no-cache"),
		WriteCache: cfg.AutoCache,
		Wait:       policy,
	}
	if cfg.Trace {
		opts.Tracer = trace.NewLogger(os.Stderr)
	}
	return cli.RunStatus(ctx, cfg, root, opts, os.Stdout, os.Stderr)
}
