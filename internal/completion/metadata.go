package completion

import "github.com/treestat/treestat/internal/render"

// FlagInfo contains metadata about a command-line flag for completion generation.
type FlagInfo struct {
	Name        string   // Flag name without dashes
	Description string   // Human-readable description
	HasValue    bool     // true for string flags, false for bool flags
	ValueHint   string   // Hint for value type (e.g., "DIR", "MODE")
	Values      []string // Enumerated values for completion (e.g., theme names)
}

// CommandInfo describes a subcommand for completion generation.
type CommandInfo struct {
	Name        string
	Description string
}

// GetFlags returns metadata for all treestat global flags.
// This is the single source of truth for shell completion generation.
func GetFlags() []FlagInfo {
	return []FlagInfo{
		{
			Name:        "root",
			Description: "Tree root to operate on",
			HasValue:    true,
			ValueHint:   "DIR",
		},
		{
			Name:        "config-file",
			Description: "Path to configuration file",
			HasValue:    true,
			ValueHint:   "FILE",
		},
		{
			Name:        "untracked",
			Description: "Untracked reporting mode",
			HasValue:    true,
			ValueHint:   "MODE",
			Values:      []string{"no", "normal", "all", "complete"},
		},
		{
			Name:        "ignored",
			Description: "Ignored reporting mode",
			HasValue:    true,
			ValueHint:   "MODE",
			Values:      []string{"no", "matching"},
		},
		{
			Name:        "format",
			Description: "Output format",
			HasValue:    true,
			ValueHint:   "FORMAT",
			Values:      []string{"long", "porcelain"},
		},
		{
			Name:        "color",
			Description: "Color output",
			HasValue:    true,
			ValueHint:   "WHEN",
			Values:      []string{"auto", "always", "never"},
		},
		{
			Name:        "theme",
			Description: "Watch screen theme",
			HasValue:    true,
			ValueHint:   "NAME",
			Values:      render.AvailableThemes(),
		},
		{
			Name:        "scope",
			Description: "Limit the report to a directory prefix (repeatable)",
			HasValue:    true,
			ValueHint:   "DIR",
		},
		{
			Name:        "wait",
			Description: "Stale cache wait policy",
			HasValue:    true,
			ValueHint:   "POLICY",
			Values:      []string{"no", "fail", "block"},
		},
		{
			Name:        "verbose",
			Description: "Include unified diffs for modified files",
			HasValue:    false,
		},
		{
			Name:        "ahead-behind",
			Description: "Compute ahead/behind against the upstream manifest",
			HasValue:    false,
		},
		{
			Name:        "skip-nested-roots",
			Description: "Skip directories carrying their own manifest",
			HasValue:    false,
		},
		{
			Name:        "no-cache",
			Description: "Always scan, ignoring the status cache",
			HasValue:    false,
		},
		{
			Name:        "auto-cache",
			Description: "Rewrite the status cache after every fresh scan",
			HasValue:    false,
		},
		{
			Name:        "cache-path",
			Description: "Status cache artifact path",
			HasValue:    true,
			ValueHint:   "PATH",
		},
		{
			Name:        "trace",
			Description: "Trace cache reuse decisions to stderr",
			HasValue:    false,
		},
		{
			Name:        "debug-log",
			Description: "Path to debug log file",
			HasValue:    true,
			ValueHint:   "PATH",
		},
	}
}

// GetCommands returns metadata for all treestat subcommands.
func GetCommands() []CommandInfo {
	return []CommandInfo{
		{Name: "init", Description: "Create the manifest for a tree"},
		{Name: "update", Description: "Refresh the manifest from the working tree"},
		{Name: "status", Description: "Report working tree status"},
		{Name: "cache", Description: "Inspect or rewrite the status cache"},
		{Name: "monitor", Description: "Watch the tree and keep the cache fresh"},
		{Name: "watch", Description: "Interactive live status screen"},
		{Name: "completion", Description: "Generate shell completion scripts"},
	}
}
