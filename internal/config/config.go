// Package config loads application and per-tree configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/treestat/treestat/internal/ignore"
	"github.com/treestat/treestat/internal/index"
	"github.com/treestat/treestat/internal/log"
	"github.com/treestat/treestat/internal/utils"
)

// AppConfig defines the global treestat configuration options. String
// fields holding enum-ish values keep the CLI spelling; they are parsed
// into typed modes where they are used.
type AppConfig struct {
	UntrackedFiles     string // no|normal|all|complete
	Ignored            string // no|matching
	Format             string // long|porcelain
	Color              string // auto|always|never
	Theme              string
	CachePath          string // default: <root>/.treestat/status.cache
	AutoCache          bool   // rewrite the cache after every fresh scan
	SerializeUntracked string // untracked mode recorded into caches
	Wait               string // no|fail|block|<N>
	PollIntervalMS     int
	MaxDiffChars       int
	Workers            int
	IgnoreFile         string
	SkipNestedRoots    bool
	UpstreamIndex      string
	Label              string
	DebugLog           string
	Trace              bool
	WatchDebounceMS    int
	ShowIcons          bool // render Nerd Font icons in the watch screen
}

// DefaultConfig returns the default configuration values.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		UntrackedFiles:     "normal",
		Ignored:            "no",
		Format:             "long",
		Color:              "auto",
		SerializeUntracked: "complete",
		Wait:               "no",
		PollIntervalMS:     100,
		MaxDiffChars:       200000,
		Workers:            8,
		IgnoreFile:         ignore.DefaultFilename,
		Label:              "main",
		WatchDebounceMS:    600,
		ShowIcons:          true,
	}
}

// CachePathFor resolves the cache artifact path for a tree root.
func (c *AppConfig) CachePathFor(root string) string {
	if c.CachePath != "" {
		return c.CachePath
	}
	return filepath.Join(root, index.DirName, "status.cache")
}

func coerceBool(value any, defaultVal bool) bool {
	if value == nil {
		return defaultVal
	}
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultVal
}

func coerceInt(value any, defaultVal int) int {
	if value == nil {
		return defaultVal
	}
	switch v := value.(type) {
	case bool:
		return defaultVal
	case int:
		return v
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return defaultVal
		}
		if i, err := strconv.Atoi(text); err == nil {
			return i
		}
	}
	return defaultVal
}

func takeString(data map[string]any, key string, dst *string) {
	if v, ok := data[key].(string); ok {
		v = strings.TrimSpace(v)
		if v != "" {
			*dst = v
		}
	}
}

func takeEnum(data map[string]any, key string, dst *string, allowed ...string) {
	v, ok := data[key].(string)
	if !ok {
		return
	}
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			*dst = v
			return
		}
	}
}

// parseConfig folds recognized keys from data onto cfg. Unknown keys and
// malformed values are skipped, keeping whatever cfg already holds.
func parseConfig(cfg *AppConfig, data map[string]any) {
	takeEnum(data, "untracked_files", &cfg.UntrackedFiles, "no", "normal", "all", "complete")
	takeEnum(data, "ignored", &cfg.Ignored, "no", "matching")
	takeEnum(data, "format", &cfg.Format, "long", "porcelain")
	takeEnum(data, "color", &cfg.Color, "auto", "always", "never")
	takeEnum(data, "serialize_untracked", &cfg.SerializeUntracked, "no", "normal", "all", "complete")
	takeString(data, "theme", &cfg.Theme)
	takeString(data, "cache_path", &cfg.CachePath)
	takeString(data, "wait", &cfg.Wait)
	takeString(data, "ignore_file", &cfg.IgnoreFile)
	takeString(data, "upstream_index", &cfg.UpstreamIndex)
	takeString(data, "label", &cfg.Label)
	takeString(data, "debug_log", &cfg.DebugLog)

	cfg.AutoCache = coerceBool(data["auto_cache"], cfg.AutoCache)
	cfg.SkipNestedRoots = coerceBool(data["skip_nested_roots"], cfg.SkipNestedRoots)
	cfg.Trace = coerceBool(data["trace"], cfg.Trace)
	cfg.ShowIcons = coerceBool(data["show_icons"], cfg.ShowIcons)
	cfg.PollIntervalMS = coerceInt(data["poll_interval_ms"], cfg.PollIntervalMS)
	cfg.MaxDiffChars = coerceInt(data["max_diff_chars"], cfg.MaxDiffChars)
	cfg.Workers = coerceInt(data["workers"], cfg.Workers)
	cfg.WatchDebounceMS = coerceInt(data["watch_debounce_ms"], cfg.WatchDebounceMS)

	if cfg.PollIntervalMS < 0 {
		cfg.PollIntervalMS = 0
	}
	if cfg.MaxDiffChars < 0 {
		cfg.MaxDiffChars = 0
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.WatchDebounceMS < 0 {
		cfg.WatchDebounceMS = 0
	}
}

func getConfigDir() string {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

// LoadConfig reads the application configuration from a YAML file. An
// explicit path must reside inside the treestat config directory; with
// no path, config.yaml then config.yml are tried. A file that fails to
// parse yields the defaults rather than an error.
func LoadConfig(configPath string) (*AppConfig, error) {
	configBase := filepath.Clean(filepath.Join(getConfigDir(), "treestat"))

	var paths []string
	if configPath != "" {
		expanded, err := utils.ExpandPath(configPath)
		if err != nil {
			return DefaultConfig(), err
		}
		absPath, err := filepath.Abs(expanded)
		if err != nil {
			return DefaultConfig(), err
		}
		if !isPathWithin(configBase, absPath) {
			return DefaultConfig(), fmt.Errorf("config path must reside inside %s", configBase)
		}
		paths = []string{absPath}
	} else {
		paths = []string{
			filepath.Join(configBase, "config.yaml"),
			filepath.Join(configBase, "config.yml"),
		}
	}

	cfg := DefaultConfig()
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		// #nosec G304 -- path is constrained to the config directory after validation
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var yamlData map[string]any
		if err := yaml.Unmarshal(data, &yamlData); err != nil {
			return DefaultConfig(), nil
		}
		parseConfig(cfg, yamlData)
		break
	}
	return cfg, nil
}

// MergeTreeConfig folds <root>/.treestat/config.yaml onto cfg, letting a
// tree pin its label, upstream manifest, ignore file and cache behavior.
// A missing or unparseable file leaves cfg as it was.
func MergeTreeConfig(cfg *AppConfig, root string) {
	path := filepath.Join(root, index.DirName, "config.yaml")
	data, err := os.ReadFile(path) // #nosec G304 -- path is derived from the tree root
	if err != nil {
		return
	}
	var yamlData map[string]any
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		log.Printf("tree config %s unparseable: %v", path, err)
		return
	}
	parseConfig(cfg, yamlData)
}

func isPathWithin(base, target string) bool {
	base = filepath.Clean(base)
	target = filepath.Clean(target)

	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}
