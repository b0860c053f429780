package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/treestat/treestat/internal/config"
	"github.com/treestat/treestat/internal/index"
	"github.com/treestat/treestat/internal/log"
	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/monitor"
	"github.com/treestat/treestat/internal/scan"
	"github.com/treestat/treestat/internal/statuscache"
)

// RunInit records the initial baseline for a tree: every regular file
// that is not ignored goes into the manifest, with baseline content kept
// in the blob store for later diffing.
func RunInit(ctx context.Context, cfg *config.AppConfig, root, upstream string, force bool, out io.Writer) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	manifestPath := index.DefaultPath(absRoot)
	if !force {
		if _, err := os.Stat(manifestPath); err == nil {
			return fmt.Errorf("%s already exists (use --force to rebuild)", manifestPath)
		}
	}

	files, err := scan.CollectTree(ctx, absRoot, scan.CollectOptions{
		IgnoreFile:      cfg.IgnoreFile,
		Workers:         cfg.Workers,
		Blobs:           index.NewBlobStore(index.BlobDir(absRoot)),
		SkipNestedRoots: cfg.SkipNestedRoots,
	})
	if err != nil {
		return err
	}

	ix := index.New(cfg.Label)
	ix.Meta.Upstream = upstream
	ix.SetFiles(files)
	if err := ix.Save(manifestPath); err != nil {
		return err
	}

	fmt.Fprintf(out, "initialized %s: %d files tracked\n", manifestPath, len(ix.Files))
	return nil
}

// RunUpdate rebuilds the manifest from the current tree. Metadata and
// unresolved conflict stages carry over from the previous baseline;
// conflicts are cleared by merge tooling, not by reindexing.
func RunUpdate(ctx context.Context, cfg *config.AppConfig, root string, out io.Writer) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	manifestPath := index.DefaultPath(absRoot)
	prev, err := index.Load(manifestPath)
	if err != nil {
		return err
	}
	if prev == nil {
		return fmt.Errorf("no index at %s, run \"treestat init\" first", manifestPath)
	}

	files, err := scan.CollectTree(ctx, absRoot, scan.CollectOptions{
		IgnoreFile:      cfg.IgnoreFile,
		Workers:         cfg.Workers,
		Blobs:           index.NewBlobStore(index.BlobDir(absRoot)),
		SkipNestedRoots: cfg.SkipNestedRoots,
	})
	if err != nil {
		return err
	}

	ix := index.New(prev.Meta.Label)
	ix.Meta = prev.Meta
	ix.SetFiles(files)
	carried := 0
	for _, c := range prev.Conflicts() {
		ix.SetConflict(c.Path, c.Stages)
		carried++
	}
	if err := ix.Save(manifestPath); err != nil {
		return err
	}

	if carried > 0 {
		fmt.Fprintf(out, "updated %s: %d files tracked, %d conflicts carried\n", manifestPath, len(ix.Files), carried)
	} else {
		fmt.Fprintf(out, "updated %s: %d files tracked\n", manifestPath, len(ix.Files))
	}
	return nil
}

// RunCacheWrite scans the tree and rewrites the cache artifact without
// rendering a report. In this mode a failed write is an error; there is
// no report to salvage.
func RunCacheWrite(ctx context.Context, cfg *config.AppConfig, root string, report models.ReportingConfig, out io.Writer) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	summary, err := writeCacheArtifact(ctx, cfg, absRoot, report)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, summary)
	return nil
}

// RunCacheInfo decodes the artifact and prints its provenance alongside
// whether it still matches the live index.
func RunCacheInfo(cfg *config.AppConfig, root string, out io.Writer) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	cachePath := cfg.CachePathFor(absRoot)
	report, prov, err := statuscache.ReadFile(cachePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", cachePath, err)
	}
	identity, err := index.ReadIdentity(index.DefaultPath(absRoot))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "artifact:   %s\n", cachePath)
	fmt.Fprintf(out, "root:       %s\n", prov.Root)
	fmt.Fprintf(out, "generated:  %s\n", report.GeneratedAt.Format(time.RFC3339))
	if report.Branch != nil {
		fmt.Fprintf(out, "label:      %s\n", report.Branch.Label)
	}
	fmt.Fprintf(out, "identity:   %s\n", prov.Identity)
	fmt.Fprintf(out, "untracked:  %s\n", prov.Config.Untracked)
	fmt.Fprintf(out, "ignored:    %s\n", prov.Config.Ignored)
	if len(prov.Config.PathScope) > 0 {
		fmt.Fprintf(out, "scope:      %s\n", strings.Join(prov.Config.PathScope, " "))
	}
	fmt.Fprintf(out, "flags:      %s\n", describeFlags(prov.Config))
	fmt.Fprintf(out, "entries:    %d\n", len(report.Entries))
	fmt.Fprintf(out, "conflicts:  %s\n", yesNo(report.HasConflicts))

	freshness := "fresh"
	if identity != prov.Identity {
		freshness = "stale (index has changed)"
	}
	fmt.Fprintf(out, "freshness:  %s\n", freshness)
	return nil
}

// RunMonitor watches the tree and rewrites the cache artifact after each
// settled burst of changes. It blocks until ctx is cancelled.
func RunMonitor(ctx context.Context, cfg *config.AppConfig, root string, report models.ReportingConfig, out io.Writer) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	debounce := time.Duration(cfg.WatchDebounceMS) * time.Millisecond
	watch := monitor.NewWatchService(debounce, cfg.SkipNestedRoots, log.Printf)
	refresher := monitor.RefreshFunc(func(ctx context.Context) (string, error) {
		return writeCacheArtifact(ctx, cfg, absRoot, report)
	})

	fmt.Fprintf(out, "monitoring %s (debounce %s)\n", absRoot, watch.Debounce())
	return monitor.New(absRoot, watch, refresher, out, log.Printf).Run(ctx)
}

// writeCacheArtifact scans root with the configured serialization mode
// and atomically replaces the cache artifact. root must be absolute.
func writeCacheArtifact(ctx context.Context, cfg *config.AppConfig, root string, report models.ReportingConfig) (string, error) {
	manifestPath := index.DefaultPath(root)
	identity, err := index.ReadIdentity(manifestPath)
	if err != nil {
		return "", err
	}
	ix, err := index.Load(manifestPath)
	if err != nil {
		return "", err
	}
	if ix == nil {
		return "", fmt.Errorf("no index at %s, run \"treestat init\" first", manifestPath)
	}

	scanCfg := report
	if m, perr := models.ParseUntrackedMode(cfg.SerializeUntracked); perr == nil {
		scanCfg.Untracked = m
	}
	rep, err := newScanner(cfg, root).Scan(ctx, root, ix, scanCfg)
	if err != nil {
		return "", err
	}

	cachePath := cfg.CachePathFor(root)
	prov := statuscache.Provenance{Identity: identity, Config: scanCfg, Root: root}
	if err := statuscache.WriteFile(cachePath, rep, prov); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %s (%d entries)", cachePath, len(rep.Entries)), nil
}

func describeFlags(cfg models.ReportingConfig) string {
	var parts []string
	if cfg.Verbose {
		parts = append(parts, "verbose")
	}
	if cfg.WantAheadBehind {
		parts = append(parts, "ahead-behind")
	}
	if cfg.SkipNestedRoots {
		parts = append(parts, "skip-nested-roots")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
