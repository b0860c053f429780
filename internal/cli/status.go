// Package cli implements the treestat subcommands on top of the scan,
// index and statuscache layers. Progress and warnings go to stderr,
// results to stdout, so scripted callers can consume the output.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/treestat/treestat/internal/config"
	"github.com/treestat/treestat/internal/index"
	"github.com/treestat/treestat/internal/log"
	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/render"
	"github.com/treestat/treestat/internal/scan"
	"github.com/treestat/treestat/internal/statuscache"
	"github.com/treestat/treestat/internal/utils"
)

// StatusOptions carries one status invocation.
type StatusOptions struct {
	// Report is the reporting request: modes, scope, toggles.
	Report models.ReportingConfig
	// Format and Color select the renderer. An empty format falls back
	// to the configured one.
	Format string
	Color  bool
	// UseCache attempts to serve the report from the cache artifact
	// before scanning.
	UseCache bool
	// WriteCache rewrites the artifact after a fresh scan.
	WriteCache bool
	// Wait bridges a stale cache when UseCache is set.
	Wait statuscache.WaitPolicy
	// Tracer observes reuse decisions and wait polls; nil disables.
	Tracer statuscache.Tracer
}

// RunStatus reports working-tree status for root. With UseCache set it
// tries the cache artifact first and falls back to a fresh scan when
// the artifact cannot serve the request; under the fail wait policy an
// unusable artifact is an error instead.
func RunStatus(ctx context.Context, cfg *config.AppConfig, root string, opts StatusOptions, stdout, stderr io.Writer) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	format := opts.Format
	if format == "" {
		format = cfg.Format
	}
	renderer, err := render.ForFormat(format, cfg.Theme, opts.Color)
	if err != nil {
		return err
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = statuscache.NopTracer{}
	}

	if opts.UseCache {
		report, served, err := serveFromCache(ctx, cfg, absRoot, opts, renderer.NeedsConflictDetail(), tracer)
		if err != nil {
			return err
		}
		if served {
			return renderer.Render(stdout, report, opts.Report)
		}
	}

	report, err := freshReport(ctx, cfg, absRoot, opts, stderr)
	if err != nil {
		return err
	}
	return renderer.Render(stdout, report, opts.Report)
}

// serveFromCache decodes and validates the artifact. It returns
// served=false when the caller should fall back to a fresh scan, and an
// error only for hard failures.
func serveFromCache(ctx context.Context, cfg *config.AppConfig, root string, opts StatusOptions, needsDetail bool, tracer statuscache.Tracer) (*models.StatusReport, bool, error) {
	cachePath := cfg.CachePathFor(root)
	identity, err := index.ReadIdentity(index.DefaultPath(root))
	if err != nil {
		return nil, false, err
	}
	req := statuscache.Request{
		Config:              opts.Report,
		Root:                root,
		Identity:            identity,
		NeedsConflictDetail: needsDetail,
	}

	report, prov, rerr := statuscache.ReadFile(cachePath)
	if rerr != nil {
		var derr *statuscache.DecodeError
		switch {
		case errors.As(rerr, &derr):
			reason := statuscache.ReasonCorrupt
			detail := derr.Detail
			if derr.Kind == statuscache.DecodeVersionMismatch {
				reason = statuscache.ReasonVersionMismatch
				detail = fmt.Sprintf("version %d, want %d", derr.Got, derr.Want)
			}
			tracer.RecordDecision(statuscache.Reject(reason, detail))
			if opts.Wait.Mode == statuscache.WaitFail {
				return nil, false, rerr
			}
			log.Printf("status cache unusable (%s), scanning fresh", reason)
			return nil, false, nil
		case errors.Is(rerr, fs.ErrNotExist):
			if opts.Wait.Mode == statuscache.WaitFail {
				return nil, false, fmt.Errorf("wait policy is fail and no cache artifact exists at %s", cachePath)
			}
			log.Printf("no status cache at %s, scanning fresh", cachePath)
			return nil, false, nil
		default:
			return nil, false, rerr
		}
	}

	decision := statuscache.Evaluate(prov, report.HasConflicts, req)
	tracer.RecordDecision(decision)

	if decision.Rejected() {
		if opts.Wait.Mode == statuscache.WaitFail {
			if decision.Reason == statuscache.ReasonIndexStale {
				return nil, false, statuscache.ErrWaitExhausted
			}
			return nil, false, fmt.Errorf("cached report unusable: %s", decision)
		}
		if decision.Reason != statuscache.ReasonIndexStale {
			return nil, false, nil
		}

		// Staleness can be transient: a concurrent refresher may be about
		// to catch the artifact up to the live index. Poll the artifact's
		// recorded token per the wait policy.
		matched, werr := opts.Wait.Await(ctx, identity, func() (models.IndexIdentity, error) {
			_, p, err := statuscache.ReadFile(cachePath)
			if err != nil {
				return models.IndexIdentity{}, err
			}
			return p.Identity, nil
		}, tracer)
		if werr != nil {
			log.Printf("status cache poll failed: %v", werr)
			return nil, false, nil
		}
		if !matched {
			return nil, false, nil
		}

		report, prov, rerr = statuscache.ReadFile(cachePath)
		if rerr != nil {
			log.Printf("status cache vanished mid-wait: %v", rerr)
			return nil, false, nil
		}
		decision = statuscache.Evaluate(prov, report.HasConflicts, req)
		tracer.RecordDecision(decision)
		if decision.Rejected() {
			return nil, false, nil
		}
	}

	return report.WithEntries(statuscache.Refine(report.Entries, decision)), true, nil
}

// freshReport scans the tree and, when serialization is on, rewrites the
// cache artifact. An encode or write failure never discards the report;
// it degrades to a warning and the scan result is rendered anyway.
func freshReport(ctx context.Context, cfg *config.AppConfig, root string, opts StatusOptions, stderr io.Writer) (*models.StatusReport, error) {
	manifestPath := index.DefaultPath(root)
	// Token first, manifest second: if a writer swaps the manifest
	// mid-scan the artifact records the older token and validates as
	// stale, never as fresh.
	identity, err := index.ReadIdentity(manifestPath)
	if err != nil {
		return nil, err
	}
	ix, err := index.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	if ix == nil {
		return nil, fmt.Errorf("no index at %s, run \"treestat init\" first", manifestPath)
	}

	scanCfg := opts.Report
	writeCache := opts.WriteCache || cfg.AutoCache
	if writeCache {
		// Scan with the widest serializable untracked set so the artifact
		// can serve narrower queries later; the rendered report is
		// narrowed back down to the request below.
		if m, perr := models.ParseUntrackedMode(cfg.SerializeUntracked); perr == nil && m == models.UntrackedComplete {
			scanCfg.Untracked = models.UntrackedComplete
		}
	}

	report, err := newScanner(cfg, root).Scan(ctx, root, ix, scanCfg)
	if err != nil {
		return nil, err
	}

	if writeCache {
		prov := statuscache.Provenance{Identity: identity, Config: scanCfg, Root: root}
		if werr := statuscache.WriteFile(cfg.CachePathFor(root), report, prov); werr != nil {
			fmt.Fprintf(stderr, "warning: could not write status cache: %v\n", werr)
		}
	}

	if scanCfg.Untracked != opts.Report.Untracked {
		report = report.WithEntries(statuscache.NarrowUntracked(report.Entries, opts.Report.Untracked))
	}
	return report, nil
}

func newScanner(cfg *config.AppConfig, root string) *scan.Scanner {
	upstream := cfg.UpstreamIndex
	if upstream != "" {
		if p, err := utils.ExpandPath(upstream); err == nil {
			upstream = p
		}
	}
	return scan.New(scan.Options{
		IgnoreFile:    cfg.IgnoreFile,
		Workers:       cfg.Workers,
		MaxDiffChars:  cfg.MaxDiffChars,
		Blobs:         index.NewBlobStore(index.BlobDir(root)),
		UpstreamIndex: upstream,
	})
}
