// Package scan walks a working tree and classifies every path against the
// index manifest, producing the status report the cache layer persists.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/treestat/treestat/internal/ignore"
	"github.com/treestat/treestat/internal/index"
	"github.com/treestat/treestat/internal/log"
	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/utils"
)

const (
	defaultWorkers      = 8
	defaultMaxDiffChars = 200000
)

// Options tunes a Scanner.
type Options struct {
	// IgnoreFile overrides the rule file name, default .tsignore.
	IgnoreFile string
	// Workers bounds hash parallelism.
	Workers int
	// MaxDiffChars caps a single verbose diff.
	MaxDiffChars int
	// Blobs supplies baseline content for verbose diffs. Nil leaves
	// diffs with a baseline-unavailable note.
	Blobs *index.BlobStore
	// UpstreamIndex is the manifest path ahead/behind is computed against.
	UpstreamIndex string
}

// Scanner performs status scans. A Scanner is safe to reuse; each Scan
// builds its own walk state.
type Scanner struct {
	opts Options
}

// New returns a Scanner with defaults applied.
func New(opts Options) *Scanner {
	if opts.IgnoreFile == "" {
		opts.IgnoreFile = ignore.DefaultFilename
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxDiffChars <= 0 {
		opts.MaxDiffChars = defaultMaxDiffChars
	}
	return &Scanner{opts: opts}
}

// Scan classifies the working tree at root against ix. Entries come back
// sorted by path; for a fixed tree and config the result is deterministic.
func (s *Scanner) Scan(ctx context.Context, root string, ix *index.Index, cfg models.ReportingConfig) (*models.StatusReport, error) {
	if ix == nil {
		return nil, fmt.Errorf("no index manifest for %s", root)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &treeWalker{
		ctx:     ctx,
		absRoot: absRoot,
		ix:      ix,
		cfg:     cfg,
		matcher: ignore.NewMatcher(s.opts.IgnoreFile),
		seen:    make(map[string]bool),
	}
	if err := filepath.WalkDir(absRoot, w.visit); err != nil {
		return nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}
	w.sweepTracked()

	changed, err := s.compareCandidates(ctx, w.candidates, cfg.Verbose)
	if err != nil {
		return nil, err
	}

	entries := changed
	entries = append(entries, w.deleted...)
	entries = append(entries, w.conflictEntries()...)
	entries = append(entries, s.untrackedEntries(w, cfg)...)
	entries = append(entries, w.ignoredEntries()...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	report := &models.StatusReport{
		Root:         absRoot,
		GeneratedAt:  time.Now(),
		Entries:      entries,
		Branch:       s.branchSummary(ix, cfg),
		HasConflicts: len(ix.Conflicts()) > 0,
	}
	return report, nil
}

func (s *Scanner) branchSummary(ix *index.Index, cfg models.ReportingConfig) *models.BranchSummary {
	if ix.Meta.Label == "" && ix.Meta.Upstream == "" {
		return nil
	}
	br := &models.BranchSummary{Label: ix.Meta.Label, Upstream: ix.Meta.Upstream}
	if cfg.WantAheadBehind && s.opts.UpstreamIndex != "" {
		up, err := index.Load(s.opts.UpstreamIndex)
		if err != nil {
			log.Printf("upstream manifest %s unreadable: %v", s.opts.UpstreamIndex, err)
		} else if up != nil {
			br.Ahead, br.Behind = index.AheadBehind(ix, up)
			br.HasAheadBehind = true
		}
	}
	return br
}

// candidate is a tracked file whose stat no longer matches the manifest;
// content decides whether it is really modified.
type candidate struct {
	rel     string
	abs     string
	file    *index.File
	modeNow uint32
}

type treeWalker struct {
	ctx     context.Context
	absRoot string
	ix      *index.Index
	cfg     models.ReportingConfig
	matcher *ignore.Matcher

	seen        map[string]bool
	untracked   []string
	ignored     []string // files, plus directories with a trailing slash
	candidates  []candidate
	deleted     []models.StatusEntry
	nestedRoots []string
}

func (w *treeWalker) visit(p string, d fs.DirEntry, err error) error {
	if err != nil {
		return nil // unreadable entries are skipped, not fatal
	}
	select {
	case <-w.ctx.Done():
		return w.ctx.Err()
	default:
	}

	rel, ok := w.relative(p)
	if !ok {
		return nil
	}
	if d.IsDir() {
		return w.visitDir(p, rel)
	}
	return w.visitFile(rel, d)
}

func (w *treeWalker) relative(p string) (string, bool) {
	rel, err := filepath.Rel(w.absRoot, p)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *treeWalker) visitDir(abs, rel string) error {
	if rel == "." {
		return w.matcher.LoadDir(abs, "")
	}
	if path.Base(rel) == index.DirName {
		return filepath.SkipDir
	}
	if w.cfg.SkipNestedRoots && hasOwnRoot(abs) {
		w.nestedRoots = append(w.nestedRoots, rel)
		return filepath.SkipDir
	}
	if !w.scopeRelevant(rel) {
		return filepath.SkipDir
	}
	if w.matcher.Match(rel, true) {
		// Ignored directories are reported once and never descended
		// into, so rules inside them cannot re-include content.
		if w.cfg.Ignored == models.IgnoredMatching && utils.UnderAny(rel, w.cfg.PathScope) {
			w.ignored = append(w.ignored, rel+"/")
		}
		return filepath.SkipDir
	}
	return w.matcher.LoadDir(abs, rel)
}

func (w *treeWalker) visitFile(rel string, d fs.DirEntry) error {
	if !d.Type().IsRegular() {
		return nil // symlinks and special files are outside the model
	}
	inScope := utils.UnderAny(rel, w.cfg.PathScope)
	if f, ok := w.ix.Lookup(rel); ok {
		w.seen[rel] = true
		if f.Unmerged() || !inScope {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			// Vanished mid-walk; let the content compare settle it.
			w.candidates = append(w.candidates, candidate{rel: rel, abs: w.abs(rel), file: f, modeNow: f.Mode})
			return nil
		}
		mode := uint32(fi.Mode().Perm())
		if fi.Size() != f.Size || fi.ModTime().UnixNano() != f.MTimeNS || mode != f.Mode {
			w.candidates = append(w.candidates, candidate{rel: rel, abs: w.abs(rel), file: f, modeNow: mode})
		}
		return nil
	}
	if w.matcher.Match(rel, false) {
		if w.cfg.Ignored == models.IgnoredMatching && inScope {
			w.ignored = append(w.ignored, rel)
		}
		return nil
	}
	if inScope {
		w.untracked = append(w.untracked, rel)
	}
	return nil
}

func (w *treeWalker) abs(rel string) string {
	return filepath.Join(w.absRoot, filepath.FromSlash(rel))
}

// scopeRelevant reports whether a directory can contain in-scope paths:
// it is inside a scope prefix, or an ancestor of one.
func (w *treeWalker) scopeRelevant(relDir string) bool {
	if len(w.cfg.PathScope) == 0 {
		return true
	}
	for _, s := range w.cfg.PathScope {
		if utils.PathWithin(s, relDir) || utils.PathWithin(relDir, s) {
			return true
		}
	}
	return false
}

// sweepTracked settles tracked paths the walk never reached: deleted
// files, and files under ignored directories. Ignore rules do not apply
// to tracked content, so the latter still get compared.
func (w *treeWalker) sweepTracked() {
	for i := range w.ix.Files {
		f := &w.ix.Files[i]
		if f.Unmerged() || w.seen[f.Path] {
			continue
		}
		if !utils.UnderAny(f.Path, w.cfg.PathScope) {
			continue
		}
		if w.underNestedRoot(f.Path) {
			continue
		}
		abs := w.abs(f.Path)
		fi, err := os.Lstat(abs)
		if err != nil || !fi.Mode().IsRegular() {
			w.deleted = append(w.deleted, models.StatusEntry{
				Path:   f.Path,
				Kind:   models.KindDeleted,
				OldOID: f.OID,
				Mode:   f.Mode,
			})
			continue
		}
		mode := uint32(fi.Mode().Perm())
		if fi.Size() == f.Size && fi.ModTime().UnixNano() == f.MTimeNS && mode == f.Mode {
			continue
		}
		w.candidates = append(w.candidates, candidate{rel: f.Path, abs: abs, file: f, modeNow: mode})
	}
}

func (w *treeWalker) underNestedRoot(rel string) bool {
	for _, nr := range w.nestedRoots {
		if utils.PathWithin(nr, rel) {
			return true
		}
	}
	return false
}

func (w *treeWalker) conflictEntries() []models.StatusEntry {
	var out []models.StatusEntry
	for _, f := range w.ix.Conflicts() {
		if !utils.UnderAny(f.Path, w.cfg.PathScope) {
			continue
		}
		e := models.StatusEntry{Path: f.Path, Kind: models.KindUnmerged}
		for _, st := range f.Stages {
			if st.Stage >= 1 && st.Stage <= 3 {
				e.Stages[st.Stage-1] = &models.StageInfo{OID: st.OID, Mode: st.Mode}
			}
		}
		out = append(out, e)
	}
	return out
}

func (w *treeWalker) ignoredEntries() []models.StatusEntry {
	out := make([]models.StatusEntry, 0, len(w.ignored))
	for _, p := range w.ignored {
		out = append(out, models.StatusEntry{Path: p, Kind: models.KindIgnored})
	}
	return out
}

func hasOwnRoot(absDir string) bool {
	fi, err := os.Stat(filepath.Join(absDir, index.DirName))
	return err == nil && fi.IsDir()
}

// compareCandidates hashes candidates with bounded parallelism. Results
// land in per-index slots so output order never depends on scheduling.
func (s *Scanner) compareCandidates(ctx context.Context, cands []candidate, verbose bool) ([]models.StatusEntry, error) {
	results := make([]*models.StatusEntry, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, c := range cands {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			entry, err := s.compareOne(c, verbose)
			if err != nil {
				return err
			}
			results[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.StatusEntry, 0, len(results))
	for _, e := range results {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Scanner) compareOne(c candidate, verbose bool) (*models.StatusEntry, error) {
	if !verbose {
		sum, err := hashFile(c.abs)
		if err != nil {
			if os.IsNotExist(err) {
				return deletedEntry(c), nil
			}
			return nil, fmt.Errorf("read %s: %w", c.rel, err)
		}
		return s.changedEntry(c, sum, ""), nil
	}

	data, err := os.ReadFile(c.abs) // #nosec G304 -- path is rooted in the scanned tree
	if err != nil {
		if os.IsNotExist(err) {
			return deletedEntry(c), nil
		}
		return nil, fmt.Errorf("read %s: %w", c.rel, err)
	}
	entry := s.changedEntry(c, hashBytes(data), "")
	if entry != nil {
		entry.Diff = s.buildDiff(c.rel, c.file.OID, data)
	}
	return entry, nil
}

// changedEntry returns nil when the stat change turned out to be benign.
func (s *Scanner) changedEntry(c candidate, sum, diff string) *models.StatusEntry {
	if sum == c.file.OID && c.modeNow == c.file.Mode {
		return nil
	}
	return &models.StatusEntry{
		Path:   c.rel,
		Kind:   models.KindModified,
		OldOID: c.file.OID,
		NewOID: sum,
		Mode:   c.modeNow,
		Diff:   diff,
	}
}

func deletedEntry(c candidate) *models.StatusEntry {
	return &models.StatusEntry{Path: c.rel, Kind: models.KindDeleted, OldOID: c.file.OID, Mode: c.file.Mode}
}

func (s *Scanner) untrackedEntries(w *treeWalker, cfg models.ReportingConfig) []models.StatusEntry {
	if cfg.Untracked == models.UntrackedNone || len(w.untracked) == 0 {
		return nil
	}
	var markers []string
	if cfg.Untracked != models.UntrackedAll {
		markers = deriveUntrackedDirs(w.untracked, w.ix, cfg.PathScope)
	}
	return untrackedEntries(w.untracked, markers, cfg.Untracked)
}
