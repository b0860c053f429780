package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treestat/treestat/internal/index"
	"github.com/treestat/treestat/internal/models"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	require.NoError(t, os.Chmod(abs, 0o644))
}

func touch(t *testing.T, root, rel string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(abs, later, later))
}

func buildIndex(t *testing.T, root string, blobs *index.BlobStore) *index.Index {
	t.Helper()
	files, err := CollectTree(context.Background(), root, CollectOptions{Blobs: blobs})
	require.NoError(t, err)
	ix := index.New("main")
	ix.SetFiles(files)
	return ix
}

func entryPaths(report *models.StatusReport) []string {
	out := make([]string, 0, len(report.Entries))
	for _, e := range report.Entries {
		out = append(out, e.Path)
	}
	return out
}

func entryKinds(report *models.StatusReport) map[string]models.EntryKind {
	out := make(map[string]models.EntryKind, len(report.Entries))
	for _, e := range report.Entries {
		out[e.Path] = e.Kind
	}
	return out
}

func TestScanCleanTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha\n")
	writeFile(t, root, "dir/b.txt", "beta\n")
	ix := buildIndex(t, root, nil)

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{})
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	assert.False(t, report.HasConflicts)
}

func TestScanClassifiesChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mod.txt", "one\n")
	writeFile(t, root, "gone.txt", "two\n")
	writeFile(t, root, "keep.txt", "three\n")
	ix := buildIndex(t, root, nil)

	writeFile(t, root, "mod.txt", "one more\n")
	require.NoError(t, os.Remove(filepath.Join(root, "gone.txt")))
	writeFile(t, root, "new.txt", "fresh\n")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{Untracked: models.UntrackedAll})
	require.NoError(t, err)

	kinds := entryKinds(report)
	assert.Equal(t, models.KindModified, kinds["mod.txt"])
	assert.Equal(t, models.KindDeleted, kinds["gone.txt"])
	assert.Equal(t, models.KindUntracked, kinds["new.txt"])
	assert.NotContains(t, kinds, "keep.txt")
	assert.Equal(t, []string{"gone.txt", "mod.txt", "new.txt"}, entryPaths(report))
}

func TestScanSameSizeContentChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "swap.txt", "aaaa\n")
	ix := buildIndex(t, root, nil)

	writeFile(t, root, "swap.txt", "bbbb\n")
	touch(t, root, "swap.txt")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{})
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, models.KindModified, report.Entries[0].Kind)
	assert.NotEqual(t, report.Entries[0].OldOID, report.Entries[0].NewOID)
}

func TestScanBenignTouchStaysQuiet(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "same.txt", "steady\n")
	ix := buildIndex(t, root, nil)

	touch(t, root, "same.txt")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{})
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
}

func TestScanModeOnlyChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "run.sh", "#!/bin/sh\n")
	ix := buildIndex(t, root, nil)

	require.NoError(t, os.Chmod(filepath.Join(root, "run.sh"), 0o755))

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{})
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	e := report.Entries[0]
	assert.Equal(t, models.KindModified, e.Kind)
	assert.Equal(t, uint32(0o755), e.Mode)
	assert.Equal(t, e.OldOID, e.NewOID)
}

func TestScanUntrackedModes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".tsignore", "*.ign\n")
	writeFile(t, root, "t.txt", "tracked\n")
	ix := buildIndex(t, root, nil)

	writeFile(t, root, "a.txt", "loose\n")
	writeFile(t, root, "dir/b.txt", "nested\n")
	writeFile(t, root, "c.ign", "invisible\n")

	sc := New(Options{})
	run := func(cfg models.ReportingConfig) []string {
		report, err := sc.Scan(context.Background(), root, ix, cfg)
		require.NoError(t, err)
		return entryPaths(report)
	}

	assert.Equal(t, []string{"a.txt", "dir/"},
		run(models.ReportingConfig{Untracked: models.UntrackedNormal}))
	assert.Equal(t, []string{"a.txt", "dir/b.txt"},
		run(models.ReportingConfig{Untracked: models.UntrackedAll}))
	assert.Equal(t, []string{"a.txt", "dir/", "dir/b.txt"},
		run(models.ReportingConfig{Untracked: models.UntrackedComplete}))
	assert.Equal(t, []string{"c.ign"},
		run(models.ReportingConfig{Untracked: models.UntrackedNone, Ignored: models.IgnoredMatching}))
}

func TestScanUntrackedDirCollapsesAtShallowestFreeAncestor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mixed/tracked.txt", "kept\n")
	ix := buildIndex(t, root, nil)

	writeFile(t, root, "mixed/fresh/deep/x.txt", "x\n")
	writeFile(t, root, "solo/y.txt", "y\n")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{Untracked: models.UntrackedNormal})
	require.NoError(t, err)
	// mixed/ holds tracked content, so the marker lands one level down.
	assert.Equal(t, []string{"mixed/fresh/", "solo/"}, entryPaths(report))
}

func TestScanScopeLimitsEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "in/file.txt", "scoped\n")
	writeFile(t, root, "out/file.txt", "beyond\n")
	ix := buildIndex(t, root, nil)

	writeFile(t, root, "in/file.txt", "scoped change\n")
	writeFile(t, root, "out/file.txt", "unscoped change\n")
	writeFile(t, root, "in/new.txt", "added\n")
	writeFile(t, root, "out/new.txt", "elsewhere\n")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{
		Untracked: models.UntrackedAll,
		PathScope: []string{"in"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"in/file.txt", "in/new.txt"}, entryPaths(report))
}

func TestScanScopedUntrackedMarkerStartsAtScope(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "top.txt", "anchor\n")
	ix := buildIndex(t, root, nil)

	writeFile(t, root, "area/sub/x.txt", "x\n")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{
		Untracked: models.UntrackedNormal,
		PathScope: []string{"area"},
	})
	require.NoError(t, err)
	// Nothing indexed under area, so the scope root itself collapses.
	assert.Equal(t, []string{"area/"}, entryPaths(report))
}

func TestScanIgnoredDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "build/cache.txt", "old\n")
	writeFile(t, root, "src.txt", "code\n")
	ix := buildIndex(t, root, nil)
	writeFile(t, root, ".tsignore", "build/\n")
	// The rule arrived after collection, so build/cache.txt is tracked;
	// rules never hide tracked content.
	_, tracked := ix.Lookup("build/cache.txt")
	require.True(t, tracked)

	writeFile(t, root, "build/cache.txt", "rebuilt output\n")
	writeFile(t, root, "build/junk.txt", "noise\n")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{
		Untracked: models.UntrackedAll,
		Ignored:   models.IgnoredMatching,
	})
	require.NoError(t, err)

	kinds := entryKinds(report)
	assert.Equal(t, models.KindModified, kinds["build/cache.txt"])
	assert.Equal(t, models.KindIgnored, kinds["build/"])
	assert.NotContains(t, kinds, "build/junk.txt")
}

func TestScanNestedRootSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "outer.txt", "outer\n")
	writeFile(t, root, "vendorized/inner.txt", "inner\n")
	ix := buildIndex(t, root, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendorized", index.DirName), 0o755))
	writeFile(t, root, "vendorized/extra.txt", "their file\n")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{
		Untracked:       models.UntrackedAll,
		SkipNestedRoots: true,
	})
	require.NoError(t, err)
	assert.Empty(t, report.Entries, "a subtree with its own manifest is not ours to report")

	report, err = New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{
		Untracked: models.UntrackedAll,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vendorized/extra.txt"}, entryPaths(report))
}

func TestScanConflicts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "clash.txt", "mine\n")
	writeFile(t, root, "calm.txt", "fine\n")
	ix := buildIndex(t, root, nil)
	ix.SetConflict("clash.txt", []index.StageEntry{
		{Stage: 1, OID: "base00", Mode: 0o644},
		{Stage: 2, OID: "ours00", Mode: 0o644},
		{Stage: 3, OID: "theirs", Mode: 0o644},
	})

	writeFile(t, root, "clash.txt", "merged by hand\n")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{})
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	e := report.Entries[0]
	assert.Equal(t, models.KindUnmerged, e.Kind)
	assert.Equal(t, uint8(0b111), e.StageMask())
	assert.True(t, report.HasConflicts)
}

func TestScanConflictFlagIsTreeWide(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "inside/a.txt", "a\n")
	writeFile(t, root, "outside/clash.txt", "b\n")
	ix := buildIndex(t, root, nil)
	ix.SetConflict("outside/clash.txt", []index.StageEntry{{Stage: 2, OID: "ours00", Mode: 0o644}})

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{
		PathScope: []string{"inside"},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	assert.True(t, report.HasConflicts, "the flag reflects the whole manifest, not the scope")
}

func TestScanVerboseDiff(t *testing.T) {
	root := t.TempDir()
	blobs := index.NewBlobStore(index.BlobDir(root))
	writeFile(t, root, "story.txt", "line one\nline two\nline three\n")
	ix := buildIndex(t, root, blobs)

	writeFile(t, root, "story.txt", "line one\nline 2!\nline three\n")
	touch(t, root, "story.txt")

	report, err := New(Options{Blobs: blobs}).Scan(context.Background(), root, ix, models.ReportingConfig{Verbose: true})
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	diff := report.Entries[0].Diff
	assert.Contains(t, diff, "-line two")
	assert.Contains(t, diff, "+line 2!")
	assert.Contains(t, diff, "a/story.txt")
}

func TestScanVerboseWithoutBaseline(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "story.txt", "before\n")
	ix := buildIndex(t, root, nil)

	writeFile(t, root, "story.txt", "after edit\n")

	report, err := New(Options{}).Scan(context.Background(), root, ix, models.ReportingConfig{Verbose: true})
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Contains(t, report.Entries[0].Diff, "baseline content unavailable")
}

func TestScanBranchSummary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "same\n")
	writeFile(t, root, "b.txt", "moved on\n")
	ix := buildIndex(t, root, nil)
	ix.Meta.Label = "main"
	ix.Meta.Upstream = "origin/main"

	upstream := index.New("origin/main")
	var files []index.File
	for _, f := range ix.Files {
		files = append(files, f)
	}
	files[1].OID = "different-upstream-oid"
	files = append(files, index.File{Path: "only-up.txt", OID: "up0", Mode: 0o644})
	upstream.SetFiles(files)
	upPath := filepath.Join(t.TempDir(), "upstream.json")
	require.NoError(t, upstream.Save(upPath))

	sc := New(Options{UpstreamIndex: upPath})
	report, err := sc.Scan(context.Background(), root, ix, models.ReportingConfig{WantAheadBehind: true})
	require.NoError(t, err)
	require.NotNil(t, report.Branch)
	assert.Equal(t, "main", report.Branch.Label)
	assert.True(t, report.Branch.HasAheadBehind)
	assert.Equal(t, 1, report.Branch.Ahead)  // b.txt differs
	assert.Equal(t, 2, report.Branch.Behind) // b.txt differs, only-up.txt missing

	report, err = sc.Scan(context.Background(), root, ix, models.ReportingConfig{})
	require.NoError(t, err)
	require.NotNil(t, report.Branch)
	assert.False(t, report.Branch.HasAheadBehind)
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "x\n")
	ix := buildIndex(t, root, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Scan(ctx, root, ix, models.ReportingConfig{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCollectTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".tsignore", "*.log\n")
	writeFile(t, root, "b.txt", "bee\n")
	writeFile(t, root, "a/1.txt", "one\n")
	writeFile(t, root, "noise.log", "skip me\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, index.DirName), 0o755))
	writeFile(t, root, index.DirName+"/internal.txt", "never\n")

	blobs := index.NewBlobStore(index.BlobDir(root))
	files, err := CollectTree(context.Background(), root, CollectOptions{Blobs: blobs})
	require.NoError(t, err)

	var got []string
	for _, f := range files {
		got = append(got, f.Path)
		assert.NotEmpty(t, f.OID)
		assert.True(t, blobs.Has(f.OID))
	}
	assert.Equal(t, []string{".tsignore", "a/1.txt", "b.txt"}, got)
}
