package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treestat/treestat/internal/config"
	"github.com/treestat/treestat/internal/index"
	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/render"
	"github.com/treestat/treestat/internal/scan"
	"github.com/treestat/treestat/internal/statuscache"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// fixtureTree builds an indexed tree with one tracked file, two untracked
// files and one ignored file.
func fixtureTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, ".tsignore", "*.ign\n")
	writeFile(t, root, "t.txt", "tracked\n")

	files, err := scan.CollectTree(context.Background(), root, scan.CollectOptions{
		Blobs: index.NewBlobStore(index.BlobDir(root)),
	})
	require.NoError(t, err)
	ix := index.New("main")
	ix.SetFiles(files)
	require.NoError(t, ix.Save(index.DefaultPath(root)))

	writeFile(t, root, "a.txt", "alpha\n")
	writeFile(t, root, "dir/b.txt", "beta\n")
	writeFile(t, root, "c.ign", "skip\n")
	return root
}

func sampleReport() *models.StatusReport {
	return &models.StatusReport{
		Root:        "/tmp/tree",
		GeneratedAt: time.Now(),
		Branch:      &models.BranchSummary{Label: "main"},
		Entries: []models.StatusEntry{
			{Path: "a.txt", Kind: models.KindUntracked},
			{Path: "dir/", Kind: models.KindUntrackedDir},
			{Path: "dir/b.txt", Kind: models.KindUntracked},
			{Path: "gone.txt", Kind: models.KindDeleted, OldOID: "aaaa"},
			{Path: "m.go", Kind: models.KindModified, OldOID: "aaaa", NewOID: "bbbb", Diff: "-old line\n+new line\n"},
		},
	}
}

func testModel(t *testing.T) *Model {
	t.Helper()
	m := New(config.DefaultConfig(), t.TempDir(), models.ReportingConfig{Untracked: models.UntrackedNormal})
	t.Cleanup(m.shutdown)
	m.setSize(100, 30)
	return m
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNextUntrackedMode(t *testing.T) {
	assert.Equal(t, models.UntrackedAll, nextUntrackedMode(models.UntrackedNormal))
	assert.Equal(t, models.UntrackedNone, nextUntrackedMode(models.UntrackedAll))
	assert.Equal(t, models.UntrackedNormal, nextUntrackedMode(models.UntrackedNone))
	assert.Equal(t, models.UntrackedNormal, nextUntrackedMode(models.UntrackedComplete))
}

func TestScanLifecycle(t *testing.T) {
	m := testModel(t)

	cmd := m.startScan()
	require.NotNil(t, cmd)
	assert.True(t, m.scanning)

	updated, _ := m.Update(statusScannedMsg{report: sampleReport()})
	m = updated.(*Model)
	assert.False(t, m.scanning)
	require.NotNil(t, m.status)
	assert.False(t, m.lastScan.IsZero())

	view := m.View()
	assert.Contains(t, view, "untracked=normal")
	assert.Contains(t, view, "1 modified, 1 deleted, 3 untracked")
	assert.Contains(t, view, "a.txt")
	assert.Contains(t, view, "dir/b.txt")
}

func TestScanErrorKeepsPreviousReport(t *testing.T) {
	m := testModel(t)
	m.Update(statusScannedMsg{report: sampleReport()})

	m.Update(statusScannedMsg{err: errors.New("walk failed")})
	require.NotNil(t, m.status)
	assert.Contains(t, m.View(), "error: walk failed")

	m.Update(statusScannedMsg{report: sampleReport()})
	assert.NotContains(t, m.View(), "walk failed")
}

func TestQueuedRescanRunsAfterCurrent(t *testing.T) {
	m := testModel(t)

	require.NotNil(t, m.startScan())
	assert.Nil(t, m.startScan())
	assert.True(t, m.needRescan)

	_, cmd := m.Update(statusScannedMsg{report: sampleReport()})
	assert.NotNil(t, cmd)
	assert.True(t, m.scanning)
	assert.False(t, m.needRescan)
}

func TestCachedStatusOnlyPaintsBeforeFirstScan(t *testing.T) {
	m := testModel(t)

	cached := sampleReport()
	m.Update(cachedStatusMsg{report: cached})
	assert.Same(t, cached, m.status)

	fresh := sampleReport()
	m.Update(statusScannedMsg{report: fresh})
	m.Update(cachedStatusMsg{report: sampleReport()})
	assert.Same(t, fresh, m.status)
}

func TestKeysCycleReportModes(t *testing.T) {
	m := testModel(t)
	m.Update(statusScannedMsg{report: sampleReport()})

	_, cmd := m.Update(keyMsg("u"))
	assert.Equal(t, models.UntrackedAll, m.req.Untracked)
	assert.NotNil(t, cmd)
	assert.True(t, m.scanning)
	m.Update(statusScannedMsg{report: sampleReport()})

	m.Update(keyMsg("u"))
	assert.Equal(t, models.UntrackedNone, m.req.Untracked)
	m.Update(statusScannedMsg{report: sampleReport()})
	m.Update(keyMsg("u"))
	assert.Equal(t, models.UntrackedNormal, m.req.Untracked)
	m.Update(statusScannedMsg{report: sampleReport()})

	m.Update(keyMsg("i"))
	assert.Equal(t, models.IgnoredMatching, m.req.Ignored)
	m.Update(statusScannedMsg{report: sampleReport()})
	m.Update(keyMsg("i"))
	assert.Equal(t, models.IgnoredNone, m.req.Ignored)
	m.Update(statusScannedMsg{report: sampleReport()})

	m.Update(keyMsg("v"))
	assert.True(t, m.req.Verbose)
}

func TestQuitKeyStopsProgram(t *testing.T) {
	m := testModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}

func TestFilterNarrowsBody(t *testing.T) {
	m := testModel(t)
	m.Update(statusScannedMsg{report: sampleReport()})

	m.Update(keyMsg("/"))
	assert.True(t, m.filtering)
	for _, r := range "dir" {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	assert.Equal(t, "dir", m.filterQuery)

	body := m.statusBody()
	assert.Contains(t, body, "dir/b.txt")
	assert.NotContains(t, body, "a.txt")
	assert.NotContains(t, body, "m.go")

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.filtering)
	assert.Equal(t, "dir", m.filterQuery)

	m.Update(keyMsg("/"))
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.filtering)
	assert.Empty(t, m.filterQuery)
	assert.Contains(t, m.statusBody(), "a.txt")
}

func TestHelpToggle(t *testing.T) {
	m := testModel(t)
	m.Update(statusScannedMsg{report: sampleReport()})

	m.Update(keyMsg("?"))
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "rescan now")

	m.Update(keyMsg("?"))
	assert.False(t, m.showHelp)
	assert.Contains(t, m.View(), "a.txt")
}

func TestTreeChangeTriggersDebouncedRescan(t *testing.T) {
	m := testModel(t)

	updated, cmd := m.Update(treeChangedMsg{})
	m = updated.(*Model)
	assert.True(t, m.scanning)
	assert.NotNil(t, cmd)

	m.Update(statusScannedMsg{report: sampleReport()})
	assert.False(t, m.scanning)

	m.Update(treeChangedMsg{})
	assert.False(t, m.scanning)
}

func TestRenderStatusBodySections(t *testing.T) {
	report := sampleReport()
	report.Entries = append(report.Entries,
		models.StatusEntry{Path: "c.ign", Kind: models.KindIgnored},
		models.StatusEntry{Path: "u.txt", Kind: models.KindUnmerged},
	)
	thm := render.GetTheme("")

	req := models.ReportingConfig{Untracked: models.UntrackedNormal, Ignored: models.IgnoredMatching}
	body := renderStatusBody(report, req, thm, false, "")
	assert.Contains(t, body, "⎇ main")
	assert.Contains(t, body, "Unmerged")
	assert.Contains(t, body, "Changed")
	assert.Contains(t, body, "Untracked")
	assert.Contains(t, body, "Ignored")
	assert.Contains(t, body, "c.ign")
	assert.Contains(t, body, "u.txt")
	assert.NotContains(t, body, "-old line")

	req.Verbose = true
	body = renderStatusBody(report, req, thm, false, "")
	assert.Contains(t, body, "-old line")
	assert.Contains(t, body, "+new line")

	req = models.ReportingConfig{Untracked: models.UntrackedNone}
	body = renderStatusBody(report, req, thm, false, "")
	assert.NotContains(t, body, "Untracked")
	assert.NotContains(t, body, "Ignored")

	clean := &models.StatusReport{Root: "/tmp/tree"}
	body = renderStatusBody(clean, req, thm, false, "")
	assert.Contains(t, body, "working tree clean")

	body = renderStatusBody(clean, req, thm, false, "zzz")
	assert.Contains(t, body, `no entries match "zzz"`)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "1 modified, 1 deleted, 3 untracked", summarize(sampleReport()))
	assert.Equal(t, "clean", summarize(&models.StatusReport{}))
}

func TestViewBeforeReady(t *testing.T) {
	m := New(config.DefaultConfig(), t.TempDir(), models.ReportingConfig{})
	t.Cleanup(m.shutdown)
	assert.Contains(t, m.View(), "starting treestat watch")
}

func TestBuildReportAutoCacheWidensArtifact(t *testing.T) {
	root := fixtureTree(t)
	cfg := config.DefaultConfig()
	cfg.AutoCache = true
	cfg.SerializeUntracked = "complete"

	req := models.ReportingConfig{Untracked: models.UntrackedNormal}
	report, err := buildReport(context.Background(), cfg, root, req)
	require.NoError(t, err)

	var paths []string
	for _, e := range report.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"a.txt", "dir/"}, paths)

	cached, prov, err := statuscache.ReadFile(cfg.CachePathFor(root))
	require.NoError(t, err)
	assert.Equal(t, models.UntrackedComplete, prov.Config.Untracked)
	var cachedPaths []string
	for _, e := range cached.Entries {
		cachedPaths = append(cachedPaths, e.Path)
	}
	assert.Equal(t, []string{"a.txt", "dir/", "dir/b.txt"}, cachedPaths)
}

func TestBuildReportRequiresIndex(t *testing.T) {
	_, err := buildReport(context.Background(), config.DefaultConfig(), t.TempDir(), models.ReportingConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `run "treestat init" first`)
}

func TestLoadCachedStatusServesUsableArtifact(t *testing.T) {
	root := fixtureTree(t)
	cfg := config.DefaultConfig()
	cfg.AutoCache = true

	// Seed the artifact with a complete scan.
	_, err := buildReport(context.Background(), cfg, root, models.ReportingConfig{Untracked: models.UntrackedNormal})
	require.NoError(t, err)

	m := New(cfg, root, models.ReportingConfig{Untracked: models.UntrackedNormal})
	t.Cleanup(m.shutdown)
	msg := m.loadCachedStatus()()
	cached, ok := msg.(cachedStatusMsg)
	require.True(t, ok, "expected cachedStatusMsg, got %T", msg)

	var paths []string
	for _, e := range cached.report.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"a.txt", "dir/"}, paths)
}

func TestLoadCachedStatusIgnoresStaleArtifact(t *testing.T) {
	root := fixtureTree(t)
	cfg := config.DefaultConfig()
	cfg.AutoCache = true

	_, err := buildReport(context.Background(), cfg, root, models.ReportingConfig{Untracked: models.UntrackedNormal})
	require.NoError(t, err)

	// Rewriting the manifest changes its identity, so the artifact is stale.
	ix, err := index.Load(index.DefaultPath(root))
	require.NoError(t, err)
	require.NoError(t, ix.Save(index.DefaultPath(root)))

	m := New(cfg, root, models.ReportingConfig{Untracked: models.UntrackedNormal})
	t.Cleanup(m.shutdown)
	assert.Nil(t, m.loadCachedStatus()())
}
