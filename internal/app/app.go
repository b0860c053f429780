// Package app is the interactive watch screen: a live status report that
// rescans the tree whenever the filesystem watcher reports a settled change.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/treestat/treestat/internal/config"
	"github.com/treestat/treestat/internal/index"
	"github.com/treestat/treestat/internal/log"
	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/monitor"
	"github.com/treestat/treestat/internal/render"
	"github.com/treestat/treestat/internal/scan"
	"github.com/treestat/treestat/internal/statuscache"
	"github.com/treestat/treestat/internal/utils"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	headerLines  = 3
	footerLines  = 2
	spinInterval = 120 * time.Millisecond
)

// Model holds the watch screen state.
type Model struct {
	cfg  *config.AppConfig
	root string
	req  models.ReportingConfig

	ctx    context.Context
	cancel context.CancelFunc
	watch  *monitor.WatchService

	status     *models.StatusReport
	scanning   bool
	needRescan bool
	spinIdx    int
	scanErr    error
	lastScan   time.Time

	viewport    viewport.Model
	filterInput textinput.Model
	filtering   bool
	filterQuery string
	ready       bool
	width       int
	height      int
	showHelp    bool
	quitting    bool

	theme *render.Theme
	icons bool
}

// New builds the watch screen model for root. The report starts out with
// the requested modes and the keys cycle them from there.
func New(cfg *config.AppConfig, root string, req models.ReportingConfig) *Model {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	ctx, cancel := context.WithCancel(context.Background())
	ti := textinput.New()
	ti.Placeholder = "filter paths"
	ti.Prompt = "/"
	ti.CharLimit = 128
	return &Model{
		cfg:         cfg,
		root:        root,
		req:         req,
		ctx:         ctx,
		cancel:      cancel,
		watch:       monitor.NewWatchService(time.Duration(cfg.WatchDebounceMS)*time.Millisecond, cfg.SkipNestedRoots, log.Printf),
		filterInput: ti,
		theme:       render.GetTheme(cfg.Theme),
		icons:       cfg.ShowIcons,
	}
}

// Run drives the watch screen until the user quits or ctx is cancelled.
func Run(ctx context.Context, cfg *config.AppConfig, root string, req models.ReportingConfig) error {
	m := New(cfg, root, req)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	m.shutdown()
	return err
}

func (m *Model) shutdown() {
	m.watch.Stop()
	m.cancel()
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadCachedStatus(), m.startScan(), m.startWatcher())
}

// startScan kicks off a scan unless one is already running, in which case
// the request is queued so mode changes made mid-scan still land.
func (m *Model) startScan() tea.Cmd {
	if m.scanning {
		m.needRescan = true
		return nil
	}
	m.scanning = true
	m.spinIdx = 0
	ctx, cfg, root, req := m.ctx, m.cfg, m.root, m.req
	scanFn := func() tea.Msg {
		report, err := buildReport(ctx, cfg, root, req)
		return statusScannedMsg{report: report, err: err}
	}
	return tea.Batch(m.spinTick(), scanFn)
}

func (m *Model) spinTick() tea.Cmd {
	return tea.Tick(spinInterval, func(time.Time) tea.Msg { return spinTickMsg{} })
}

// loadCachedStatus paints the last serialized report while the first scan
// runs, when the artifact can still serve the requested modes.
func (m *Model) loadCachedStatus() tea.Cmd {
	cfg, root, req := m.cfg, m.root, m.req
	return func() tea.Msg {
		report, prov, err := statuscache.ReadFile(cfg.CachePathFor(root))
		if err != nil {
			return nil
		}
		identity, err := index.ReadIdentity(index.DefaultPath(root))
		if err != nil {
			return nil
		}
		decision := statuscache.Evaluate(prov, report.HasConflicts, statuscache.Request{
			Config:   req,
			Root:     root,
			Identity: identity,
		})
		if decision.Rejected() {
			return nil
		}
		return cachedStatusMsg{report: report.WithEntries(statuscache.Refine(report.Entries, decision))}
	}
}

func (m *Model) startWatcher() tea.Cmd {
	if m.watch.Started {
		return nil
	}
	started, err := m.watch.Start(m.root)
	if err != nil {
		return func() tea.Msg { return errMsg{err: err} }
	}
	if !started {
		return nil
	}
	return m.waitForTreeEvent()
}

// waitForTreeEvent blocks on the watcher's debounced channel and turns the
// next settled burst of filesystem events into a message. The handler
// re-arms it, so exactly one of these commands is in flight at a time.
func (m *Model) waitForTreeEvent() tea.Cmd {
	events := m.watch.NextEvent()
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-events; !ok {
			return nil
		}
		return treeChangedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case cachedStatusMsg:
		if m.status == nil {
			m.status = msg.report
			m.refreshBody()
		}
		return m, nil

	case statusScannedMsg:
		m.scanning = false
		m.scanErr = msg.err
		if msg.err == nil {
			m.status = msg.report
			m.lastScan = time.Now()
		}
		m.refreshBody()
		if m.needRescan {
			m.needRescan = false
			return m, m.startScan()
		}
		return m, nil

	case treeChangedMsg:
		m.watch.ResetWaiting()
		cmds := []tea.Cmd{m.waitForTreeEvent()}
		if m.watch.ShouldRefresh(time.Now()) {
			if cmd := m.startScan(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		return m, tea.Batch(cmds...)

	case spinTickMsg:
		if !m.scanning {
			return m, nil
		}
		m.spinIdx = (m.spinIdx + 1) % len(spinnerFrames)
		return m, m.spinTick()

	case errMsg:
		m.scanErr = msg.err
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "enter":
			m.filtering = false
			m.filterInput.Blur()
			return m, nil
		case "esc", "ctrl+c":
			m.filtering = false
			m.filterQuery = ""
			m.filterInput.SetValue("")
			m.filterInput.Blur()
			m.refreshBody()
			return m, nil
		}
		var cmd tea.Cmd
		m.filterInput, cmd = m.filterInput.Update(msg)
		m.filterQuery = m.filterInput.Value()
		m.refreshBody()
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.shutdown()
		return m, tea.Quit
	case "r":
		if cmd := m.startScan(); cmd != nil {
			return m, cmd
		}
		return m, nil
	case "u":
		m.req.Untracked = nextUntrackedMode(m.req.Untracked)
		return m, m.startScan()
	case "i":
		if m.req.Ignored == models.IgnoredMatching {
			m.req.Ignored = models.IgnoredNone
		} else {
			m.req.Ignored = models.IgnoredMatching
		}
		return m, m.startScan()
	case "v":
		m.req.Verbose = !m.req.Verbose
		return m, m.startScan()
	case "/":
		m.filtering = true
		m.filterInput.Focus()
		return m, textinput.Blink
	case "?":
		m.showHelp = !m.showHelp
		m.refreshBody()
		return m, nil
	case "g", "home":
		m.viewport.GotoTop()
		return m, nil
	case "G", "end":
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// nextUntrackedMode cycles the reporting modes. Complete is a
// serialization mode, so cycling never lands on it.
func nextUntrackedMode(mode models.UntrackedMode) models.UntrackedMode {
	switch mode {
	case models.UntrackedNormal:
		return models.UntrackedAll
	case models.UntrackedAll:
		return models.UntrackedNone
	default:
		return models.UntrackedNormal
	}
}

func (m *Model) setSize(width, height int) {
	m.width, m.height = width, height
	bodyHeight := height - headerLines - footerLines
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(width, bodyHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = bodyHeight
	}
	m.refreshBody()
}

func (m *Model) refreshBody() {
	if !m.ready {
		return
	}
	if m.showHelp {
		m.viewport.SetContent(m.helpBody())
		return
	}
	m.viewport.SetContent(m.statusBody())
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "starting treestat watch..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), m.viewport.View(), m.footerView())
}

func (m *Model) headerView() string {
	muted := lipgloss.NewStyle().Foreground(m.theme.MutedFg)
	title := lipgloss.NewStyle().Foreground(m.theme.Accent).Bold(true).Render("treestat watch")
	line1 := title + "  " + muted.Render(m.root)

	mode := fmt.Sprintf("untracked=%s ignored=%s", m.req.Untracked, m.req.Ignored)
	if m.req.Verbose {
		mode += " verbose"
	}
	if m.req.SkipNestedRoots {
		mode += " skip-nested"
	}
	var state string
	switch {
	case m.scanning:
		state = lipgloss.NewStyle().Foreground(m.theme.Yellow).Render(spinnerFrames[m.spinIdx] + " scanning")
	case !m.lastScan.IsZero():
		state = muted.Render("scanned " + m.lastScan.Format("15:04:05"))
	case m.status != nil:
		state = muted.Render("cached")
	default:
		state = muted.Render("waiting")
	}
	line2 := muted.Render(mode) + "  " + state

	var line3 string
	switch {
	case m.scanErr != nil:
		line3 = lipgloss.NewStyle().Foreground(m.theme.ErrorFg).Render("error: " + m.scanErr.Error())
	case m.status != nil:
		line3 = muted.Render(summarize(m.status))
	}
	return strings.Join([]string{line1, line2, line3}, "\n")
}

func (m *Model) footerView() string {
	if m.filtering {
		return "\n" + m.filterInput.View()
	}
	hints := "q quit  r rescan  u untracked  i ignored  v verbose  / filter  ? help"
	if m.filterQuery != "" {
		hints = "filter: " + m.filterQuery + "  (esc via / to clear)  " + hints
	}
	return "\n" + lipgloss.NewStyle().Foreground(m.theme.MutedFg).Render(hints)
}

// buildReport scans the tree for the requested report and, when auto
// caching is on, keeps the cache artifact in step with what it saw.
func buildReport(ctx context.Context, cfg *config.AppConfig, root string, req models.ReportingConfig) (*models.StatusReport, error) {
	manifestPath := index.DefaultPath(root)
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

	scanCfg := req
	if cfg.AutoCache {
		if mode, perr := models.ParseUntrackedMode(cfg.SerializeUntracked); perr == nil && mode == models.UntrackedComplete {
			scanCfg.Untracked = models.UntrackedComplete
		}
	}

	upstream := cfg.UpstreamIndex
	if upstream != "" {
		if p, perr := utils.ExpandPath(upstream); perr == nil {
			upstream = p
		}
	}
	scanner := scan.New(scan.Options{
		IgnoreFile:    cfg.IgnoreFile,
		Workers:       cfg.Workers,
		MaxDiffChars:  cfg.MaxDiffChars,
		Blobs:         index.NewBlobStore(index.BlobDir(root)),
		UpstreamIndex: upstream,
	})
	report, err := scanner.Scan(ctx, root, ix, scanCfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoCache {
		prov := statuscache.Provenance{Identity: identity, Config: scanCfg, Root: root}
		if werr := statuscache.WriteFile(cfg.CachePathFor(root), report, prov); werr != nil {
			log.Printf("watch: could not refresh status cache: %v", werr)
		}
	}
	if scanCfg.Untracked != req.Untracked {
		report = report.WithEntries(statuscache.NarrowUntracked(report.Entries, req.Untracked))
	}
	return report, nil
}
