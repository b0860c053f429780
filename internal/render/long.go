package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"

	"github.com/treestat/treestat/internal/models"
)

// Long is the human-readable renderer. It shows unmerged paths by name
// only, so it accepts cached reports even when conflicts exist.
type Long struct {
	styles longStyles
}

type longStyles struct {
	branch    lipgloss.Style
	header    lipgloss.Style
	modified  lipgloss.Style
	deleted   lipgloss.Style
	conflict  lipgloss.Style
	untracked lipgloss.Style
	ignored   lipgloss.Style
	clean     lipgloss.Style
	muted     lipgloss.Style
}

// NewLong builds the long renderer. With color off every style is the
// zero style, which renders text unchanged.
func NewLong(theme *Theme, color bool) *Long {
	r := &Long{}
	if color && theme != nil {
		r.styles = longStyles{
			branch:    lipgloss.NewStyle().Foreground(theme.Accent).Bold(true),
			header:    lipgloss.NewStyle().Foreground(theme.TextFg).Bold(true),
			modified:  lipgloss.NewStyle().Foreground(theme.WarnFg),
			deleted:   lipgloss.NewStyle().Foreground(theme.ErrorFg),
			conflict:  lipgloss.NewStyle().Foreground(theme.ErrorFg).Bold(true),
			untracked: lipgloss.NewStyle().Foreground(theme.Cyan),
			ignored:   lipgloss.NewStyle().Foreground(theme.MutedFg),
			clean:     lipgloss.NewStyle().Foreground(theme.SuccessFg),
			muted:     lipgloss.NewStyle().Foreground(theme.MutedFg),
		}
	}
	return r
}

func (r *Long) Name() string { return FormatLong }

// NeedsConflictDetail is false: unmerged paths are listed without stage
// metadata, which is exactly what a cached report can still provide.
func (r *Long) NeedsConflictDetail() bool { return false }

func (r *Long) Render(w io.Writer, report *models.StatusReport, cfg models.ReportingConfig) error {
	var b strings.Builder
	r.writeBranch(&b, report, cfg)

	conflicts := entriesOfKind(report, models.KindUnmerged)
	changed := entriesOfKind(report, models.KindModified, models.KindDeleted)
	untracked := entriesOfKind(report, models.KindUntracked, models.KindUntrackedDir)
	ignored := entriesOfKind(report, models.KindIgnored)

	if len(conflicts) > 0 {
		b.WriteString(r.styles.header.Render("Unmerged paths:") + "\n")
		for _, e := range conflicts {
			fmt.Fprintf(&b, "  %s\n", r.styles.conflict.Render(fmt.Sprintf("%-11s %s", "unmerged:", e.Path)))
		}
		b.WriteString("\n")
	}
	if len(changed) > 0 {
		b.WriteString(r.styles.header.Render("Changes in working tree:") + "\n")
		for _, e := range changed {
			label, style := "modified:", r.styles.modified
			if e.Kind == models.KindDeleted {
				label, style = "deleted:", r.styles.deleted
			}
			fmt.Fprintf(&b, "  %s\n", style.Render(fmt.Sprintf("%-11s %s", label, e.Path)))
		}
		b.WriteString("\n")
	}
	if cfg.Untracked != models.UntrackedNone && len(untracked) > 0 {
		b.WriteString(r.styles.header.Render("Untracked files:") + "\n")
		for _, e := range untracked {
			fmt.Fprintf(&b, "  %s\n", r.styles.untracked.Render(e.Path))
		}
		b.WriteString("\n")
	}
	if cfg.Ignored == models.IgnoredMatching && len(ignored) > 0 {
		b.WriteString(r.styles.header.Render("Ignored files:") + "\n")
		for _, e := range ignored {
			fmt.Fprintf(&b, "  %s\n", r.styles.ignored.Render(e.Path))
		}
		b.WriteString("\n")
	}

	if len(report.Entries) == 0 {
		b.WriteString(r.styles.clean.Render("nothing to report, working tree clean") + "\n")
	}

	if cfg.Verbose {
		for _, e := range changed {
			if e.Diff == "" {
				continue
			}
			b.WriteString(indent.String(strings.TrimRight(e.Diff, "\n"), 2))
			b.WriteString("\n\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Long) writeBranch(b *strings.Builder, report *models.StatusReport, cfg models.ReportingConfig) {
	br := report.Branch
	if br == nil {
		return
	}
	if br.Label != "" {
		b.WriteString(r.styles.branch.Render("On branch "+br.Label) + "\n")
	}
	if br.Upstream != "" && cfg.WantAheadBehind && br.HasAheadBehind {
		var line string
		switch {
		case br.Ahead == 0 && br.Behind == 0:
			line = fmt.Sprintf("Up to date with '%s'", br.Upstream)
		default:
			line = fmt.Sprintf("Ahead of '%s' by %d, behind by %d", br.Upstream, br.Ahead, br.Behind)
		}
		b.WriteString(r.styles.muted.Render(line) + "\n")
	}
	b.WriteString("\n")
}

func entriesOfKind(report *models.StatusReport, kinds ...models.EntryKind) []models.StatusEntry {
	var out []models.StatusEntry
	for _, e := range report.Entries {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
