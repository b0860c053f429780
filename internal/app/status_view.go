package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/render"
)

func (m *Model) statusBody() string {
	if m.status == nil {
		if m.scanning {
			return "scanning tree..."
		}
		return "no status yet"
	}
	return renderStatusBody(m.status, m.req, m.theme, m.icons, m.filterQuery)
}

// renderStatusBody lays the report out in sections, one styled line per
// entry. It is the screen-flavored sibling of the long renderer.
func renderStatusBody(report *models.StatusReport, req models.ReportingConfig, thm *render.Theme, icons bool, filter string) string {
	entries := report.Entries
	if filter != "" {
		entries = filterEntries(entries, filter)
	}

	section := lipgloss.NewStyle().Foreground(thm.Accent).Bold(true)
	muted := lipgloss.NewStyle().Foreground(thm.MutedFg)
	glyphs := map[models.EntryKind]lipgloss.Style{
		models.KindUnmerged:     lipgloss.NewStyle().Foreground(thm.ErrorFg).Bold(true),
		models.KindModified:     lipgloss.NewStyle().Foreground(thm.WarnFg),
		models.KindDeleted:      lipgloss.NewStyle().Foreground(thm.ErrorFg),
		models.KindUntracked:    lipgloss.NewStyle().Foreground(thm.Cyan),
		models.KindUntrackedDir: lipgloss.NewStyle().Foreground(thm.Cyan),
		models.KindIgnored:      lipgloss.NewStyle().Foreground(thm.MutedFg),
	}

	var b strings.Builder
	if report.Branch != nil && report.Branch.Label != "" {
		b.WriteString(section.Render("⎇ " + report.Branch.Label))
		if req.WantAheadBehind && report.Branch.HasAheadBehind {
			b.WriteString(muted.Render(fmt.Sprintf("  ↑%d ↓%d", report.Branch.Ahead, report.Branch.Behind)))
		}
		b.WriteString("\n\n")
	}

	groups := []struct {
		title string
		kinds []models.EntryKind
		want  bool
	}{
		{"Unmerged", []models.EntryKind{models.KindUnmerged}, true},
		{"Changed", []models.EntryKind{models.KindModified, models.KindDeleted}, true},
		{"Untracked", []models.EntryKind{models.KindUntracked, models.KindUntrackedDir}, req.Untracked != models.UntrackedNone},
		{"Ignored", []models.EntryKind{models.KindIgnored}, req.Ignored == models.IgnoredMatching},
	}

	wrote := false
	for _, g := range groups {
		if !g.want {
			continue
		}
		lines := entryLines(entries, g.kinds, glyphs, muted, icons, req.Verbose)
		if len(lines) == 0 {
			continue
		}
		wrote = true
		b.WriteString(section.Render(g.title) + "\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}

	if !wrote {
		if filter != "" {
			return muted.Render(fmt.Sprintf("no entries match %q", filter))
		}
		return muted.Render("working tree clean")
	}
	return strings.TrimRight(b.String(), "\n")
}

func entryLines(entries []models.StatusEntry, kinds []models.EntryKind, glyphs map[models.EntryKind]lipgloss.Style, muted lipgloss.Style, icons, verbose bool) []string {
	want := make(map[models.EntryKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var lines []string
	for _, e := range entries {
		if !want[e.Kind] {
			continue
		}
		line := "  " + glyphs[e.Kind].Render(glyphFor(e.Kind)) + " "
		if icons {
			line += iconWithSpace(deviconForPath(e.Path))
		}
		line += e.Path
		lines = append(lines, line)
		if verbose && e.Kind == models.KindModified && e.Diff != "" {
			for _, dl := range strings.Split(strings.TrimRight(e.Diff, "\n"), "\n") {
				lines = append(lines, muted.Render("      "+dl))
			}
		}
	}
	return lines
}

func glyphFor(kind models.EntryKind) string {
	switch kind {
	case models.KindModified:
		return "M"
	case models.KindDeleted:
		return "D"
	case models.KindUntracked, models.KindUntrackedDir:
		return "?"
	case models.KindIgnored:
		return "!"
	case models.KindUnmerged:
		return "U"
	}
	return " "
}

// filterEntries keeps entries whose path contains the query,
// case-insensitively.
func filterEntries(entries []models.StatusEntry, query string) []models.StatusEntry {
	q := strings.ToLower(query)
	var out []models.StatusEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Path), q) {
			out = append(out, e)
		}
	}
	return out
}

func summarize(report *models.StatusReport) string {
	parts := make([]string, 0, 5)
	add := func(n int, noun string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, noun))
		}
	}
	add(report.CountKind(models.KindUnmerged), "unmerged")
	add(report.CountKind(models.KindModified), "modified")
	add(report.CountKind(models.KindDeleted), "deleted")
	add(report.CountKind(models.KindUntracked)+report.CountKind(models.KindUntrackedDir), "untracked")
	add(report.CountKind(models.KindIgnored), "ignored")
	if len(parts) == 0 {
		return "clean"
	}
	return strings.Join(parts, ", ")
}

func (m *Model) helpBody() string {
	lines := []string{
		"Keys",
		"",
		"  q, ctrl+c   quit",
		"  r           rescan now",
		"  u           cycle untracked mode (normal, all, no)",
		"  i           toggle ignored matches",
		"  v           toggle verbose diffs",
		"  /           filter by path, esc clears",
		"  g / G       jump to top / bottom",
		"  ?           close help",
		"",
		"The tree is rescanned automatically when files change.",
	}
	return strings.Join(lines, "\n")
}
