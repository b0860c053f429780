package statuscache

import (
	"sort"
	"strings"

	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/utils"
)

// Refine applies a usable-with-filter decision to cached entries. Scope
// runs before the untracked narrowing: narrowing a directory marker to a
// scope boundary needs the untracked files that prove content exists
// there, and only the full entry set still carries them.
func Refine(entries []models.StatusEntry, d Decision) []models.StatusEntry {
	out := entries
	if len(d.ScopeFilter) > 0 {
		out = ApplyScope(out, d.ScopeFilter)
	}
	if d.NarrowUntracked {
		out = NarrowUntracked(out, d.FilterTo)
	}
	return out
}

// NarrowUntracked derives a coarser untracked mode from a superset
// entry set. Pure and total: entries that are not untracked pass
// through untouched, order is preserved.
func NarrowUntracked(entries []models.StatusEntry, target models.UntrackedMode) []models.StatusEntry {
	if target == models.UntrackedComplete {
		return entries
	}
	markers := make([]string, 0, 4)
	for _, e := range entries {
		if e.Kind == models.KindUntrackedDir {
			markers = append(markers, e.Path)
		}
	}
	out := make([]models.StatusEntry, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case models.KindUntrackedDir:
			if target == models.UntrackedNormal {
				out = append(out, e)
			}
		case models.KindUntracked:
			switch target {
			case models.UntrackedAll:
				out = append(out, e)
			case models.UntrackedNormal:
				if !coveredByMarker(e.Path, markers) {
					out = append(out, e)
				}
			}
		default:
			out = append(out, e)
		}
	}
	return out
}

// ApplyScope restricts entries to the given prefixes, reproducing what a
// scan scoped to them would report. Untracked directory markers that
// strictly contain a scope prefix narrow to that prefix, but only when
// untracked content under it is present among the entries; an ignored
// directory above a scope disappears, because a scoped walk never
// descends into it.
func ApplyScope(entries []models.StatusEntry, scope []string) []models.StatusEntry {
	if len(scope) == 0 {
		return entries
	}
	out := make([]models.StatusEntry, 0, len(entries))
	resort := false
	for _, e := range entries {
		if e.Kind != models.KindUntrackedDir && e.Kind != models.KindIgnored {
			if utils.UnderAny(e.Path, scope) {
				out = append(out, e)
			}
			continue
		}
		dir := strings.TrimSuffix(e.Path, "/")
		if dir == e.Path {
			// An ignored file, not a marker.
			if utils.UnderAny(e.Path, scope) {
				out = append(out, e)
			}
			continue
		}
		if utils.UnderAny(dir, scope) {
			out = append(out, e)
			continue
		}
		if e.Kind != models.KindUntrackedDir {
			continue
		}
		for _, s := range scope {
			if utils.PathWithin(dir, s) && hasUntrackedUnder(entries, s) {
				out = append(out, models.StatusEntry{Path: s + "/", Kind: models.KindUntrackedDir})
				resort = true
			}
		}
	}
	if resort {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	}
	return out
}

func hasUntrackedUnder(entries []models.StatusEntry, prefix string) bool {
	for _, e := range entries {
		if e.Kind == models.KindUntracked && utils.PathWithin(prefix, e.Path) {
			return true
		}
	}
	return false
}

func coveredByMarker(file string, markers []string) bool {
	for _, m := range markers {
		if utils.PathWithin(strings.TrimSuffix(m, "/"), file) {
			return true
		}
	}
	return false
}
