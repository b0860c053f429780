package scan

import (
	"path"
	"sort"
	"strings"

	"github.com/treestat/treestat/internal/index"
	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/utils"
)

// deriveUntrackedDirs computes the maximal untracked directory markers for
// a set of untracked files: for each file, the shallowest ancestor
// directory with no indexed content beneath it. The search starts at the
// scope root covering the file (when scoped) and never yields the tree
// root itself. Markers carry a trailing slash.
func deriveUntrackedDirs(files []string, ix *index.Index, scope []string) []string {
	set := make(map[string]struct{})
	for _, f := range files {
		if m, ok := maximalUntrackedDir(f, ix, scope); ok {
			set[m+"/"] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func maximalUntrackedDir(file string, ix *index.Index, scope []string) (string, bool) {
	dir := path.Dir(file)
	if dir == "." {
		return "", false
	}
	start := "" // longest scope prefix covering the file
	for _, s := range scope {
		if utils.PathWithin(s, file) && len(s) > len(start) {
			start = s
		}
	}
	if start != "" && !utils.PathWithin(start, dir) {
		// The file sits directly at the scope boundary; there is no
		// directory between scope root and file to collapse into.
		return "", false
	}
	for _, p := range prefixesBetween(start, dir) {
		if !ix.HasUnder(p) {
			return p, true
		}
	}
	return "", false
}

// prefixesBetween lists start and every path on the way down to dir,
// shallowest first. An empty start means all prefixes of dir.
func prefixesBetween(start, dir string) []string {
	if start == "" {
		parts := strings.Split(dir, "/")
		out := make([]string, 0, len(parts))
		cur := ""
		for _, part := range parts {
			if cur == "" {
				cur = part
			} else {
				cur += "/" + part
			}
			out = append(out, cur)
		}
		return out
	}
	out := []string{start}
	if dir == start {
		return out
	}
	cur := start
	for _, part := range strings.Split(dir[len(start)+1:], "/") {
		cur += "/" + part
		out = append(out, cur)
	}
	return out
}

// untrackedEntries assembles the untracked portion of a report for one
// reporting mode. Each mode is built natively from the raw file list and
// the derived markers rather than by narrowing a richer mode.
func untrackedEntries(files, markers []string, mode models.UntrackedMode) []models.StatusEntry {
	var out []models.StatusEntry
	switch mode {
	case models.UntrackedNone:
	case models.UntrackedAll:
		for _, f := range files {
			out = append(out, models.StatusEntry{Path: f, Kind: models.KindUntracked})
		}
	case models.UntrackedNormal:
		for _, m := range markers {
			out = append(out, models.StatusEntry{Path: m, Kind: models.KindUntrackedDir})
		}
		for _, f := range files {
			if !underAnyMarker(f, markers) {
				out = append(out, models.StatusEntry{Path: f, Kind: models.KindUntracked})
			}
		}
	case models.UntrackedComplete:
		for _, m := range markers {
			out = append(out, models.StatusEntry{Path: m, Kind: models.KindUntrackedDir})
		}
		for _, f := range files {
			out = append(out, models.StatusEntry{Path: f, Kind: models.KindUntracked})
		}
	}
	return out
}

func underAnyMarker(file string, markers []string) bool {
	for _, m := range markers {
		if utils.PathWithin(strings.TrimSuffix(m, "/"), file) {
			return true
		}
	}
	return false
}
