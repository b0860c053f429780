// Package utils provides small helpers shared across treestat packages.
package utils

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExpandPath expands a leading tilde and environment variables in path.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path), nil
}

// PathWithin reports whether path sits at or below prefix. Both are tree
// relative, slash separated; an empty prefix covers everything. The test
// is boundary aware: "dir" covers "dir" and "dir/x" but never "dirx".
func PathWithin(prefix, path string) bool {
	if prefix == "" {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// UnderAny reports whether path sits below at least one of the prefixes.
// An empty prefix list covers everything.
func UnderAny(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if PathWithin(p, path) {
			return true
		}
	}
	return false
}

// NormalizeScope cleans user-supplied scope prefixes: slash separators,
// no leading "./" or trailing "/", duplicates removed, sorted. A prefix
// reduced to "." or "" selects the whole tree and is dropped.
func NormalizeScope(prefixes []string) []string {
	seen := make(map[string]struct{}, len(prefixes))
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = filepath.ToSlash(strings.TrimSpace(p))
		p = strings.TrimPrefix(p, "./")
		p = strings.Trim(p, "/")
		if p == "" || p == "." {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
