// Package models defines the data objects shared across treestat packages.
package models

import (
	"fmt"
	"sort"
	"strings"
)

// UntrackedMode controls how untracked paths are reported by a scan.
type UntrackedMode uint8

const (
	// UntrackedNone omits untracked paths entirely.
	UntrackedNone UntrackedMode = iota
	// UntrackedNormal reports untracked directories collapsed to a single entry.
	UntrackedNormal
	// UntrackedAll reports every untracked file individually.
	UntrackedAll
	// UntrackedComplete records both the individual files and the directory
	// markers, so Normal and All can be derived from it by pure filtering.
	UntrackedComplete
)

// String returns the CLI/config spelling of the mode.
func (m UntrackedMode) String() string {
	switch m {
	case UntrackedNone:
		return "no"
	case UntrackedNormal:
		return "normal"
	case UntrackedAll:
		return "all"
	case UntrackedComplete:
		return "complete"
	}
	return fmt.Sprintf("untracked(%d)", uint8(m))
}

// ParseUntrackedMode converts a CLI/config value into an UntrackedMode.
func ParseUntrackedMode(value string) (UntrackedMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "no", "none", "false":
		return UntrackedNone, nil
	case "", "normal", "yes", "true":
		return UntrackedNormal, nil
	case "all":
		return UntrackedAll, nil
	case "complete":
		return UntrackedComplete, nil
	}
	return UntrackedNormal, fmt.Errorf("invalid untracked-files mode %q (want no, normal, all or complete)", value)
}

// IgnoredMode controls whether ignored paths are reported. There is no
// partial mode: a scan either records matching ignored paths or none.
type IgnoredMode uint8

const (
	// IgnoredNone omits ignored paths.
	IgnoredNone IgnoredMode = iota
	// IgnoredMatching reports paths matched by ignore rules.
	IgnoredMatching
)

// String returns the CLI/config spelling of the mode.
func (m IgnoredMode) String() string {
	if m == IgnoredMatching {
		return "matching"
	}
	return "no"
}

// ParseIgnoredMode converts a CLI/config value into an IgnoredMode.
func ParseIgnoredMode(value string) (IgnoredMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "no", "none", "false":
		return IgnoredNone, nil
	case "matching", "yes", "true":
		return IgnoredMatching, nil
	}
	return IgnoredNone, fmt.Errorf("invalid ignored mode %q (want no or matching)", value)
}

// ReportingConfig identifies how a scan was, or will be, performed. A copy
// is recorded in cache provenance so later requests can be compared
// against it field by field.
type ReportingConfig struct {
	Untracked UntrackedMode
	Ignored   IgnoredMode
	// PathScope restricts results to the given tree-relative prefixes.
	// Empty means the whole tree.
	PathScope []string
	// Verbose captures unified diffs for modified text files.
	Verbose bool
	// WantAheadBehind computes ahead/behind counts against the configured
	// upstream manifest.
	WantAheadBehind bool
	// SkipNestedRoots skips subtrees that carry their own treestat root.
	SkipNestedRoots bool
}

// ScopeEqual reports whether two scope lists name the same prefixes,
// regardless of order.
func ScopeEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// IndexIdentity is the staleness token for an index manifest: the stat
// identity of the file on disk. Two tokens are compared by exact equality
// only, never by time ordering. The index writer renames a fresh temp file
// into place on every save, so any rebuild changes the inode even when
// size and mtime collide.
type IndexIdentity struct {
	Size    int64
	MTimeNS int64
	Ino     uint64
	Dev     uint64
}

// IsZero reports whether the token carries no identity (index missing).
func (id IndexIdentity) IsZero() bool {
	return id == IndexIdentity{}
}

// String renders the token for trace output.
func (id IndexIdentity) String() string {
	return fmt.Sprintf("size=%d mtime=%d ino=%d dev=%d", id.Size, id.MTimeNS, id.Ino, id.Dev)
}
