package models

import "time"

// EntryKind classifies a single status entry.
type EntryKind uint8

const (
	// KindModified marks a tracked file whose content changed.
	KindModified EntryKind = iota + 1
	// KindDeleted marks a tracked file missing from the working tree.
	KindDeleted
	// KindUntracked marks a file absent from the index.
	KindUntracked
	// KindUntrackedDir marks a directory with no indexed content beneath
	// it; its path carries a trailing slash.
	KindUntrackedDir
	// KindIgnored marks a path matched by ignore rules.
	KindIgnored
	// KindUnmerged marks an index entry with unresolved conflict stages.
	KindUnmerged
)

// String returns a short classifier used by trace output and tests.
func (k EntryKind) String() string {
	switch k {
	case KindModified:
		return "modified"
	case KindDeleted:
		return "deleted"
	case KindUntracked:
		return "untracked"
	case KindUntrackedDir:
		return "untracked-dir"
	case KindIgnored:
		return "ignored"
	case KindUnmerged:
		return "unmerged"
	}
	return "unknown"
}

// StageInfo describes one conflict stage of an unmerged index entry.
type StageInfo struct {
	OID  string // hex content hash recorded for the stage
	Mode uint32
}

// StatusEntry is one classified path in a status report. Paths are tree
// relative with forward slashes; untracked directory markers end in "/".
type StatusEntry struct {
	Path string
	Kind EntryKind

	// OldOID/NewOID hold content hashes for tracked changes. Deleted
	// entries leave NewOID empty.
	OldOID string
	NewOID string
	Mode   uint32

	// Diff holds a unified diff for modified text files on verbose scans.
	Diff string

	// Stages holds conflict stage detail for unmerged entries, indexed by
	// stage-1. Cache-loaded snapshots leave it empty: stage detail is
	// never serialized.
	Stages [3]*StageInfo
}

// IsUntracked reports whether the entry belongs to the untracked set
// (files or directory markers).
func (e StatusEntry) IsUntracked() bool {
	return e.Kind == KindUntracked || e.Kind == KindUntrackedDir
}

// StageMask returns a bitmask of populated conflict stages (bit 0 for
// stage 1 and so on).
func (e StatusEntry) StageMask() uint8 {
	var mask uint8
	for i, s := range e.Stages {
		if s != nil {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// BranchSummary carries the optional branch header of a report.
type BranchSummary struct {
	Label    string
	Upstream string
	Ahead    int
	Behind   int
	// HasAheadBehind distinguishes "computed as zero" from "not computed".
	HasAheadBehind bool
}

// StatusReport is the full classified result of comparing a working tree
// to its index at one point in time. Entries are sorted by path and the
// report is never mutated after construction; narrowing produces a copy.
type StatusReport struct {
	Root        string
	GeneratedAt time.Time
	Entries     []StatusEntry
	Branch      *BranchSummary
	// HasConflicts is set when the underlying index holds unresolved
	// conflict entries, whether or not they survive scope filtering.
	HasConflicts bool
}

// WithEntries returns a shallow copy of the report carrying a different
// entry set. Branch and conflict state are preserved.
func (r *StatusReport) WithEntries(entries []StatusEntry) *StatusReport {
	out := *r
	out.Entries = entries
	return &out
}

// CountKind returns the number of entries of the given kind.
func (r *StatusReport) CountKind(kind EntryKind) int {
	n := 0
	for _, e := range r.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
