package statuscache

import (
	"fmt"

	"github.com/treestat/treestat/internal/models"
	"github.com/treestat/treestat/internal/utils"
)

// Request carries everything a reuse decision depends on. Identity is
// the live token read just before evaluation; Evaluate itself never
// touches the filesystem.
type Request struct {
	Config models.ReportingConfig
	Root   string
	// Identity is the current index identity token.
	Identity models.IndexIdentity
	// NeedsConflictDetail is set by renderers that print per-stage
	// conflict metadata, which the artifact never stores.
	NeedsConflictDetail bool
}

// Outcome is the terminal classification of a cached report.
type Outcome int

const (
	OutcomeUsable Outcome = iota + 1
	OutcomeUsableWithFilter
	OutcomeRejected
)

// Reason says why a cache was rejected, or ReasonNone when it was not.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonCorrupt
	ReasonVersionMismatch
	ReasonRootMismatch
	ReasonIndexStale
	ReasonConflictDetailUnavailable
	ReasonVerboseMismatch
	ReasonIgnoredModeMismatch
	ReasonUntrackedModeMismatch
	ReasonScopeMismatch
	ReasonToggleMismatch
)

var reasonNames = map[Reason]string{
	ReasonNone:                      "none",
	ReasonCorrupt:                   "corrupt",
	ReasonVersionMismatch:           "version-mismatch",
	ReasonRootMismatch:              "root-mismatch",
	ReasonIndexStale:                "index-stale",
	ReasonConflictDetailUnavailable: "conflict-detail-unavailable",
	ReasonVerboseMismatch:           "verbose-mismatch",
	ReasonIgnoredModeMismatch:       "ignored-mode-mismatch",
	ReasonUntrackedModeMismatch:     "untracked-mode-mismatch",
	ReasonScopeMismatch:             "scope-mismatch",
	ReasonToggleMismatch:            "toggle-mismatch",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Decision is what Evaluate returns. For OutcomeUsableWithFilter the
// filter fields say which narrowings to run: scope first, then the
// untracked mode.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	// Detail names the offending toggle or decode problem.
	Detail string
	// NarrowUntracked requests narrowing the entry set to FilterTo.
	NarrowUntracked bool
	FilterTo        models.UntrackedMode
	// ScopeFilter, when non-empty, restricts entries to these prefixes.
	ScopeFilter []string
}

// Reject builds a rejection decision, also used by callers to trace
// decode failures through the same hook as validation outcomes.
func Reject(reason Reason, detail string) Decision {
	return Decision{Outcome: OutcomeRejected, Reason: reason, Detail: detail}
}

// Rejected reports whether the cache cannot be used at all.
func (d Decision) Rejected() bool { return d.Outcome == OutcomeRejected }

func (d Decision) String() string {
	switch d.Outcome {
	case OutcomeUsable:
		return "usable"
	case OutcomeUsableWithFilter:
		s := "usable-with-filter"
		if d.NarrowUntracked {
			s += "(untracked=" + d.FilterTo.String() + ")"
		}
		if len(d.ScopeFilter) > 0 {
			s += "(scoped)"
		}
		return s
	case OutcomeRejected:
		if d.Detail != "" {
			return "rejected(" + d.Reason.String() + ": " + d.Detail + ")"
		}
		return "rejected(" + d.Reason.String() + ")"
	}
	return "undecided"
}

// Tracer observes reuse decisions and wait polls. Implementations must
// tolerate being called from a single goroutine per operation.
type Tracer interface {
	RecordDecision(d Decision)
	RecordPoll(iteration int, matched bool)
}

// NopTracer discards everything.
type NopTracer struct{}

func (NopTracer) RecordDecision(Decision) {}
func (NopTracer) RecordPoll(int, bool)    {}

// Evaluate classifies a cached report against a request. Pure: the
// checks run in a fixed order and the first failure wins, so callers
// can rely on the reason they see being the earliest one.
func Evaluate(prov Provenance, hasConflicts bool, req Request) Decision {
	if prov.Root != "" && req.Root != "" && prov.Root != req.Root {
		return Reject(ReasonRootMismatch, prov.Root)
	}
	if prov.Identity != req.Identity {
		return Reject(ReasonIndexStale, "")
	}
	if hasConflicts && req.NeedsConflictDetail {
		return Reject(ReasonConflictDetailUnavailable, "")
	}
	if req.Config.Verbose && !prov.Config.Verbose {
		return Reject(ReasonVerboseMismatch, "")
	}
	if prov.Config.Ignored != req.Config.Ignored {
		return Reject(ReasonIgnoredModeMismatch, "")
	}

	d := Decision{Outcome: OutcomeUsable, FilterTo: prov.Config.Untracked}
	switch {
	case prov.Config.Untracked == req.Config.Untracked:
	case prov.Config.Untracked == models.UntrackedComplete:
		d.Outcome = OutcomeUsableWithFilter
		d.NarrowUntracked = true
		d.FilterTo = req.Config.Untracked
	default:
		return Reject(ReasonUntrackedModeMismatch,
			prov.Config.Untracked.String()+" cached, "+req.Config.Untracked.String()+" requested")
	}

	cacheScope, reqScope := prov.Config.PathScope, req.Config.PathScope
	switch {
	case len(cacheScope) == 0 && len(reqScope) == 0:
	case len(cacheScope) == 0:
		d.Outcome = OutcomeUsableWithFilter
		d.ScopeFilter = reqScope
	case len(reqScope) == 0:
		return Reject(ReasonScopeMismatch, "cache is scoped, request is not")
	case models.ScopeEqual(cacheScope, reqScope):
	case scopeContains(cacheScope, reqScope):
		d.Outcome = OutcomeUsableWithFilter
		d.ScopeFilter = reqScope
	default:
		return Reject(ReasonScopeMismatch, "")
	}

	if prov.Config.SkipNestedRoots != req.Config.SkipNestedRoots {
		return Reject(ReasonToggleMismatch, "skip_nested_roots")
	}
	if req.Config.WantAheadBehind && !prov.Config.WantAheadBehind {
		return Reject(ReasonToggleMismatch, "branch_ahead_behind")
	}
	return d
}

// scopeContains reports whether every inner prefix falls under some
// outer prefix.
func scopeContains(outer, inner []string) bool {
	for _, in := range inner {
		ok := false
		for _, out := range outer {
			if utils.PathWithin(out, in) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
