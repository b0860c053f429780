package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/treestat/treestat/internal/models"
)

// Porcelain is the line-oriented machine format. Header lines start with
// "# "; entry lines start with a single classification code. The format
// is stable: scripts may parse it field by field.
type Porcelain struct{}

// NewPorcelain builds the machine renderer.
func NewPorcelain() *Porcelain { return &Porcelain{} }

func (p *Porcelain) Name() string { return FormatPorcelain }

// NeedsConflictDetail is true: unmerged lines carry per-stage mode and
// object id fields, which only a fresh scan can fill in.
func (p *Porcelain) NeedsConflictDetail() bool { return true }

func (p *Porcelain) Render(w io.Writer, report *models.StatusReport, cfg models.ReportingConfig) error {
	var b strings.Builder
	if br := report.Branch; br != nil {
		if br.Label != "" {
			fmt.Fprintf(&b, "# branch.head %s\n", br.Label)
		}
		if br.Upstream != "" {
			fmt.Fprintf(&b, "# branch.upstream %s\n", br.Upstream)
		}
		if cfg.WantAheadBehind && br.HasAheadBehind {
			fmt.Fprintf(&b, "# branch.ab +%d -%d\n", br.Ahead, br.Behind)
		}
	}
	if report.HasConflicts {
		b.WriteString("# conflicts\n")
	}

	for _, e := range report.Entries {
		switch e.Kind {
		case models.KindModified:
			fmt.Fprintf(&b, "M %o %s %s %s\n", e.Mode, orDash(e.OldOID), orDash(e.NewOID), e.Path)
		case models.KindDeleted:
			fmt.Fprintf(&b, "D %o %s - %s\n", e.Mode, orDash(e.OldOID), e.Path)
		case models.KindUnmerged:
			fmt.Fprintf(&b, "U %s %s %s %s %s\n",
				stageBits(e.StageMask()), stageField(e.Stages[0]), stageField(e.Stages[1]), stageField(e.Stages[2]), e.Path)
		case models.KindUntracked, models.KindUntrackedDir:
			if cfg.Untracked != models.UntrackedNone {
				fmt.Fprintf(&b, "? %s\n", e.Path)
			}
		case models.KindIgnored:
			if cfg.Ignored == models.IgnoredMatching {
				fmt.Fprintf(&b, "! %s\n", e.Path)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func stageBits(mask uint8) string {
	bits := []byte{'0', '0', '0'}
	for i := 0; i < 3; i++ {
		if mask&(1<<i) != 0 {
			bits[i] = '1'
		}
	}
	return string(bits)
}

func stageField(st *models.StageInfo) string {
	if st == nil {
		return "-"
	}
	return fmt.Sprintf("%o:%s", st.Mode, st.OID)
}
