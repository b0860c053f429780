// Package render turns status reports into user-facing output. Renderers
// key everything off the request config, never off where the report came
// from, so a cached report and a fresh one render identically.
package render

import (
	"fmt"
	"io"

	"github.com/treestat/treestat/internal/models"
)

// Renderer writes one report.
type Renderer interface {
	Render(w io.Writer, report *models.StatusReport, cfg models.ReportingConfig) error
	// NeedsConflictDetail reports whether the output includes per-stage
	// conflict metadata, which cached reports do not carry.
	NeedsConflictDetail() bool
	Name() string
}

// Format names accepted by ForFormat.
const (
	FormatLong      = "long"
	FormatPorcelain = "porcelain"
)

// ForFormat picks a renderer by name. The empty string means long.
func ForFormat(format, themeName string, color bool) (Renderer, error) {
	switch format {
	case "", FormatLong:
		return NewLong(GetTheme(themeName), color), nil
	case FormatPorcelain:
		return NewPorcelain(), nil
	}
	return nil, fmt.Errorf("unknown output format %q (want %s or %s)", format, FormatLong, FormatPorcelain)
}
