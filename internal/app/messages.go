package app

import "github.com/treestat/treestat/internal/models"

type (
	// statusScannedMsg delivers the result of a tree scan.
	statusScannedMsg struct {
		report *models.StatusReport
		err    error
	}
	// cachedStatusMsg carries a report served from the cache artifact,
	// shown only until the first scan lands.
	cachedStatusMsg struct {
		report *models.StatusReport
	}
	// treeChangedMsg fires when the watcher reports a settled burst of
	// filesystem events.
	treeChangedMsg struct{}
	spinTickMsg    struct{}
	errMsg         struct{ err error }
)
