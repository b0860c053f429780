package app

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"github.com/treestat/treestat/internal/config"
	"github.com/treestat/treestat/internal/models"
)

// TestWatchScreenScansAndQuits drives the screen against a real tree.
func TestWatchScreenScansAndQuits(t *testing.T) {
	root := fixtureTree(t)
	cfg := config.DefaultConfig()

	tm := teatest.NewTestModel(
		t,
		New(cfg, root, models.ReportingConfig{Untracked: models.UntrackedNormal}),
		teatest.WithInitialTermSize(120, 40),
	)

	// Wait for the first scan to land.
	teatest.WaitFor(
		t, tm.Output(),
		func(bts []byte) bool {
			return bytes.Contains(bts, []byte("a.txt")) && bytes.Contains(bts, []byte("dir/"))
		},
		teatest.WithCheckInterval(50*time.Millisecond),
		teatest.WithDuration(5*time.Second),
	)

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))

	fm := tm.FinalModel(t)
	m, ok := fm.(*Model)
	if !ok {
		t.Fatal("final model is not *Model")
	}
	if !m.quitting {
		t.Error("model should be quitting after 'q'")
	}
}

// TestWatchScreenCyclesUntrackedMode flips the untracked mode with 'u'
// and expects the expanded listing after the rescan.
func TestWatchScreenCyclesUntrackedMode(t *testing.T) {
	root := fixtureTree(t)
	cfg := config.DefaultConfig()

	tm := teatest.NewTestModel(
		t,
		New(cfg, root, models.ReportingConfig{Untracked: models.UntrackedNormal}),
		teatest.WithInitialTermSize(120, 40),
	)

	teatest.WaitFor(
		t, tm.Output(),
		func(bts []byte) bool {
			return bytes.Contains(bts, []byte("untracked=normal"))
		},
		teatest.WithCheckInterval(50*time.Millisecond),
		teatest.WithDuration(5*time.Second),
	)

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("u")})

	teatest.WaitFor(
		t, tm.Output(),
		func(bts []byte) bool {
			return bytes.Contains(bts, []byte("untracked=all")) && bytes.Contains(bts, []byte("dir/b.txt"))
		},
		teatest.WithCheckInterval(50*time.Millisecond),
		teatest.WithDuration(5*time.Second),
	)

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
}

// TestWatchScreenHelp shows and hides the key reference.
func TestWatchScreenHelp(t *testing.T) {
	root := fixtureTree(t)
	cfg := config.DefaultConfig()

	tm := teatest.NewTestModel(
		t,
		New(cfg, root, models.ReportingConfig{Untracked: models.UntrackedNormal}),
		teatest.WithInitialTermSize(120, 40),
	)

	time.Sleep(100 * time.Millisecond)

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})

	teatest.WaitFor(
		t, tm.Output(),
		func(bts []byte) bool {
			return bytes.Contains(bts, []byte("rescan now"))
		},
		teatest.WithCheckInterval(50*time.Millisecond),
		teatest.WithDuration(3*time.Second),
	)

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	time.Sleep(50 * time.Millisecond)

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))

	fm := tm.FinalModel(t)
	m, ok := fm.(*Model)
	if !ok {
		t.Fatal("final model is not *Model")
	}
	if m.showHelp {
		t.Error("help should be closed after second '?'")
	}
}

// TestWatchScreenRescansOnFileChange exercises the watcher end to end: a
// file created after the first scan shows up without any keypress.
func TestWatchScreenRescansOnFileChange(t *testing.T) {
	root := fixtureTree(t)
	cfg := config.DefaultConfig()
	cfg.WatchDebounceMS = 50

	tm := teatest.NewTestModel(
		t,
		New(cfg, root, models.ReportingConfig{Untracked: models.UntrackedNormal}),
		teatest.WithInitialTermSize(120, 40),
	)

	teatest.WaitFor(
		t, tm.Output(),
		func(bts []byte) bool {
			return bytes.Contains(bts, []byte("a.txt"))
		},
		teatest.WithCheckInterval(50*time.Millisecond),
		teatest.WithDuration(5*time.Second),
	)

	writeFile(t, root, "later.txt", "late arrival\n")

	teatest.WaitFor(
		t, tm.Output(),
		func(bts []byte) bool {
			return bytes.Contains(bts, []byte("later.txt"))
		},
		teatest.WithCheckInterval(100*time.Millisecond),
		teatest.WithDuration(10*time.Second),
	)

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
}
