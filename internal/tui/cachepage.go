package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loadlens/internal/model"
	"github.com/tinytelemetry/loadlens/internal/vizcache"
)

// SnapshotSource provides cache entries for inspection.
type SnapshotSource interface {
	Snapshot() []vizcache.Entry
}

// CachePage lists every cached slot with its status and generation.
type CachePage struct {
	cache SnapshotSource
	keys  KeyMap
	vp    viewport.Model
}

// NewCachePage creates the cache inspector page.
func NewCachePage(cache SnapshotSource) *CachePage {
	return &CachePage{cache: cache, keys: DefaultKeyMap(), vp: viewport.New(0, 0)}
}

func (p *CachePage) ID() string { return PageCache }

func (p *CachePage) Init() tea.Cmd { return nil }

func (p *CachePage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil, nil
	}
	switch {
	case key.Matches(km, p.keys.ForceQuit), key.Matches(km, p.keys.Quit):
		return tea.Quit, nil
	case key.Matches(km, p.keys.Escape), key.Matches(km, p.keys.CachePage):
		return nil, &PageNav{PageID: PageExplorer}
	case key.Matches(km, p.keys.Up):
		p.vp.ScrollUp(1)
	case key.Matches(km, p.keys.Down):
		p.vp.ScrollDown(1)
	}
	return nil, nil
}

func (p *CachePage) View(width, height int) string {
	if width <= 0 || height <= 0 {
		return "Initializing..."
	}
	header := titleStyle.Render("Cached slots")
	footer := mutedStyle.Render("esc/c: back | up/down: scroll | q: quit")
	p.vp.Width = width
	p.vp.Height = max(height-lipgloss.Height(header)-lipgloss.Height(footer)-1, 1)
	p.vp.SetContent(renderSnapshot(p.cache.Snapshot()))
	return lipgloss.JoinVertical(lipgloss.Left, header, "", p.vp.View(), footer)
}

func renderSnapshot(entries []vizcache.Entry) string {
	if len(entries) == 0 {
		return mutedStyle.Render("no slots cached yet")
	}
	lines := []string{sectionStyle.Render(fmt.Sprintf("%-28s %-8s %5s %-8s %s", "Slot", "Status", "Gen", "Handle", "Fingerprint / error"))}
	for _, e := range entries {
		status := lipgloss.NewStyle().Foreground(statusColor(entryStatus(e))).Render(fmt.Sprintf("%-8s", entryStatus(e)))
		handle := "-"
		if e.Handle != nil {
			handle = fmt.Sprintf("%s:%d", e.Handle.Kind(), e.Handle.Size())
		}
		detail := string(e.Fingerprint)
		if e.Err != nil {
			detail = model.FailureReason(e.Err)
		}
		lines = append(lines, fmt.Sprintf("%-28s %s %5d %-8s %s", e.Slot, status, e.Generation, handle, detail))
	}
	return strings.Join(lines, "\n")
}

func entryStatus(e vizcache.Entry) string { return e.Status.String() }
