package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const helpText = `Load Explorer Help

NAVIGATION:
  Tab/Shift+Tab  - Switch between filters and content
  [ / ]          - Previous / next visualization tab
  up/down or k/j - Move between filters, scroll content
  left/right     - Change the selected filter, or the group / service
                   shown by Distribution and Base/Peak

ACTIONS:
  r              - Retry the failed tab (or the options load)
  n              - Normalize the selected metric, date and time
  N              - Auto-normalize the selected date and time
  s              - Save the grouping of the current selection
  g              - Browse saved groupings; enter opens one here
  c              - Show cached slots and their generations
  ?              - Toggle this help
  q/Ctrl+C       - Quit

TABS:
  Group Load     - Load of each service group over time
  Stability      - Stability of each group against the threshold
  Statistics     - Mean / peak load per group
  Distribution   - Load distribution inside one group
  Microservices  - Raw per-service load (ignores grouping filters)
  Base/Peak      - Base and peak components of a split service
  Raw Data       - Stored per-service values of the snapshot

CACHING:
  Every tab keeps its last result until a filter it depends on changes.
  Switching tabs never refetches a ready result. Only the most recently
  issued request for a tab can update it.
`

// helpModal shows key bindings in a scrollable viewport.
type helpModal struct {
	vp   viewport.Model
	keys KeyMap
}

func newHelpModal(keys KeyMap) *helpModal {
	return &helpModal{vp: viewport.New(0, 0), keys: keys}
}

func (h *helpModal) ID() string { return "help" }

func (h *helpModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return false, nil
	}
	switch {
	case key.Matches(km, h.keys.Escape), key.Matches(km, h.keys.Help), key.Matches(km, h.keys.Quit):
		return true, nil
	case key.Matches(km, h.keys.Up):
		h.vp.ScrollUp(1)
	case key.Matches(km, h.keys.Down):
		h.vp.ScrollDown(1)
	case key.Matches(km, h.keys.PageUp):
		h.vp.PageUp()
	case key.Matches(km, h.keys.PageDown):
		h.vp.PageDown()
	}
	return false, nil
}

func (h *helpModal) View(width, height int) string {
	modalWidth := max(width-8, 20)
	modalHeight := max(height-4, 8)
	contentWidth := modalWidth - 4
	contentHeight := modalHeight - 4

	h.vp.Width = contentWidth
	h.vp.Height = contentHeight
	h.vp.SetContent(lipgloss.NewStyle().Width(contentWidth).Render(helpText))

	contentPane := lipgloss.NewStyle().
		Width(contentWidth).
		Height(contentHeight).
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		Render(h.vp.View())

	header := lipgloss.NewStyle().
		Width(contentWidth).
		Foreground(ColorBlue).
		Bold(true).
		Render("Help")

	statusBar := mutedStyle.Render("up/down: Scroll | PgUp/PgDn: Page | ?: Toggle Help | ESC: Close")

	modal := lipgloss.JoinVertical(lipgloss.Left, header, contentPane, statusBar)

	finalModal := lipgloss.NewStyle().
		Width(modalWidth).
		Height(modalHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Render(modal)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, finalModal)
}
