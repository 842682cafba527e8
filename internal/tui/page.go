package tui

import tea "github.com/charmbracelet/bubbletea"

// Page IDs.
const (
	PageExplorer = "explorer"
	PageCache    = "cache"
	PageSaved    = "saved"
)

// Page represents a top-level screen in the TUI (explorer, cache slots,
// saved groupings).
type Page interface {
	ID() string
	Init() tea.Cmd
	// Update receives key input only while the page is active. Every other
	// message reaches all pages so background results are never lost.
	Update(msg tea.Msg) (tea.Cmd, *PageNav)
	View(width, height int) string
}

// PageNav is returned from Update to request a page switch.
type PageNav struct {
	PageID string
}
