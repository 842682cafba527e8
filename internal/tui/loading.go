package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/tinytelemetry/loadlens/internal/vizcache"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 120 * time.Millisecond

// renderLoadingPlaceholder renders an animated loading indicator.
// The frame is selected based on the current time so it animates on re-render.
func renderLoadingPlaceholder(label string, width, height int) string {
	frame := spinnerFrames[time.Now().UnixMilli()/120%int64(len(spinnerFrames))]
	text := mutedStyle.Italic(true).Render(frame + " " + label + "...")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, text)
}

// loadOptionsCmd fetches options off the event loop.
func (m *ExplorerModel) loadOptionsCmd() tea.Cmd {
	m.optionsLoading = true
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		opts, err := session.LoadOptions(ctx)
		return optionsLoadedMsg{opts: opts, err: err}
	}
}

// runRequests turns issued requests into concurrent fetch commands. Each
// completion comes back as a slotResultMsg and is applied in Update.
func (m *ExplorerModel) runRequests(reqs []*vizcache.Request) tea.Cmd {
	if len(reqs) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(reqs)+1)
	for _, req := range reqs {
		req := req
		m.inFlight[req.Slot] = req.Generation
		session, ctx := m.session, m.ctx
		cmds = append(cmds, func() tea.Msg {
			return slotResultMsg{completion: session.Run(ctx, req)}
		})
	}
	cmds = append(cmds, m.startSpinnerIfNeeded())
	return tea.Batch(cmds...)
}

// commandCmd runs a command with the configured timeout. stale marks
// commands that rewrite server-side data.
func (m *ExplorerModel) commandCmd(name string, stale bool, run func(ctx context.Context) (string, error)) tea.Cmd {
	if m.commands == nil || m.commandBusy {
		return nil
	}
	m.commandBusy = true
	m.setStatus(name+" running", false)
	ctx, timeout := m.ctx, m.commandTimeout
	logger := m.logger
	return func() tea.Msg {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		text, err := run(ctx)
		if err != nil {
			logger.Warn("command failed", zap.String("command", name), zap.Error(err))
			return commandResultMsg{err: fmt.Errorf("%s: %w", name, err)}
		}
		return commandResultMsg{text: text, stale: stale}
	}
}

// anyLoading returns true while options or any slot fetch is in flight.
func (m *ExplorerModel) anyLoading() bool {
	return m.optionsLoading || len(m.inFlight) > 0
}

// startSpinnerIfNeeded schedules a spinner tick if anything is loading.
func (m *ExplorerModel) startSpinnerIfNeeded() tea.Cmd {
	if m.spinnerActive || !m.anyLoading() {
		return nil
	}
	m.spinnerActive = true
	return tea.Tick(spinnerInterval, func(_ time.Time) tea.Msg {
		return SpinnerTickMsg{}
	})
}

// handleSpinnerTick re-schedules spinner ticks while anything is loading.
func (m *ExplorerModel) handleSpinnerTick() tea.Cmd {
	m.spinnerActive = false
	return m.startSpinnerIfNeeded()
}
