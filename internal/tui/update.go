package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/tinytelemetry/loadlens/internal/explorer"
	"github.com/tinytelemetry/loadlens/internal/model"
)

// Init starts the options load.
func (m *ExplorerModel) Init() tea.Cmd {
	if m.session.OptionsReady() || m.optionsLoading {
		return nil
	}
	return tea.Batch(m.loadOptionsCmd(), m.startSpinnerIfNeeded())
}

// Update handles messages.
func (m *ExplorerModel) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return nil, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case optionsLoadedMsg:
		m.optionsLoading = false
		reqs := m.session.ApplyOptions(msg.opts, msg.err)
		if msg.err != nil {
			m.setStatus("options unavailable: "+model.FailureReason(msg.err)+" (r to retry)", true)
			return nil, nil
		}
		m.setStatus("options loaded", false)
		return m.runRequests(reqs), nil

	case slotResultMsg:
		c := msg.completion
		if gen, ok := m.inFlight[c.Slot]; ok && gen == c.Generation {
			delete(m.inFlight, c.Slot)
		}
		follow := m.session.Apply(c)
		return m.runRequests(follow), nil

	case commandResultMsg:
		m.commandBusy = false
		if msg.err != nil {
			m.setStatus(model.FailureReason(msg.err), true)
			return nil, nil
		}
		m.setStatus(msg.text, false)
		if !msg.stale {
			return nil, nil
		}
		return m.runRequests(m.session.InvalidateAll()), nil

	case openSavedMsg:
		reqs, err := m.session.OpenSaved(msg.grouping)
		if err != nil {
			m.setStatus("saved grouping "+msg.grouping.String()+": "+model.FailureReason(err), true)
			return nil, nil
		}
		m.content.GotoTop()
		m.setStatus("showing saved grouping "+msg.grouping.String(), false)
		return m.runRequests(reqs), nil

	case SpinnerTickMsg:
		return m.handleSpinnerTick(), nil
	}
	return nil, nil
}

func (m *ExplorerModel) handleKeyPress(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return tea.Quit, nil
	}
	if modal := m.TopModal(); modal != nil {
		pop, cmd := modal.Update(msg)
		if pop {
			m.PopModal()
		}
		return cmd, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit, nil
	case key.Matches(msg, m.keys.Help):
		m.PushModal(newHelpModal(m.keys))
		return nil, nil
	case key.Matches(msg, m.keys.CachePage):
		return nil, &PageNav{PageID: PageCache}
	case key.Matches(msg, m.keys.SavedPage):
		return nil, &PageNav{PageID: PageSaved}
	case key.Matches(msg, m.keys.NextSection), key.Matches(msg, m.keys.PrevSection):
		if m.activeSection == SectionFilters {
			m.activeSection = SectionContent
		} else {
			m.activeSection = SectionFilters
		}
		return nil, nil
	case key.Matches(msg, m.keys.NextTab):
		return m.activateTab(m.session.Active().Next(1)), nil
	case key.Matches(msg, m.keys.PrevTab):
		return m.activateTab(m.session.Active().Next(-1)), nil
	case key.Matches(msg, m.keys.Retry):
		return m.retry(), nil
	case key.Matches(msg, m.keys.Normalize):
		return m.normalize(), nil
	case key.Matches(msg, m.keys.AutoNormalize):
		return m.autoNormalize(), nil
	case key.Matches(msg, m.keys.SaveGrouping):
		return m.saveGrouping(), nil
	}

	if len(msg.Runes) == 1 && msg.Runes[0] >= '1' && msg.Runes[0] <= '9' {
		idx := int(msg.Runes[0] - '1')
		if idx < len(explorer.Tabs) {
			return m.activateTab(explorer.Tabs[idx]), nil
		}
	}

	if m.activeSection == SectionFilters {
		return m.handleFilterKey(msg), nil
	}
	return m.handleContentKey(msg), nil
}

func (m *ExplorerModel) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.filterCursor = max(0, m.filterCursor-1)
	case key.Matches(msg, m.keys.Down):
		m.filterCursor = min(len(filterFields)-1, m.filterCursor+1)
	case key.Matches(msg, m.keys.Left):
		return m.stepFilter(-1)
	case key.Matches(msg, m.keys.Right):
		return m.stepFilter(1)
	}
	return nil
}

func (m *ExplorerModel) handleContentKey(msg tea.KeyMsg) tea.Cmd {
	tab := m.session.Active()
	switch {
	case key.Matches(msg, m.keys.Left):
		return m.runRequests(m.session.CycleSubKey(tab, -1))
	case key.Matches(msg, m.keys.Right):
		return m.runRequests(m.session.CycleSubKey(tab, 1))
	case key.Matches(msg, m.keys.Up):
		m.content.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.content.ScrollDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.content.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.content.PageDown()
	}
	return nil
}

func (m *ExplorerModel) stepFilter(delta int) tea.Cmd {
	if !m.session.OptionsReady() {
		m.setStatus("filters are disabled until options load", true)
		return nil
	}
	field := filterFields[m.filterCursor]
	reqs, err := m.session.Step(field, delta)
	if err != nil {
		m.setStatus(model.FailureReason(err), true)
		return nil
	}
	return m.runRequests(reqs)
}

func (m *ExplorerModel) activateTab(tab explorer.Tab) tea.Cmd {
	m.content.GotoTop()
	return m.runRequests(m.session.Activate(tab))
}

func (m *ExplorerModel) retry() tea.Cmd {
	if !m.session.OptionsReady() {
		if m.optionsLoading {
			return nil
		}
		m.setStatus("reloading options", false)
		return tea.Batch(m.loadOptionsCmd(), m.startSpinnerIfNeeded())
	}
	reqs := m.session.Retry(m.session.Active())
	m.logger.Debug("retry", zap.String("tab", m.session.Active().Title()), zap.Int("requests", len(reqs)))
	return m.runRequests(reqs)
}

func (m *ExplorerModel) normalize() tea.Cmd {
	p := m.session.Params()
	if !p.Complete() {
		m.setStatus("select metric, date and time first", true)
		return nil
	}
	commands := m.commands
	return m.commandCmd("normalize", true, func(ctx context.Context) (string, error) {
		res, err := commands.Normalize(ctx, p.MetricKind, p.Date, p.Time)
		if err != nil {
			return "", err
		}
		return res.Message, nil
	})
}

func (m *ExplorerModel) autoNormalize() tea.Cmd {
	p := m.session.Params()
	if p.Date == "" || p.Time == "" {
		m.setStatus("select date and time first", true)
		return nil
	}
	commands := m.commands
	return m.commandCmd("auto-normalize", true, func(ctx context.Context) (string, error) {
		res, err := commands.AutoNormalize(ctx, p.Date, p.Time)
		if err != nil {
			return "", err
		}
		msg := fmt.Sprintf("key resource %s, scaling factor %.3f", res.KeyResource, res.ScalingFactor)
		if res.Message != "" {
			msg = res.Message + " (" + msg + ")"
		}
		return msg, nil
	})
}

// saveGrouping stores the grouping of the current selection server-side.
func (m *ExplorerModel) saveGrouping() tea.Cmd {
	p := m.session.Params()
	if !p.Complete() {
		m.setStatus("select metric, date and time first", true)
		return nil
	}
	commands := m.commands
	return m.commandCmd("save grouping", false, func(ctx context.Context) (string, error) {
		res, err := commands.SaveGrouping(ctx, p)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("saved %d groups of %d services for %s %s %s (g to browse)",
			res.GroupCount, res.ServiceCount, p.MetricKind, p.Date, p.Time), nil
	})
}
