package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loadlens/internal/explorer"
	"github.com/tinytelemetry/loadlens/internal/model"
	"github.com/tinytelemetry/loadlens/internal/vizcache"
)

const statusTTL = 30 * time.Second

// View renders the explorer page.
func (m *ExplorerModel) View(width, height int) string {
	if width <= 0 || height <= 0 {
		return "Initializing..."
	}
	m.width, m.height = width, height
	if modal := m.TopModal(); modal != nil {
		return modal.View(width, height)
	}

	header := m.renderHeader(width)
	status := m.renderStatusBar(width)
	bodyHeight := max(height-lipgloss.Height(header)-lipgloss.Height(status)-2, 4)

	sidebar := m.renderSidebar(bodyHeight)
	contentWidth := max(width-lipgloss.Width(sidebar)-2, 10)
	content := m.renderContent(contentWidth, bodyHeight)

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

func (m *ExplorerModel) renderHeader(width int) string {
	tabs := make([]string, 0, len(explorer.Tabs))
	active := m.session.Active()
	for i, tab := range explorer.Tabs {
		label := fmt.Sprintf("%d %s", i+1, tab.Title())
		if m.tabLoading(tab) {
			label += " …"
		}
		if tab == active {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(label))
		}
	}
	title := titleStyle.Render("loadlens")
	bar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	return lipgloss.NewStyle().Width(width).Render(lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", bar))
}

// tabLoading reports whether any slot of tab has a fetch outstanding.
func (m *ExplorerModel) tabLoading(tab explorer.Tab) bool {
	for slot := range m.inFlight {
		if slot.Kind == tab.Kind() {
			return true
		}
		if aux, ok := tab.Aux(); ok && slot.Kind == aux {
			return true
		}
	}
	return false
}

func (m *ExplorerModel) renderContent(width, height int) string {
	style := lipgloss.NewStyle().
		Width(width - 2).
		Height(height).
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorGray)
	if m.activeSection == SectionContent {
		style = style.BorderForeground(ColorBlue)
	}

	innerW, innerH := width-2, height
	v := m.session.View(m.session.Active())
	body := m.renderTabBody(v, innerW, innerH)
	return style.Render(body)
}

func (m *ExplorerModel) renderTabBody(v explorer.TabView, width, height int) string {
	if v.Err != nil {
		return m.renderFailure(v, width, height)
	}
	if v.Waiting != "" {
		if m.optionsLoading || v.Aux.Status == vizcache.StatusLoading {
			return renderLoadingPlaceholder(v.Waiting, width, height)
		}
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, mutedStyle.Render(v.Waiting))
	}

	subLine := m.renderSubKeyLine(v, width)
	bodyHeight := height
	if subLine != "" {
		bodyHeight -= lipgloss.Height(subLine)
	}

	var body string
	switch v.Entry.Status {
	case vizcache.StatusReady:
		body = m.renderReady(v, width, bodyHeight)
	case vizcache.StatusLoading:
		body = renderLoadingPlaceholder("Loading "+v.Tab.Title(), width, bodyHeight)
	default:
		body = lipgloss.Place(width, bodyHeight, lipgloss.Center, lipgloss.Center, mutedStyle.Render("not loaded"))
	}
	if subLine == "" {
		return body
	}
	return lipgloss.JoinVertical(lipgloss.Left, subLine, body)
}

func (m *ExplorerModel) renderSubKeyLine(v explorer.TabView, width int) string {
	if !v.Tab.Kind().HasSubKey() {
		return ""
	}
	keys := m.session.SubKeys(v.Tab)
	label := "Group"
	if v.Tab.Kind() == model.KindBasePeakComponent {
		label = "Service"
	}
	line := fmt.Sprintf("%s: ‹ %s › (%s)", label, v.SubKey, position(keys, v.SubKey))
	return lipgloss.NewStyle().Width(width).Render(sectionStyle.Render(line) + mutedStyle.Render("  ←/→ to change"))
}

func (m *ExplorerModel) renderReady(v explorer.TabView, width, height int) string {
	switch h := v.Entry.Handle.(type) {
	case *vizcache.ImageHandle:
		return m.renderImage(h, width, height)
	case *vizcache.PayloadHandle:
		if rows, ok := vizcache.PayloadOf[[]model.GroupStatistics](h); ok {
			return m.renderStatistics(rows, width, height)
		}
		if rows, ok := vizcache.PayloadOf[[]model.RawSeries](h); ok {
			return m.renderRawData(rows, width, height)
		}
	}
	return mutedStyle.Render("nothing to show")
}

func (m *ExplorerModel) renderFailure(v explorer.TabView, width, height int) string {
	reason := model.FailureReason(v.Err)
	if errors.Is(v.Err, explorer.ErrOptionsUnavailable) {
		reason = "options unavailable"
	}
	text := lipgloss.JoinVertical(lipgloss.Center,
		errorStyle.Bold(true).Render(v.Tab.Title()+" failed"),
		"",
		lipgloss.NewStyle().Width(min(width-4, 70)).Align(lipgloss.Center).Render(reason),
		"",
		mutedStyle.Render("press r to retry"),
	)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, text)
}

func (m *ExplorerModel) renderStatusBar(width int) string {
	var parts []string
	if m.statusText != "" && time.Since(m.statusAt) < statusTTL {
		if m.statusErr {
			parts = append(parts, errorStyle.Render(m.statusText))
		} else {
			parts = append(parts, okStyle.Render(m.statusText))
		}
	}
	if n := len(m.inFlight); n > 0 {
		parts = append(parts, fmt.Sprintf("%d fetch(es) in flight", n))
	}
	parts = append(parts, mutedStyle.Render("tab: section | [/]: tabs | ←/→: change | r: retry | n/N: normalize | s: save | g: saved | c: cache | ?: help | q: quit"))
	return lipgloss.NewStyle().Width(width).Render(strings.Join(parts, "  "))
}
