package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loadlens/internal/selector"
)

const sidebarWidth = 26

type filterLine struct {
	label string
	value string
	// position is "i/n" for list fields, empty for numeric ones.
	position string
}

func (m *ExplorerModel) filterLines() []filterLine {
	p := m.session.Params()
	opts := m.session.Options()
	lines := make([]filterLine, 0, len(filterFields))
	for _, f := range filterFields {
		switch f {
		case selector.FieldMetricKind:
			lines = append(lines, filterLine{"Metric", p.MetricKind, position(opts.MetricKinds, p.MetricKind)})
		case selector.FieldDate:
			lines = append(lines, filterLine{"Date", p.Date, position(opts.Dates, p.Date)})
		case selector.FieldTime:
			lines = append(lines, filterLine{"Time", p.Time, position(m.session.Times(), p.Time)})
		case selector.FieldMaxGroupSize:
			lines = append(lines, filterLine{"Max group size", strconv.Itoa(p.MaxGroupSize), ""})
		case selector.FieldStabilityThreshold:
			lines = append(lines, filterLine{"Stability %", strconv.FormatFloat(p.StabilityThresholdPercent, 'f', -1, 64), ""})
		}
	}
	return lines
}

func position(list []string, v string) string {
	for i, item := range list {
		if item == v {
			return fmt.Sprintf("%d/%d", i+1, len(list))
		}
	}
	if len(list) == 0 {
		return "none"
	}
	return fmt.Sprintf("-/%d", len(list))
}

// renderSidebar renders the filter selectors in the left sidebar.
func (m *ExplorerModel) renderSidebar(height int) string {
	style := lipgloss.NewStyle().
		Width(sidebarWidth-2).
		Height(height).
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		Padding(0, 1)

	focused := m.activeSection == SectionFilters
	if focused {
		style = style.BorderForeground(ColorBlue)
	}

	lines := []string{sectionStyle.Render("Filters"), ""}
	enabled := m.session.OptionsReady()
	maxValue := sidebarWidth - 8
	for i, fl := range m.filterLines() {
		value := fl.value
		if value == "" {
			value = "-"
		}
		if len(value) > maxValue && maxValue > 3 {
			value = value[:maxValue-1] + "~"
		}
		label := "  " + fl.label
		if focused && m.filterCursor == i {
			label = cursorStyle.Render("> " + fl.label)
		}
		valueLine := "    ‹ " + value + " ›"
		if !enabled {
			valueLine = mutedStyle.Render("    " + value)
		}
		lines = append(lines, label, valueLine)
		if fl.position != "" {
			lines = append(lines, mutedStyle.Render("    "+fl.position))
		}
		lines = append(lines, "")
	}

	switch {
	case m.optionsLoading:
		lines = append(lines, mutedStyle.Render("loading options..."))
	case m.session.OptionsErr() != nil:
		lines = append(lines, errorStyle.Render("options unavailable"), mutedStyle.Render("r to retry"))
	}

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
