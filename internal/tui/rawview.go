package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// renderRawData lists each service's stored values in a scrollable table.
func (m *ExplorerModel) renderRawData(rows []model.RawSeries, width, height int) string {
	if len(rows) == 0 {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, mutedStyle.Render("no raw data"))
	}
	m.content.Width = width
	m.content.Height = height
	m.content.SetContent(renderRawTable(rows, width))
	return m.content.View()
}

func renderRawTable(rows []model.RawSeries, width int) string {
	header := fmt.Sprintf("%-20s %6s %10s %10s  %s", "Service", "Points", "Mean", "Peak", "Values")
	lines := []string{sectionStyle.Render(header)}
	fixed := lipgloss.Width(header) - len("Values")
	for _, r := range rows {
		mean, peak := summarize(r.Values)
		values := formatValues(r.Values)
		if room := width - fixed; room > 3 && len(values) > room {
			values = values[:room-1] + "~"
		}
		lines = append(lines, fmt.Sprintf("%-20s %6d %10.2f %10.2f  %s",
			truncate(r.Service, 20), len(r.Values), mean, peak, values))
	}
	return strings.Join(lines, "\n")
}

// summarize returns the mean and maximum of values, zero when empty.
func summarize(values []float64) (mean, peak float64) {
	if len(values) == 0 {
		return 0, 0
	}
	peak = values[0]
	sum := 0.0
	for _, v := range values {
		sum += v
		peak = max(peak, v)
	}
	return sum / float64(len(values)), peak
}

func formatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "~"
}
