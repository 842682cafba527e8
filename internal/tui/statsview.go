package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loadlens/internal/model"
)

var (
	meanBarStyle  = lipgloss.NewStyle().Foreground(ColorBlue).Background(ColorBlue)
	peakBarStyle  = lipgloss.NewStyle().Foreground(ColorOrange).Background(ColorOrange)
	emptyBarStyle = lipgloss.NewStyle().Foreground(ColorGray).Background(ColorGray)
)

// renderStatistics draws a stacked mean/peak bar per group above a
// scrollable table.
func (m *ExplorerModel) renderStatistics(rows []model.GroupStatistics, width, height int) string {
	if len(rows) == 0 {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, mutedStyle.Render("no groups"))
	}

	chartHeight := min(10, max(height/2-2, 3))
	chart := renderStatsChart(rows, width, chartHeight)
	legend := lipgloss.JoinHorizontal(lipgloss.Top,
		meanBarStyle.Render("  "), " mean  ",
		peakBarStyle.Render("  "), " peak",
	)

	tableHeight := max(height-lipgloss.Height(chart)-lipgloss.Height(legend)-1, 2)
	m.content.Width = width
	m.content.Height = tableHeight
	m.content.SetContent(renderStatsTable(rows, width))

	return lipgloss.JoinVertical(lipgloss.Left, chart, legend, "", m.content.View())
}

func renderStatsChart(rows []model.GroupStatistics, width, height int) string {
	barWidth := 3
	maxBars := max(width/(barWidth+1), 1)
	bc := barchart.New(width, height,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)

	for i, r := range rows {
		if i >= maxBars {
			break
		}
		values := []barchart.BarValue{
			{Name: "mean", Value: max(r.MeanLoad, 0), Style: meanBarStyle},
		}
		if extra := r.PeakLoad - r.MeanLoad; extra > 0 {
			values = append(values, barchart.BarValue{Name: "peak", Value: extra, Style: peakBarStyle})
		}
		if r.MeanLoad <= 0 && r.PeakLoad <= 0 {
			values = []barchart.BarValue{{Name: "empty", Value: 0, Style: emptyBarStyle}}
		}
		bc.Push(barchart.BarData{Label: fmt.Sprintf("%d", r.GroupID), Values: values})
	}

	bc.Draw()
	return bc.View()
}

func renderStatsTable(rows []model.GroupStatistics, width int) string {
	header := fmt.Sprintf("%-6s %-8s %10s %10s %10s  %s", "Group", "Services", "Mean", "Peak", "Stability", "Members")
	lines := []string{sectionStyle.Render(header)}
	fixed := lipgloss.Width(header) - len("Members")
	for _, r := range rows {
		members := strings.Join(r.Services, ", ")
		if room := width - fixed; room > 3 && len(members) > room {
			members = members[:room-1] + "~"
		}
		stability := "n/a"
		if r.StabilityPercent >= 0 {
			stability = fmt.Sprintf("%.1f%%", r.StabilityPercent)
		}
		lines = append(lines, fmt.Sprintf("%-6d %-8d %10.2f %10.2f %10s  %s",
			r.GroupID, r.ServiceCount, r.MeanLoad, r.PeakLoad, stability, members))
	}
	return strings.Join(lines, "\n")
}
