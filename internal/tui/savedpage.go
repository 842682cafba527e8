package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// SavedDeps are the collaborators of the saved groupings page.
type SavedDeps struct {
	Source  model.SavedGroupingSource
	Logger  *zap.Logger
	Context context.Context
}

// SavedPage browses grouping runs stored by the analysis service. Results
// are fetched on demand and never cached.
type SavedPage struct {
	src    model.SavedGroupingSource
	logger *zap.Logger
	ctx    context.Context
	keys   KeyMap
	vp     viewport.Model

	list    []model.SavedGrouping
	listErr error
	loading bool
	cursor  int

	// Detail of list[cursor]. Replies carrying an older seq are dropped.
	seq      uint64
	stats    []model.GroupStatistics
	statsErr error
	groupIdx int

	loadSeq uint64
	load    *model.SavedGroupLoad
	loadErr error
}

type savedListMsg struct {
	list []model.SavedGrouping
	err  error
}

type savedStatsMsg struct {
	seq  uint64
	rows []model.GroupStatistics
	err  error
}

type savedLoadMsg struct {
	seq  uint64
	load model.SavedGroupLoad
	err  error
}

// NewSavedPage creates the saved groupings page.
func NewSavedPage(deps SavedDeps) *SavedPage {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &SavedPage{
		src:    deps.Source,
		logger: logger.With(zap.String("mod", "tui.saved")),
		ctx:    ctx,
		keys:   DefaultKeyMap(),
		vp:     viewport.New(0, 0),
	}
}

func (p *SavedPage) ID() string { return PageSaved }

// Init reloads the list each time the page is shown.
func (p *SavedPage) Init() tea.Cmd {
	if p.loading {
		return nil
	}
	p.loading = true
	src, ctx := p.src, p.ctx
	return func() tea.Msg {
		list, err := src.SavedGroupings(ctx)
		return savedListMsg{list: list, err: err}
	}
}

func (p *SavedPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case savedListMsg:
		p.loading = false
		p.list, p.listErr = msg.list, msg.err
		if msg.err != nil {
			p.logger.Warn("saved groupings load failed", zap.Error(msg.err))
		}
		p.cursor = min(p.cursor, max(len(p.list)-1, 0))
		return p.selectRow(), nil

	case savedStatsMsg:
		if msg.seq != p.seq {
			return nil, nil
		}
		p.stats, p.statsErr = msg.rows, msg.err
		p.groupIdx = 0
		return p.loadGroup(), nil

	case savedLoadMsg:
		if msg.seq != p.loadSeq {
			return nil, nil
		}
		if msg.err != nil {
			p.load, p.loadErr = nil, msg.err
			return nil, nil
		}
		load := msg.load
		p.load, p.loadErr = &load, nil
		return nil, nil

	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return nil, nil
}

func (p *SavedPage) handleKey(km tea.KeyMsg) (tea.Cmd, *PageNav) {
	switch {
	case key.Matches(km, p.keys.ForceQuit), key.Matches(km, p.keys.Quit):
		return tea.Quit, nil
	case key.Matches(km, p.keys.Escape), key.Matches(km, p.keys.SavedPage):
		return nil, &PageNav{PageID: PageExplorer}
	case key.Matches(km, p.keys.Retry):
		return p.Init(), nil
	case key.Matches(km, p.keys.Up):
		if p.cursor > 0 {
			p.cursor--
			return p.selectRow(), nil
		}
	case key.Matches(km, p.keys.Down):
		if p.cursor < len(p.list)-1 {
			p.cursor++
			return p.selectRow(), nil
		}
	case key.Matches(km, p.keys.Left):
		return p.cycleGroup(-1), nil
	case key.Matches(km, p.keys.Right):
		return p.cycleGroup(1), nil
	case key.Matches(km, p.keys.PageUp):
		p.vp.PageUp()
	case key.Matches(km, p.keys.PageDown):
		p.vp.PageDown()
	case key.Matches(km, p.keys.Open):
		if len(p.list) == 0 {
			return nil, nil
		}
		g := p.list[p.cursor]
		return func() tea.Msg { return openSavedMsg{grouping: g} }, &PageNav{PageID: PageExplorer}
	}
	return nil, nil
}

// selectRow starts loading the statistics of the row under the cursor.
func (p *SavedPage) selectRow() tea.Cmd {
	p.seq++
	p.loadSeq++
	p.stats, p.statsErr = nil, nil
	p.load, p.loadErr = nil, nil
	p.groupIdx = 0
	p.vp.GotoTop()
	if len(p.list) == 0 {
		return nil
	}
	g, seq := p.list[p.cursor], p.seq
	src, ctx := p.src, p.ctx
	return func() tea.Msg {
		rows, err := src.SavedStatistics(ctx, g)
		return savedStatsMsg{seq: seq, rows: rows, err: err}
	}
}

func (p *SavedPage) cycleGroup(delta int) tea.Cmd {
	n := len(p.stats)
	if n == 0 {
		return nil
	}
	p.groupIdx = ((p.groupIdx+delta)%n + n) % n
	return p.loadGroup()
}

// loadGroup fetches the member loads of the selected group.
func (p *SavedPage) loadGroup() tea.Cmd {
	p.loadSeq++
	p.load, p.loadErr = nil, nil
	if len(p.stats) == 0 || len(p.list) == 0 {
		return nil
	}
	g, id, seq := p.list[p.cursor], p.stats[p.groupIdx].GroupID, p.loadSeq
	src, ctx := p.src, p.ctx
	return func() tea.Msg {
		load, err := src.SavedGroupLoad(ctx, g, id)
		return savedLoadMsg{seq: seq, load: load, err: err}
	}
}

func (p *SavedPage) View(width, height int) string {
	if width <= 0 || height <= 0 {
		return "Initializing..."
	}
	header := titleStyle.Render("Saved groupings")
	footer := mutedStyle.Render("↑/↓: select | ←/→: group | enter: open in explorer | r: reload | esc/g: back | q: quit")
	list := p.renderList(width, max(height/3, 3))

	p.vp.Width = width
	p.vp.Height = max(height-lipgloss.Height(header)-lipgloss.Height(list)-lipgloss.Height(footer)-3, 1)
	p.vp.SetContent(p.renderDetail(width))
	return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", p.vp.View(), footer)
}

func (p *SavedPage) renderList(width, height int) string {
	switch {
	case p.listErr != nil:
		return errorStyle.Render("saved groupings unavailable: " + model.FailureReason(p.listErr) + " (r to retry)")
	case p.loading && len(p.list) == 0:
		return renderLoadingPlaceholder("Loading saved groupings", width, 1)
	case len(p.list) == 0:
		return mutedStyle.Render("no saved groupings yet; press s in the explorer to save one")
	}

	// Keep the cursor inside the visible window.
	start := max(0, p.cursor-height+1)
	end := min(len(p.list), start+height)
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		g := p.list[i]
		line := fmt.Sprintf("%-12s %-12s %-10s %4d groups", g.MetricKind, g.Date, g.Time, g.GroupCount)
		if i == p.cursor {
			lines = append(lines, cursorStyle.Render("> "+line))
		} else {
			lines = append(lines, "  "+line)
		}
	}
	return strings.Join(lines, "\n")
}

func (p *SavedPage) renderDetail(width int) string {
	if len(p.list) == 0 {
		return ""
	}
	if p.statsErr != nil {
		return errorStyle.Render("statistics unavailable: " + model.FailureReason(p.statsErr))
	}
	if p.stats == nil {
		return mutedStyle.Render("loading statistics...")
	}

	parts := []string{renderStatsTable(p.stats, width), ""}
	if len(p.stats) == 0 {
		return strings.Join(parts, "\n")
	}
	id := p.stats[p.groupIdx].GroupID
	parts = append(parts, sectionStyle.Render(fmt.Sprintf("Group: ‹ %d › (%d/%d)", id, p.groupIdx+1, len(p.stats)))+mutedStyle.Render("  ←/→ to change"))
	switch {
	case p.loadErr != nil:
		parts = append(parts, errorStyle.Render("group load unavailable: "+model.FailureReason(p.loadErr)))
	case p.load == nil:
		parts = append(parts, mutedStyle.Render("loading group..."))
	default:
		parts = append(parts, renderMembers(p.load.Members))
	}
	return strings.Join(parts, "\n")
}

func renderMembers(members []model.SavedMember) string {
	lines := []string{sectionStyle.Render(fmt.Sprintf("%-20s %-9s %10s %10s", "Service", "Component", "Mean", "Peak"))}
	for _, m := range members {
		mean, peak := summarize(m.Values)
		lines = append(lines, fmt.Sprintf("%-20s %-9s %10.2f %10.2f", truncate(m.Service, 20), m.Component, mean, peak))
	}
	return strings.Join(lines, "\n")
}
