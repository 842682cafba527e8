package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"go.uber.org/zap"

	"github.com/tinytelemetry/loadlens/internal/explorer"
	"github.com/tinytelemetry/loadlens/internal/model"
	"github.com/tinytelemetry/loadlens/internal/selector"
	"github.com/tinytelemetry/loadlens/internal/vizcache"
)

// Section represents the focusable areas of the explorer.
type Section int

const (
	SectionFilters Section = iota // left filter sidebar
	SectionContent                // active tab content
)

// filterFields is the sidebar order.
var filterFields = []selector.Field{
	selector.FieldMetricKind,
	selector.FieldDate,
	selector.FieldTime,
	selector.FieldMaxGroupSize,
	selector.FieldStabilityThreshold,
}

// Deps are the collaborators of the explorer page.
type Deps struct {
	Session  *explorer.Session
	Commands model.AnalysisCommander
	Logger   *zap.Logger
	// Context bounds background fetches. Defaults to context.Background.
	Context context.Context
	// CommandTimeout bounds normalize and save calls. Zero means no extra
	// bound.
	CommandTimeout time.Duration
}

// ModalStackState holds the modal stack; the top modal receives all input.
type ModalStackState struct {
	modalStack []Modal
}

// StatusState holds the transient status line.
type StatusState struct {
	statusText  string
	statusErr   bool
	statusAt    time.Time
	commandBusy bool
}

// ExplorerModel is the main explorer page.
type ExplorerModel struct {
	ModalStackState
	StatusState

	session  *explorer.Session
	commands model.AnalysisCommander
	logger   *zap.Logger
	ctx      context.Context
	keys     KeyMap

	commandTimeout time.Duration

	width  int
	height int

	activeSection Section
	filterCursor  int

	optionsLoading bool
	inFlight       map[model.Slot]uint64
	spinnerActive  bool

	content  viewport.Model
	previews *previewCache
}

// optionsLoadedMsg carries the result of an options load.
type optionsLoadedMsg struct {
	opts model.AvailableOptions
	err  error
}

// slotResultMsg carries one finished fetch back to the event loop.
type slotResultMsg struct {
	completion vizcache.Completion
}

// commandResultMsg carries the outcome of a command. stale is set when the
// command rewrote server-side data.
type commandResultMsg struct {
	text  string
	stale bool
	err   error
}

// openSavedMsg asks the explorer to show a saved grouping's snapshot.
type openSavedMsg struct {
	grouping model.SavedGrouping
}

// SpinnerTickMsg triggers a re-render for loading spinners.
type SpinnerTickMsg struct{}

// NewExplorerModel creates the explorer page.
func NewExplorerModel(deps Deps) *ExplorerModel {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &ExplorerModel{
		session:        deps.Session,
		commands:       deps.Commands,
		logger:         logger.With(zap.String("mod", "tui")),
		ctx:            ctx,
		keys:           DefaultKeyMap(),
		commandTimeout: deps.CommandTimeout,
		activeSection:  SectionContent,
		inFlight:       make(map[model.Slot]uint64),
		content:        viewport.New(0, 0),
		previews:       newPreviewCache(),
	}
}

func (m *ExplorerModel) ID() string { return PageExplorer }

// PushModal pushes a modal unless one with the same ID is already on top.
func (m *ExplorerModel) PushModal(modal Modal) {
	if top := m.TopModal(); top != nil && top.ID() == modal.ID() {
		return
	}
	m.modalStack = append(m.modalStack, modal)
}

// PopModal removes the top modal.
func (m *ExplorerModel) PopModal() {
	if len(m.modalStack) > 0 {
		m.modalStack = m.modalStack[:len(m.modalStack)-1]
	}
}

// TopModal returns the top modal or nil.
func (m *ExplorerModel) TopModal() Modal {
	if len(m.modalStack) == 0 {
		return nil
	}
	return m.modalStack[len(m.modalStack)-1]
}

func (m *ExplorerModel) setStatus(text string, isErr bool) {
	m.statusText = text
	m.statusErr = isErr
	m.statusAt = time.Now()
}
