package explorer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/tinytelemetry/loadlens/internal/model"
	"github.com/tinytelemetry/loadlens/internal/selector"
	"github.com/tinytelemetry/loadlens/internal/vizcache"
)

// ErrOptionsUnavailable is reported by every tab while options failed to load.
var ErrOptionsUnavailable = errors.New("options unavailable")

// TabView is what a tab should render right now.
type TabView struct {
	Tab    Tab
	Entry  vizcache.Entry
	Aux    vizcache.Entry
	SubKey string
	// Waiting is set when the tab has nothing to show yet: options are
	// missing, a filter is unset or the sub-selection list is not ready.
	Waiting string
	Err     error
}

// Session is the per-session exploration controller. All methods except
// RetryOptions are expected to run on one event loop.
type Session struct {
	src     model.OptionsSource
	orch    *vizcache.Orchestrator
	sel     *selector.Selector
	logger  *zap.Logger
	active  Tab
	subKeys map[Tab]string

	optionsErr error
}

// NewSession builds a session over orch. Options are installed later with
// ApplyOptions or RetryOptions.
func NewSession(src model.OptionsSource, orch *vizcache.Orchestrator, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		src:     src,
		orch:    orch,
		sel:     selector.New(),
		logger:  logger.With(zap.String("mod", "explorer")),
		active:  TabGroupLoad,
		subKeys: make(map[Tab]string),
	}
}

// Params returns the current filter snapshot.
func (s *Session) Params() model.FilterParameters { return s.sel.Params() }

// Options returns the loaded options.
func (s *Session) Options() model.AvailableOptions { return s.sel.Options() }

// Times returns the times selectable for the current date.
func (s *Session) Times() []string { return s.sel.Times() }

// OptionsReady reports whether options loaded successfully.
func (s *Session) OptionsReady() bool { return s.sel.Loaded() && s.optionsErr == nil }

// OptionsErr returns the last options load failure.
func (s *Session) OptionsErr() error { return s.optionsErr }

// Active returns the active tab.
func (s *Session) Active() Tab { return s.active }

// Cache exposes the slot cache for read-only inspection.
func (s *Session) Cache() *vizcache.Cache { return s.orch.Cache() }

// ApplyOptions installs the result of LoadOptions. On failure every tab is
// disabled until a later load succeeds.
func (s *Session) ApplyOptions(opts model.AvailableOptions, err error) []*vizcache.Request {
	if err != nil {
		s.optionsErr = err
		s.logger.Warn("options load failed", zap.Error(err))
		return nil
	}
	s.optionsErr = nil
	prev := s.sel.Params()
	params := s.sel.Reset(opts)
	s.logger.Info("options loaded",
		zap.Int("dates", len(opts.Dates)),
		zap.Int("metrics", len(opts.MetricKinds)),
		zap.String("date", params.Date),
		zap.String("time", params.Time),
		zap.String("metric", params.MetricKind))
	if prev != params {
		s.invalidate(params)
	}
	return s.Activate(s.active)
}

// LoadOptions fetches options without installing them. It blocks and may be
// called from any goroutine; pass the result to ApplyOptions.
func (s *Session) LoadOptions(ctx context.Context) (model.AvailableOptions, error) {
	return LoadOptions(ctx, s.src)
}

// RetryOptions reloads options synchronously and installs the result.
func (s *Session) RetryOptions(ctx context.Context) ([]*vizcache.Request, error) {
	opts, err := s.LoadOptions(ctx)
	return s.ApplyOptions(opts, err), err
}

// Run performs req. It blocks and may be called from any goroutine.
func (s *Session) Run(ctx context.Context, req *vizcache.Request) vizcache.Completion {
	return s.orch.Run(ctx, req)
}

// Activate makes tab active and ensures its slots. Returned requests must be
// run and their completions passed to Apply.
func (s *Session) Activate(tab Tab) []*vizcache.Request {
	s.active = tab
	if !s.OptionsReady() {
		return nil
	}
	params := s.sel.Params()
	if !params.Complete() {
		return nil
	}

	var reqs []*vizcache.Request
	auxKind, hasAux := tab.Aux()
	if !hasAux {
		_, req := s.ensure(model.NewSlot(tab.Kind(), ""), params)
		return appendReq(reqs, req)
	}

	aux, req := s.ensure(model.NewSlot(auxKind, ""), params)
	reqs = appendReq(reqs, req)
	if aux.Status != vizcache.StatusReady {
		return reqs
	}
	key := s.resolveSubKey(tab, aux)
	if key == "" {
		return reqs
	}
	_, req = s.ensure(model.NewSlot(tab.Kind(), key), params)
	return appendReq(reqs, req)
}

// ensure leaves a failed slot alone until it is invalidated or retried.
func (s *Session) ensure(slot model.Slot, params model.FilterParameters) (vizcache.Entry, *vizcache.Request) {
	e, ok := s.orch.Cache().Get(slot)
	if ok && e.Status == vizcache.StatusFailed && e.Fingerprint == model.FingerprintFor(slot.Kind, params) {
		return e, nil
	}
	return s.orch.Ensure(slot, params)
}

// SelectSubKey picks the group id or service name shown by tab. The slot of
// the previous selection is evicted.
func (s *Session) SelectSubKey(tab Tab, key string) ([]*vizcache.Request, error) {
	if !tab.Kind().HasSubKey() {
		return nil, &model.InvalidSelectionError{Field: tab.Kind().String(), Value: key}
	}
	if keys := s.SubKeys(tab); keys != nil && indexOf(keys, key) < 0 {
		return nil, &model.InvalidSelectionError{Field: tab.Kind().String(), Value: key}
	}
	prev := s.subKeys[tab]
	s.subKeys[tab] = key
	if prev != "" && prev != key {
		s.orch.Cache().Evict(model.NewSlot(tab.Kind(), prev))
	}
	if tab != s.active {
		return nil, nil
	}
	return s.Activate(tab), nil
}

// CycleSubKey moves tab's sub-selection by delta within the loaded list.
func (s *Session) CycleSubKey(tab Tab, delta int) []*vizcache.Request {
	keys := s.SubKeys(tab)
	if len(keys) == 0 {
		return nil
	}
	idx := indexOf(keys, s.subKeys[tab])
	n := len(keys)
	idx = ((idx+delta)%n + n) % n
	reqs, _ := s.SelectSubKey(tab, keys[idx])
	return reqs
}

// SubKeys returns the selectable sub-keys for tab, or nil while its list is
// not ready.
func (s *Session) SubKeys(tab Tab) []string {
	auxKind, ok := tab.Aux()
	if !ok {
		return nil
	}
	e, ok := s.orch.Cache().Get(model.NewSlot(auxKind, ""))
	if !ok || e.Status != vizcache.StatusReady {
		return nil
	}
	return subKeysOf(e)
}

// Retry re-fetches the tab's failed or stale content. A failed sub-selection
// list is retried before the view itself.
func (s *Session) Retry(tab Tab) []*vizcache.Request {
	s.active = tab
	if !s.OptionsReady() {
		return nil
	}
	params := s.sel.Params()
	if !params.Complete() {
		return nil
	}
	if auxKind, ok := tab.Aux(); ok {
		auxSlot := model.NewSlot(auxKind, "")
		aux, _ := s.orch.Cache().Get(auxSlot)
		if aux.Status != vizcache.StatusReady {
			_, req := s.orch.Refresh(auxSlot, params)
			return appendReq(nil, req)
		}
		key := s.resolveSubKey(tab, aux)
		if key == "" {
			return nil
		}
		_, req := s.orch.Refresh(model.NewSlot(tab.Kind(), key), params)
		return appendReq(nil, req)
	}
	_, req := s.orch.Refresh(model.NewSlot(tab.Kind(), ""), params)
	return appendReq(nil, req)
}

// Apply writes a completion and returns follow-up requests, such as the
// view fetch once a sub-selection list arrives.
func (s *Session) Apply(c vizcache.Completion) []*vizcache.Request {
	if !s.orch.Apply(c) {
		return nil
	}
	auxKind, ok := s.active.Aux()
	if ok && c.Slot.Kind == auxKind && c.Err == nil {
		return s.Activate(s.active)
	}
	return nil
}

// View describes what tab shows.
func (s *Session) View(tab Tab) TabView {
	v := TabView{Tab: tab}
	if s.optionsErr != nil {
		v.Err = ErrOptionsUnavailable
		return v
	}
	if !s.sel.Loaded() {
		v.Waiting = "loading options"
		return v
	}
	if !s.sel.Params().Complete() {
		v.Waiting = "select metric, date and time"
		return v
	}
	if auxKind, ok := tab.Aux(); ok {
		v.Aux, _ = s.orch.Cache().Get(model.NewSlot(auxKind, ""))
		switch v.Aux.Status {
		case vizcache.StatusFailed:
			v.Err = v.Aux.Err
			return v
		case vizcache.StatusReady:
		default:
			v.Waiting = "loading " + auxKind.String()
			return v
		}
		v.SubKey = s.subKeys[tab]
		if v.SubKey == "" {
			v.Waiting = "nothing to select"
			return v
		}
	}
	v.Entry, _ = s.orch.Cache().Get(model.NewSlot(tab.Kind(), v.SubKey))
	if v.Entry.Status == vizcache.StatusFailed {
		v.Err = v.Entry.Err
	}
	return v
}

// SetMetricKind changes the metric and refreshes the active tab.
func (s *Session) SetMetricKind(kind string) ([]*vizcache.Request, error) {
	return s.edit(s.sel.SetMetricKind(kind))
}

// SetDate changes the date and refreshes the active tab.
func (s *Session) SetDate(date string) ([]*vizcache.Request, error) {
	return s.edit(s.sel.SetDate(date))
}

// SetTime changes the time and refreshes the active tab.
func (s *Session) SetTime(tm string) ([]*vizcache.Request, error) {
	return s.edit(s.sel.SetTime(tm))
}

// OpenSaved selects the snapshot of a saved grouping and shows its group
// load. Grouping parameters are kept.
func (s *Session) OpenSaved(g model.SavedGrouping) ([]*vizcache.Request, error) {
	params, changed, err := s.sel.Select(g.MetricKind, g.Date, g.Time)
	if err != nil {
		s.logger.Debug("saved grouping rejected", zap.Stringer("grouping", g), zap.Error(err))
		return nil, err
	}
	if !changed.Empty() && s.OptionsReady() {
		s.invalidate(params)
	}
	return s.Activate(TabGroupLoad), nil
}

// SetMaxGroupSize changes the grouping size and refreshes the active tab.
func (s *Session) SetMaxGroupSize(n int) ([]*vizcache.Request, error) {
	return s.edit(s.sel.SetMaxGroupSize(n))
}

// SetStabilityThreshold changes the stability threshold and refreshes the
// active tab.
func (s *Session) SetStabilityThreshold(p float64) ([]*vizcache.Request, error) {
	return s.edit(s.sel.SetStabilityThreshold(p))
}

// Step moves one filter field by delta: list fields cycle, numeric fields
// step and clamp.
func (s *Session) Step(field selector.Field, delta int) ([]*vizcache.Request, error) {
	switch field {
	case selector.FieldMetricKind:
		return s.edit(s.sel.CycleMetricKind(delta))
	case selector.FieldDate:
		return s.edit(s.sel.CycleDate(delta))
	case selector.FieldTime:
		return s.edit(s.sel.CycleTime(delta))
	case selector.FieldMaxGroupSize:
		return s.edit(s.sel.StepMaxGroupSize(delta))
	case selector.FieldStabilityThreshold:
		return s.edit(s.sel.StepStabilityThreshold(float64(delta) * model.DefaultStabilityStepPercent))
	}
	return nil, fmt.Errorf("explorer: unknown field %d", field)
}

func (s *Session) edit(params model.FilterParameters, changed selector.Changed, err error) ([]*vizcache.Request, error) {
	if err != nil {
		s.logger.Debug("selection rejected", zap.Error(err))
		return nil, err
	}
	if changed.Empty() || !s.OptionsReady() {
		return nil, nil
	}
	s.invalidate(params)
	return s.Activate(s.active), nil
}

// invalidate evicts every slot whose fingerprint no longer matches params.
func (s *Session) invalidate(params model.FilterParameters) {
	evicted := s.orch.Cache().InvalidateWhere(func(e vizcache.Entry) bool {
		return e.Fingerprint != model.FingerprintFor(e.Slot.Kind, params)
	})
	if len(evicted) > 0 {
		s.logger.Debug("slots invalidated", zap.Int("count", len(evicted)))
	}
}

// InvalidateAll drops every cached slot and re-ensures the active tab. Used
// after server-side data changes such as normalization.
func (s *Session) InvalidateAll() []*vizcache.Request {
	s.orch.Cache().InvalidateWhere(func(vizcache.Entry) bool { return true })
	return s.Activate(s.active)
}

// Close releases every handle held by the session.
func (s *Session) Close() {
	s.orch.Close()
}

// resolveSubKey returns the tab's sub-key, choosing the first listed one when
// none is selected or the selection left the list.
func (s *Session) resolveSubKey(tab Tab, aux vizcache.Entry) string {
	keys := subKeysOf(aux)
	key := s.subKeys[tab]
	if key != "" && indexOf(keys, key) >= 0 {
		return key
	}
	if len(keys) == 0 {
		delete(s.subKeys, tab)
		return ""
	}
	s.subKeys[tab] = keys[0]
	return keys[0]
}

func subKeysOf(e vizcache.Entry) []string {
	if groups, ok := vizcache.PayloadOf[[]model.GroupDescriptor](e.Handle); ok {
		keys := make([]string, 0, len(groups))
		for _, g := range groups {
			keys = append(keys, strconv.Itoa(g.ID))
		}
		return keys
	}
	if services, ok := vizcache.PayloadOf[[]string](e.Handle); ok {
		return services
	}
	return nil
}

func appendReq(reqs []*vizcache.Request, req *vizcache.Request) []*vizcache.Request {
	if req == nil {
		return reqs
	}
	return append(reqs, req)
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}
