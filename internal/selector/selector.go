// Package selector implements the cascading filter selector: metric kind,
// date and a time constrained to the selected date, plus the grouping knobs.
package selector

import (
	"strconv"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// Field names one filter parameter.
type Field uint8

const (
	FieldMetricKind Field = 1 << iota
	FieldDate
	FieldTime
	FieldMaxGroupSize
	FieldStabilityThreshold
)

// Changed is the set of fields touched by one mutation.
type Changed uint8

// Has reports whether f is in the set.
func (c Changed) Has(f Field) bool { return c&Changed(f) != 0 }

// Empty reports whether no field changed.
func (c Changed) Empty() bool { return c == 0 }

// Selector holds the current filter selection against a fixed option set.
// The zero value has no options and rejects every edit.
type Selector struct {
	opts   model.AvailableOptions
	params model.FilterParameters
	loaded bool
}

// New returns a selector seeded with the grouping defaults and no options.
func New() *Selector {
	return &Selector{params: model.FilterParameters{
		MaxGroupSize:              model.DefaultMaxGroupSize,
		StabilityThresholdPercent: model.DefaultStabilityThreshold,
	}}
}

// Reset installs a freshly loaded option set and selects the first date, the
// first time of that date and the first metric kind. Empty lists leave the
// field unset. Grouping parameters are kept.
func (s *Selector) Reset(opts model.AvailableOptions) model.FilterParameters {
	s.opts = opts
	s.loaded = true
	s.params.MetricKind = first(opts.MetricKinds)
	s.params.Date = first(opts.Dates)
	s.params.Time = first(opts.TimesFor(s.params.Date))
	if s.params.MaxGroupSize < 1 {
		s.params.MaxGroupSize = model.DefaultMaxGroupSize
	}
	return s.params
}

// Loaded reports whether options were installed.
func (s *Selector) Loaded() bool { return s.loaded }

// Options returns the installed option set.
func (s *Selector) Options() model.AvailableOptions { return s.opts }

// Params returns the current selection snapshot.
func (s *Selector) Params() model.FilterParameters { return s.params }

// Times returns the times selectable for the current date.
func (s *Selector) Times() []string { return s.opts.TimesFor(s.params.Date) }

// SetMetricKind selects a listed metric kind. Date and time are untouched.
func (s *Selector) SetMetricKind(kind string) (model.FilterParameters, Changed, error) {
	if !s.loaded || !s.opts.HasMetricKind(kind) {
		return s.params, 0, &model.InvalidSelectionError{Field: "metric", Value: kind}
	}
	if kind == s.params.MetricKind {
		return s.params, 0, nil
	}
	s.params.MetricKind = kind
	return s.params, Changed(FieldMetricKind), nil
}

// SetDate selects a listed date. When the current time is not available on
// the new date it is reset to that date's first time, or unset.
func (s *Selector) SetDate(date string) (model.FilterParameters, Changed, error) {
	if !s.loaded || !s.opts.HasDate(date) {
		return s.params, 0, &model.InvalidSelectionError{Field: "date", Value: date}
	}
	if date == s.params.Date {
		return s.params, 0, nil
	}
	changed := Changed(FieldDate)
	s.params.Date = date
	times := s.opts.TimesFor(date)
	if indexOf(times, s.params.Time) < 0 {
		s.params.Time = first(times)
		changed |= Changed(FieldTime)
	}
	return s.params, changed, nil
}

// SetTime selects a time listed for the current date.
func (s *Selector) SetTime(tm string) (model.FilterParameters, Changed, error) {
	if !s.loaded || s.params.Date == "" || indexOf(s.Times(), tm) < 0 {
		return s.params, 0, &model.InvalidSelectionError{Field: "time", Value: tm}
	}
	if tm == s.params.Time {
		return s.params, 0, nil
	}
	s.params.Time = tm
	return s.params, Changed(FieldTime), nil
}

// Select sets metric kind, date and time in one edit. Nothing changes when
// any of them is not listed.
func (s *Selector) Select(kind, date, tm string) (model.FilterParameters, Changed, error) {
	if !s.loaded || !s.opts.HasMetricKind(kind) {
		return s.params, 0, &model.InvalidSelectionError{Field: "metric", Value: kind}
	}
	if !s.opts.HasDate(date) {
		return s.params, 0, &model.InvalidSelectionError{Field: "date", Value: date}
	}
	if indexOf(s.opts.TimesFor(date), tm) < 0 {
		return s.params, 0, &model.InvalidSelectionError{Field: "time", Value: tm}
	}
	var changed Changed
	if kind != s.params.MetricKind {
		changed |= Changed(FieldMetricKind)
	}
	if date != s.params.Date {
		changed |= Changed(FieldDate)
	}
	if tm != s.params.Time {
		changed |= Changed(FieldTime)
	}
	s.params.MetricKind, s.params.Date, s.params.Time = kind, date, tm
	return s.params, changed, nil
}

// SetMaxGroupSize sets the grouping size limit (n >= 1).
func (s *Selector) SetMaxGroupSize(n int) (model.FilterParameters, Changed, error) {
	if n < 1 || n > model.DefaultMaxGroupSizeLimit {
		return s.params, 0, &model.InvalidSelectionError{Field: "max group size", Value: strconv.Itoa(n)}
	}
	if n == s.params.MaxGroupSize {
		return s.params, 0, nil
	}
	s.params.MaxGroupSize = n
	return s.params, Changed(FieldMaxGroupSize), nil
}

// SetStabilityThreshold sets the stability threshold percent in [0, 100].
func (s *Selector) SetStabilityThreshold(p float64) (model.FilterParameters, Changed, error) {
	if p < 0 || p > 100 || p != p {
		return s.params, 0, &model.InvalidSelectionError{Field: "stability threshold", Value: strconv.FormatFloat(p, 'f', -1, 64)}
	}
	if p == s.params.StabilityThresholdPercent {
		return s.params, 0, nil
	}
	s.params.StabilityThresholdPercent = p
	return s.params, Changed(FieldStabilityThreshold), nil
}

// CycleMetricKind moves the metric selection by delta, wrapping around.
func (s *Selector) CycleMetricKind(delta int) (model.FilterParameters, Changed, error) {
	next, ok := cycle(s.opts.MetricKinds, s.params.MetricKind, delta)
	if !ok {
		return s.params, 0, nil
	}
	return s.SetMetricKind(next)
}

// CycleDate moves the date selection by delta, wrapping around.
func (s *Selector) CycleDate(delta int) (model.FilterParameters, Changed, error) {
	next, ok := cycle(s.opts.Dates, s.params.Date, delta)
	if !ok {
		return s.params, 0, nil
	}
	return s.SetDate(next)
}

// CycleTime moves the time selection by delta within the current date.
func (s *Selector) CycleTime(delta int) (model.FilterParameters, Changed, error) {
	next, ok := cycle(s.Times(), s.params.Time, delta)
	if !ok {
		return s.params, 0, nil
	}
	return s.SetTime(next)
}

// StepMaxGroupSize adds delta to the group size, clamped to the valid range.
func (s *Selector) StepMaxGroupSize(delta int) (model.FilterParameters, Changed, error) {
	n := s.params.MaxGroupSize + delta
	n = max(1, min(n, model.DefaultMaxGroupSizeLimit))
	return s.SetMaxGroupSize(n)
}

// StepStabilityThreshold adds delta to the threshold, clamped to [0, 100].
func (s *Selector) StepStabilityThreshold(delta float64) (model.FilterParameters, Changed, error) {
	p := s.params.StabilityThresholdPercent + delta
	p = max(0, min(p, 100))
	return s.SetStabilityThreshold(p)
}

func cycle(list []string, current string, delta int) (string, bool) {
	if len(list) == 0 || delta == 0 {
		return "", false
	}
	idx := indexOf(list, current)
	if idx < 0 {
		return list[0], true
	}
	n := len(list)
	idx = ((idx+delta)%n + n) % n
	return list[idx], true
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}
