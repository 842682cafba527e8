package selector

import (
	"errors"
	"testing"

	"github.com/tinytelemetry/loadlens/internal/model"
)

func testOptions() model.AvailableOptions {
	return model.AvailableOptions{
		Dates: []string{"2024-01-01", "2024-01-02", "2024-01-03"},
		TimesByDate: map[string][]string{
			"2024-01-01": {"10:00", "11:00"},
			"2024-01-02": {"11:00", "12:00"},
			"2024-01-03": {},
		},
		MetricKinds: []string{"CPU", "RAM", "CHANNEL"},
	}
}

func TestReset_SelectsFirstValues(t *testing.T) {
	t.Parallel()

	s := New()
	p := s.Reset(model.AvailableOptions{
		Dates:       []string{"2024-01-01"},
		TimesByDate: map[string][]string{"2024-01-01": {"10:00", "11:00"}},
		MetricKinds: []string{"CPU"},
	})
	if p.Date != "2024-01-01" || p.Time != "10:00" || p.MetricKind != "CPU" {
		t.Fatalf("initial params = %+v, want 2024-01-01 10:00 CPU", p)
	}
	if p.MaxGroupSize != model.DefaultMaxGroupSize {
		t.Fatalf("max group size = %d, want %d", p.MaxGroupSize, model.DefaultMaxGroupSize)
	}
}

func TestReset_EmptyListsLeaveFieldsUnset(t *testing.T) {
	t.Parallel()

	s := New()
	p := s.Reset(model.AvailableOptions{TimesByDate: map[string][]string{}})
	if p.Date != "" || p.Time != "" || p.MetricKind != "" {
		t.Fatalf("params = %+v, want all unset", p)
	}
	if _, _, err := s.SetTime("10:00"); !errors.Is(err, model.ErrInvalidSelection) {
		t.Fatalf("SetTime without date err = %v, want invalid selection", err)
	}
}

func TestSetDate_KeepsTimeWhenAvailable(t *testing.T) {
	t.Parallel()

	s := New()
	s.Reset(testOptions())
	if _, _, err := s.SetTime("11:00"); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	p, changed, err := s.SetDate("2024-01-02")
	if err != nil {
		t.Fatalf("SetDate: %v", err)
	}
	if p.Time != "11:00" {
		t.Fatalf("time = %q, want 11:00", p.Time)
	}
	if changed.Has(FieldTime) {
		t.Fatal("time should not be reported as changed")
	}
}

func TestSetDate_ResetsMissingTime(t *testing.T) {
	t.Parallel()

	s := New()
	s.Reset(testOptions())
	p, changed, err := s.SetDate("2024-01-02")
	if err != nil {
		t.Fatalf("SetDate: %v", err)
	}
	if p.Time != "11:00" {
		t.Fatalf("time = %q, want first time 11:00", p.Time)
	}
	if !changed.Has(FieldDate) || !changed.Has(FieldTime) {
		t.Fatalf("changed = %b, want date and time", changed)
	}

	p, _, err = s.SetDate("2024-01-03")
	if err != nil {
		t.Fatalf("SetDate: %v", err)
	}
	if p.Time != "" {
		t.Fatalf("time = %q, want unset for a date with no times", p.Time)
	}
}

func TestSetDate_UnknownIsNoOp(t *testing.T) {
	t.Parallel()

	s := New()
	before := s.Reset(testOptions())
	p, changed, err := s.SetDate("1999-12-31")
	if !errors.Is(err, model.ErrInvalidSelection) {
		t.Fatalf("err = %v, want invalid selection", err)
	}
	if p != before || !changed.Empty() {
		t.Fatalf("params changed on rejected edit: %+v -> %+v", before, p)
	}
}

func TestSetTime_MustBelongToDate(t *testing.T) {
	t.Parallel()

	s := New()
	s.Reset(testOptions())
	if _, _, err := s.SetTime("12:00"); !errors.Is(err, model.ErrInvalidSelection) {
		t.Fatalf("SetTime(12:00) err = %v, want invalid selection", err)
	}
	if got := s.Params().Time; got != "10:00" {
		t.Fatalf("time = %q, want 10:00", got)
	}
}

func TestSetMetricKind(t *testing.T) {
	t.Parallel()

	s := New()
	s.Reset(testOptions())
	p, changed, err := s.SetMetricKind("RAM")
	if err != nil {
		t.Fatalf("SetMetricKind: %v", err)
	}
	if p.MetricKind != "RAM" || changed != Changed(FieldMetricKind) {
		t.Fatalf("metric = %q changed = %b", p.MetricKind, changed)
	}
	if _, _, err := s.SetMetricKind("GPU"); !errors.Is(err, model.ErrInvalidSelection) {
		t.Fatalf("SetMetricKind(GPU) err = %v, want invalid selection", err)
	}
}

func TestGroupingBounds(t *testing.T) {
	t.Parallel()

	s := New()
	s.Reset(testOptions())
	if _, _, err := s.SetMaxGroupSize(0); err == nil {
		t.Fatal("SetMaxGroupSize(0) should fail")
	}
	if _, _, err := s.SetStabilityThreshold(100.5); err == nil {
		t.Fatal("SetStabilityThreshold(100.5) should fail")
	}
	_, changed, err := s.SetStabilityThreshold(35)
	if err != nil || !changed.Has(FieldStabilityThreshold) {
		t.Fatalf("SetStabilityThreshold(35) changed=%b err=%v", changed, err)
	}
	p, _, _ := s.StepMaxGroupSize(-100)
	if p.MaxGroupSize != 1 {
		t.Fatalf("max group size = %d, want clamped to 1", p.MaxGroupSize)
	}
}

func TestCycleWraps(t *testing.T) {
	t.Parallel()

	s := New()
	s.Reset(testOptions())
	p, _, err := s.CycleMetricKind(-1)
	if err != nil {
		t.Fatalf("CycleMetricKind: %v", err)
	}
	if p.MetricKind != "CHANNEL" {
		t.Fatalf("metric = %q, want CHANNEL", p.MetricKind)
	}
	p, _, _ = s.CycleTime(1)
	if p.Time != "11:00" {
		t.Fatalf("time = %q, want 11:00", p.Time)
	}
	p, _, _ = s.CycleTime(1)
	if p.Time != "10:00" {
		t.Fatalf("time = %q, want wrap to 10:00", p.Time)
	}
}

func TestSelect_Atomic(t *testing.T) {
	t.Parallel()

	s := New()
	s.Reset(testOptions())

	p, changed, err := s.Select("RAM", "2024-01-02", "12:00")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.MetricKind != "RAM" || p.Date != "2024-01-02" || p.Time != "12:00" {
		t.Fatalf("params = %+v", p)
	}
	if !changed.Has(FieldMetricKind) || !changed.Has(FieldDate) || !changed.Has(FieldTime) {
		t.Fatalf("changed = %b, want metric, date and time", changed)
	}

	// A time not listed for the date leaves everything untouched.
	if _, _, err := s.Select("CPU", "2024-01-01", "12:00"); !errors.Is(err, model.ErrInvalidSelection) {
		t.Fatalf("Select bad time err = %v, want invalid selection", err)
	}
	if got := s.Params(); got.MetricKind != "RAM" || got.Date != "2024-01-02" {
		t.Fatalf("params after rejected select = %+v", got)
	}

	if _, changed, _ := s.Select("RAM", "2024-01-02", "12:00"); !changed.Empty() {
		t.Fatalf("reselect changed = %b, want empty", changed)
	}
	if _, _, err := New().Select("CPU", "2024-01-01", "10:00"); err == nil {
		t.Fatal("Select before options load should fail")
	}
}
