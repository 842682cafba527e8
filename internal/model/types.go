package model

// FilterParameters is the immutable snapshot of the filter selectors taken at
// request time. A new value is produced on every selector edit.
type FilterParameters struct {
	MetricKind                string
	Date                      string
	Time                      string
	MaxGroupSize              int     // >= 1
	StabilityThresholdPercent float64 // [0, 100]
}

// Complete reports whether the string fields required by every remote query
// are selected.
func (p FilterParameters) Complete() bool {
	return p.MetricKind != "" && p.Date != "" && p.Time != ""
}

// AvailableOptions holds the selectable filter values reported by the remote
// service. Loaded once per session and treated as read-only afterwards.
type AvailableOptions struct {
	Dates       []string
	TimesByDate map[string][]string
	MetricKinds []string
}

// TimesFor returns the ordered times available for date (nil when unknown).
func (o AvailableOptions) TimesFor(date string) []string {
	if o.TimesByDate == nil {
		return nil
	}
	return o.TimesByDate[date]
}

// HasDate reports whether date is one of the listed dates.
func (o AvailableOptions) HasDate(date string) bool {
	return contains(o.Dates, date)
}

// HasMetricKind reports whether kind is one of the listed metric kinds.
func (o AvailableOptions) HasMetricKind(kind string) bool {
	return contains(o.MetricKinds, kind)
}

// GroupDescriptor is one group produced by the remote grouping run.
type GroupDescriptor struct {
	ID       int
	Services []string
}

// GroupStatistics is one row of the per-group statistics table.
type GroupStatistics struct {
	GroupID          int
	ServiceCount     int
	MeanLoad         float64
	PeakLoad         float64
	StabilityPercent float64
	Services         []string
}

// NormalizeResult is the confirmation returned by the normalize operation.
type NormalizeResult struct {
	Message string
}

// AutoNormalizeResult is returned by the auto-normalization operation: the
// resource found to dominate the load and the factor applied to it.
type AutoNormalizeResult struct {
	KeyResource   string
	ScalingFactor float64
	Message       string
}

// ChartImage is a binary chart payload as returned by the remote service.
type ChartImage struct {
	ContentType string
	Data        []byte
}

// RawSeries is the unprocessed load of one service at one snapshot.
type RawSeries struct {
	Service    string
	MetricKind string
	Date       string
	Time       string
	Values     []float64
}

// SavedGrouping identifies a grouping run stored by the analysis service.
type SavedGrouping struct {
	MetricKind string
	Date       string
	Time       string
	GroupCount int
}

func (g SavedGrouping) String() string {
	return g.MetricKind + " " + g.Date + " " + g.Time
}

// SavedMember is one stored member of a saved group. Component is
// "original", "base" or "peak".
type SavedMember struct {
	Service   string
	Component string
	Values    []float64
}

// SavedGroupLoad is the stored per-member load of one saved group.
type SavedGroupLoad struct {
	GroupID int
	Members []SavedMember
}

// SaveResult confirms a stored grouping run.
type SaveResult struct {
	GroupCount   int
	ServiceCount int
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
