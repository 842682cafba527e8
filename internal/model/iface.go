package model

import "context"

// OptionsSource loads the selectable filter values.
type OptionsSource interface {
	AvailableOptions(ctx context.Context) (AvailableOptions, error)
}

// AnalysisQuerier provides the cached, parameter-scoped read queries.
type AnalysisQuerier interface {
	Groups(ctx context.Context, params FilterParameters) ([]GroupDescriptor, error)
	SplitServices(ctx context.Context, params FilterParameters) ([]string, error)
	Statistics(ctx context.Context, params FilterParameters) ([]GroupStatistics, error)
	RawData(ctx context.Context, params FilterParameters) ([]RawSeries, error)
	// Chart fetches the image for an image kind. subKey is the group id for
	// KindDistribution and the service name for KindBasePeakComponent.
	Chart(ctx context.Context, kind VisualizationKind, params FilterParameters, subKey string) (ChartImage, error)
}

// AnalysisCommander provides the uncached, fire-and-forget operations.
type AnalysisCommander interface {
	Normalize(ctx context.Context, metricKind, date, time string) (NormalizeResult, error)
	AutoNormalize(ctx context.Context, date, time string) (AutoNormalizeResult, error)
	// SaveGrouping runs the grouping for params and stores it server-side.
	SaveGrouping(ctx context.Context, params FilterParameters) (SaveResult, error)
}

// SavedGroupingSource browses grouping runs stored by the service.
type SavedGroupingSource interface {
	SavedGroupings(ctx context.Context) ([]SavedGrouping, error)
	SavedStatistics(ctx context.Context, g SavedGrouping) ([]GroupStatistics, error)
	SavedGroupLoad(ctx context.Context, g SavedGrouping, groupID int) (SavedGroupLoad, error)
}

// AnalysisAPI is the full remote analysis service contract consumed by the client.
type AnalysisAPI interface {
	OptionsSource
	AnalysisQuerier
	AnalysisCommander
	SavedGroupingSource
}
