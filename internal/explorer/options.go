// Package explorer owns the per-session exploration state: the loaded
// options, the filter selection and the visualization tabs backed by the
// slot cache.
package explorer

import (
	"context"
	"fmt"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// LoadOptions fetches and checks the selectable filter values.
func LoadOptions(ctx context.Context, src model.OptionsSource) (model.AvailableOptions, error) {
	opts, err := src.AvailableOptions(ctx)
	if err != nil {
		return model.AvailableOptions{}, fmt.Errorf("explorer: load options: %w", err)
	}
	if err := checkOptions(opts); err != nil {
		return model.AvailableOptions{}, fmt.Errorf("explorer: load options: %w", err)
	}
	return opts, nil
}

func checkOptions(opts model.AvailableOptions) error {
	seen := make(map[string]bool, len(opts.Dates))
	for _, d := range opts.Dates {
		if seen[d] {
			return &model.MalformedResponseError{Op: "options", Reason: fmt.Sprintf("date %q listed twice", d)}
		}
		seen[d] = true
		if _, ok := opts.TimesByDate[d]; !ok {
			return &model.MalformedResponseError{Op: "options", Reason: fmt.Sprintf("missing times for date %q", d)}
		}
	}
	return nil
}
