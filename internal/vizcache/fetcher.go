package vizcache

import (
	"context"
	"fmt"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// APIFetcher fetches slots from the analysis service. Images are spooled;
// JSON results become payload handles.
type APIFetcher struct {
	api   model.AnalysisQuerier
	spool *Spool
}

// NewAPIFetcher returns a fetcher backed by api that spools images to spool.
func NewAPIFetcher(api model.AnalysisQuerier, spool *Spool) *APIFetcher {
	return &APIFetcher{api: api, spool: spool}
}

func (f *APIFetcher) Fetch(ctx context.Context, slot model.Slot, params model.FilterParameters) (Handle, error) {
	if !params.Complete() {
		return nil, &model.InvalidSelectionError{Field: "filters", Value: string(model.FingerprintFor(slot.Kind, params))}
	}

	switch slot.Kind {
	case model.KindStatistics:
		rows, err := f.api.Statistics(ctx, params)
		if err != nil {
			return nil, err
		}
		return NewPayload(rows, int64(len(rows))), nil
	case model.KindGroups:
		groups, err := f.api.Groups(ctx, params)
		if err != nil {
			return nil, err
		}
		return NewPayload(groups, int64(len(groups))), nil
	case model.KindRawData:
		rows, err := f.api.RawData(ctx, params)
		if err != nil {
			return nil, err
		}
		return NewPayload(rows, int64(len(rows))), nil
	case model.KindSplitServices:
		services, err := f.api.SplitServices(ctx, params)
		if err != nil {
			return nil, err
		}
		return NewPayload(services, int64(len(services))), nil
	}

	if !slot.Kind.IsImage() {
		return nil, fmt.Errorf("vizcache: unsupported kind %s", slot.Kind)
	}
	img, err := f.api.Chart(ctx, slot.Kind, params, slot.SubKey)
	if err != nil {
		return nil, err
	}
	h, err := f.spool.Write(slot, img)
	if err != nil {
		return nil, err
	}
	return h, nil
}
