package model

import (
	"net/url"
	"strconv"
)

// VisualizationKind identifies what a cache slot holds.
type VisualizationKind int

const (
	KindGroupLoad VisualizationKind = iota
	KindStability
	KindStatistics
	KindDistribution // sub-key: group id
	KindMicroserviceSeries
	KindBasePeakComponent // sub-key: service name
	KindRawData

	// Auxiliary list kinds. Cached like the others but never shown as a tab;
	// they feed the Distribution and BasePeakComponent sub-selections.
	KindGroups
	KindSplitServices
)

var kindNames = map[VisualizationKind]string{
	KindGroupLoad:          "group-load",
	KindStability:          "stability",
	KindStatistics:         "statistics",
	KindDistribution:       "distribution",
	KindMicroserviceSeries: "microservices",
	KindBasePeakComponent:  "base-peak",
	KindRawData:            "raw-data",
	KindGroups:             "groups",
	KindSplitServices:      "split-services",
}

func (k VisualizationKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HasSubKey reports whether slots of this kind are addressed by a sub-key.
func (k VisualizationKind) HasSubKey() bool {
	return k == KindDistribution || k == KindBasePeakComponent
}

// IsImage reports whether the remote service answers this kind with a chart image.
func (k VisualizationKind) IsImage() bool {
	switch k {
	case KindGroupLoad, KindStability, KindDistribution, KindMicroserviceSeries, KindBasePeakComponent:
		return true
	}
	return false
}

// UsesGrouping reports whether the server response depends on the grouping
// parameters (max group size, stability threshold). Raw per-service views
// ignore them.
func (k VisualizationKind) UsesGrouping() bool {
	switch k {
	case KindMicroserviceSeries, KindBasePeakComponent, KindRawData:
		return false
	}
	return true
}

// Slot is the addressable unit of caching: one kind plus an optional sub-key
// (selected group id or service name).
type Slot struct {
	Kind   VisualizationKind
	SubKey string
}

// NewSlot returns the slot for kind, dropping subKey for kinds without one.
func NewSlot(kind VisualizationKind, subKey string) Slot {
	if !kind.HasSubKey() {
		subKey = ""
	}
	return Slot{Kind: kind, SubKey: subKey}
}

// DistributionSlot returns the slot for the load distribution of one group.
func DistributionSlot(groupID int) Slot {
	return Slot{Kind: KindDistribution, SubKey: strconv.Itoa(groupID)}
}

func (s Slot) String() string {
	if s.SubKey == "" {
		return s.Kind.String()
	}
	return s.Kind.String() + "/" + s.SubKey
}

// Fingerprint is a deterministic serialization of the filter fields that
// affect a kind's server response. Equal fingerprints yield identical
// responses. The encoding is a sorted query string, so it can be used as the
// request query as-is.
type Fingerprint string

// FingerprintFor derives the fingerprint of params for kind.
func FingerprintFor(kind VisualizationKind, params FilterParameters) Fingerprint {
	return Fingerprint(QueryValues(kind, params).Encode())
}

// QueryValues returns the remote query parameters for kind. The sub-key is
// not part of it; callers add group_id / service_name themselves.
func QueryValues(kind VisualizationKind, params FilterParameters) url.Values {
	v := url.Values{}
	v.Set("metric_type", params.MetricKind)
	v.Set("date", params.Date)
	v.Set("time", params.Time)
	if kind.UsesGrouping() {
		v.Set("max_group_size", strconv.Itoa(params.MaxGroupSize))
		v.Set("stability_threshold", strconv.FormatFloat(params.StabilityThresholdPercent, 'f', -1, 64))
	}
	return v
}
