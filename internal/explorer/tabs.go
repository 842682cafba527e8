package explorer

import "github.com/tinytelemetry/loadlens/internal/model"

// Tab is one visualization view.
type Tab int

const (
	TabGroupLoad Tab = iota
	TabStability
	TabStatistics
	TabDistribution
	TabMicroservices
	TabBasePeak
	TabRawData
)

// Tabs lists every tab in display order.
var Tabs = []Tab{TabGroupLoad, TabStability, TabStatistics, TabDistribution, TabMicroservices, TabBasePeak, TabRawData}

var tabInfo = map[Tab]struct {
	kind  model.VisualizationKind
	aux   model.VisualizationKind
	title string
}{
	TabGroupLoad:     {kind: model.KindGroupLoad, aux: -1, title: "Group Load"},
	TabStability:     {kind: model.KindStability, aux: -1, title: "Stability"},
	TabStatistics:    {kind: model.KindStatistics, aux: -1, title: "Statistics"},
	TabDistribution:  {kind: model.KindDistribution, aux: model.KindGroups, title: "Distribution"},
	TabMicroservices: {kind: model.KindMicroserviceSeries, aux: -1, title: "Microservices"},
	TabBasePeak:      {kind: model.KindBasePeakComponent, aux: model.KindSplitServices, title: "Base/Peak"},
	TabRawData:       {kind: model.KindRawData, aux: -1, title: "Raw Data"},
}

// Kind returns the visualization kind the tab shows.
func (t Tab) Kind() model.VisualizationKind { return tabInfo[t].kind }

// Title returns the tab label.
func (t Tab) Title() string {
	if info, ok := tabInfo[t]; ok {
		return info.title
	}
	return "?"
}

// Aux returns the list kind feeding the tab's sub-selection.
func (t Tab) Aux() (model.VisualizationKind, bool) {
	info, ok := tabInfo[t]
	if !ok || info.aux < 0 {
		return 0, false
	}
	return info.aux, true
}

// Next returns the tab delta positions away, wrapping around.
func (t Tab) Next(delta int) Tab {
	n := len(Tabs)
	return Tabs[((int(t)+delta)%n+n)%n]
}
