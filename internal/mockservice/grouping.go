package mockservice

import (
	"math"
	"sort"
)

// Component tells which part of a service's load a group member carries.
type Component int

const (
	ComponentOriginal Component = iota
	ComponentBase
	ComponentPeak
)

func (c Component) String() string {
	switch c {
	case ComponentBase:
		return "base"
	case ComponentPeak:
		return "peak"
	}
	return "original"
}

// Member is one series placed in a group.
type Member struct {
	Service   string
	Component Component
	Values    []float64
}

// Label is the member name as listed to clients.
func (m Member) Label() string {
	switch m.Component {
	case ComponentBase:
		return m.Service + " (base)"
	case ComponentPeak:
		return m.Service + " (peak)"
	}
	return m.Service
}

// Group is a set of members whose summed load is stable.
type Group struct {
	ID      int
	Members []Member
	Total   []float64
}

// Stability is the coefficient of variation of the group total, in percent.
func (g Group) Stability() float64 { return coefficientOfVariation(g.Total) }

// FormGroups packs services into groups whose summed load varies less than
// threshold percent. Pairs are tried first, then triples and so on up to
// maxSize, each time taking the most stable disjoint candidates first.
// Services left over are split into base and peak components; bases are
// grouped again and peaks are appended as single-member groups.
func FormGroups(series []Series, maxSize int, threshold float64) []Group {
	if len(series) == 0 {
		return nil
	}
	members := make([]Member, len(series))
	for i, s := range series {
		members[i] = Member{Service: s.Name, Component: ComponentOriginal, Values: s.Values}
	}

	groups, left := packStable(members, maxSize, threshold)
	if len(left) == 0 {
		return number(groups)
	}

	var bases, peaks []Member
	for _, m := range left {
		base, peak := SplitLoad(m.Values)
		bases = append(bases, Member{Service: m.Service, Component: ComponentBase, Values: base})
		if anyPositive(peak) {
			peaks = append(peaks, Member{Service: m.Service, Component: ComponentPeak, Values: peak})
		}
	}

	baseGroups, baseLeft := packStable(bases, maxSize, threshold)
	groups = append(groups, baseGroups...)
	for _, m := range baseLeft {
		groups = append(groups, newGroup([]Member{m}))
	}
	for _, m := range peaks {
		groups = append(groups, newGroup([]Member{m}))
	}
	return number(groups)
}

type candidate struct {
	idx []int
	cv  float64
}

// packStable runs the incremental size search over members and returns the
// formed groups and the members left unassigned, in input order.
func packStable(members []Member, maxSize int, threshold float64) ([]Group, []Member) {
	var groups []Group
	available := make([]int, len(members))
	for i := range available {
		available[i] = i
	}

	for size := 2; size <= min(maxSize, len(members)); size++ {
		if len(available) < size {
			break
		}
		var candidates []candidate
		combinations(available, size, func(idx []int) {
			cv := coefficientOfVariation(sumValues(members, idx))
			if cv < threshold {
				candidates = append(candidates, candidate{idx: append([]int(nil), idx...), cv: cv})
			}
		})
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].cv < candidates[j].cv })

		used := make(map[int]bool)
		for _, c := range candidates {
			if anyUsed(c.idx, used) {
				continue
			}
			group := make([]Member, len(c.idx))
			for i, idx := range c.idx {
				group[i] = members[idx]
				used[idx] = true
			}
			groups = append(groups, newGroup(group))
		}

		next := make([]int, 0, len(available))
		for _, idx := range available {
			if !used[idx] {
				next = append(next, idx)
			}
		}
		available = next
		if len(available) == 0 {
			break
		}
	}

	left := make([]Member, 0, len(available))
	for _, idx := range available {
		left = append(left, members[idx])
	}
	return groups, left
}

// combinations calls fn with every size-k subset of set in lexicographic
// order. The slice passed to fn is reused between calls.
func combinations(set []int, k int, fn func([]int)) {
	if k <= 0 || k > len(set) {
		return
	}
	pos := make([]int, k)
	for i := range pos {
		pos[i] = i
	}
	out := make([]int, k)
	for {
		for i, p := range pos {
			out[i] = set[p]
		}
		fn(out)

		i := k - 1
		for i >= 0 && pos[i] == len(set)-k+i {
			i--
		}
		if i < 0 {
			return
		}
		pos[i]++
		for j := i + 1; j < k; j++ {
			pos[j] = pos[j-1] + 1
		}
	}
}

// SplitLoad separates values into a base capped at the highest non-peak
// value and the excess above it. Peaks are values above mean + 0.1 std,
// widened to adjacent values above the mean.
func SplitLoad(values []float64) (base, peak []float64) {
	base = append([]float64(nil), values...)
	peak = make([]float64, len(values))
	if len(values) == 0 {
		return base, peak
	}
	mean, std := meanStd(values)
	limit := mean + 0.1*std

	first, last := -1, -1
	for i, v := range values {
		if v > limit {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return base, peak
	}

	extreme := make([]bool, len(values))
	for i, v := range values {
		extreme[i] = v > limit
	}
	for i := first - 1; i >= 0 && values[i] > mean; i-- {
		extreme[i] = true
	}
	for i := last + 1; i < len(values) && values[i] > mean; i++ {
		extreme[i] = true
	}

	ceiling, found := 0.0, false
	for i, v := range values {
		if extreme[i] {
			continue
		}
		if !found || v > ceiling {
			ceiling, found = v, true
		}
	}
	if !found {
		ceiling = mean
	}
	for i, v := range values {
		base[i] = math.Min(v, ceiling)
		peak[i] = math.Max(v-ceiling, 0)
	}
	return base, peak
}

func newGroup(members []Member) Group {
	total := make([]float64, len(members[0].Values))
	for _, m := range members {
		for t, v := range m.Values {
			total[t] += v
		}
	}
	return Group{Members: members, Total: total}
}

func number(groups []Group) []Group {
	for i := range groups {
		groups[i].ID = i + 1
	}
	return groups
}

func sumValues(members []Member, idx []int) []float64 {
	total := make([]float64, len(members[idx[0]].Values))
	for _, i := range idx {
		for t, v := range members[i].Values {
			total[t] += v
		}
	}
	return total
}

// coefficientOfVariation returns std/mean in percent, or +Inf for a zero mean.
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}
	mean, std := meanStd(values)
	if mean == 0 {
		return math.Inf(1)
	}
	return std / mean * 100
}

func meanStd(values []float64) (mean, std float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

func anyUsed(idx []int, used map[int]bool) bool {
	for _, i := range idx {
		if used[i] {
			return true
		}
	}
	return false
}

func anyPositive(values []float64) bool {
	for _, v := range values {
		if v > 0 {
			return true
		}
	}
	return false
}
