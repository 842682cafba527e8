package mockservice

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// MaxServices bounds the services per snapshot. Grouping enumerates
// combinations, so the cost grows as 2^n.
const MaxServices = 16

// Series is one service's load over the time slots of a snapshot.
type Series struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
}

type snapshotKey struct {
	metric string
	date   string
	time   string
}

// Dataset holds load series per metric, date and time. It is safe for
// concurrent use; normalization rewrites series in place.
type Dataset struct {
	mu       sync.RWMutex
	metrics  []string
	capacity map[string]float64
	dates    []string
	times    map[string][]string
	series   map[snapshotKey][]Series
}

type datasetFile struct {
	Metrics   []string           `yaml:"metrics"`
	Capacity  map[string]float64 `yaml:"capacity"`
	Snapshots []snapshotFile     `yaml:"snapshots"`
}

type snapshotFile struct {
	Date   string              `yaml:"date"`
	Time   string              `yaml:"time"`
	Series map[string][]Series `yaml:"series"`
}

// LoadDataset decodes a YAML dataset.
func LoadDataset(r io.Reader) (*Dataset, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var f datasetFile
	if err := decoder.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("mockservice: dataset is empty")
		}
		return nil, fmt.Errorf("mockservice: decode dataset: %w", err)
	}
	return newDataset(f)
}

// LoadDatasetFile reads a YAML dataset from fs.
func LoadDatasetFile(fs afero.Fs, path string) (*Dataset, error) {
	fh, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mockservice: open dataset: %w", err)
	}
	defer fh.Close()
	return LoadDataset(fh)
}

func newDataset(f datasetFile) (*Dataset, error) {
	if len(f.Metrics) == 0 {
		return nil, fmt.Errorf("mockservice: dataset lists no metrics")
	}
	ds := &Dataset{
		metrics:  append([]string(nil), f.Metrics...),
		capacity: make(map[string]float64, len(f.Metrics)),
		times:    make(map[string][]string),
		series:   make(map[snapshotKey][]Series),
	}
	known := make(map[string]bool, len(f.Metrics))
	for _, m := range f.Metrics {
		known[m] = true
		ds.capacity[m] = 100
		if c, ok := f.Capacity[m]; ok && c > 0 {
			ds.capacity[m] = c
		}
	}

	for _, snap := range f.Snapshots {
		if snap.Date == "" || snap.Time == "" {
			return nil, fmt.Errorf("mockservice: snapshot without date or time")
		}
		for metric, list := range snap.Series {
			if !known[metric] {
				return nil, fmt.Errorf("mockservice: snapshot %s %s: unknown metric %q", snap.Date, snap.Time, metric)
			}
			if err := checkSeries(list); err != nil {
				return nil, fmt.Errorf("mockservice: snapshot %s %s %s: %w", snap.Date, snap.Time, metric, err)
			}
			ds.series[snapshotKey{metric, snap.Date, snap.Time}] = cloneSeries(list)
		}
		ds.addTime(snap.Date, snap.Time)
	}
	sort.Strings(ds.dates)
	for d := range ds.times {
		sort.Strings(ds.times[d])
	}
	return ds, nil
}

func checkSeries(list []Series) error {
	if len(list) == 0 {
		return fmt.Errorf("no services")
	}
	if len(list) > MaxServices {
		return fmt.Errorf("%d services, at most %d supported", len(list), MaxServices)
	}
	slots := len(list[0].Values)
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		if s.Name == "" {
			return fmt.Errorf("service without name")
		}
		if seen[s.Name] {
			return fmt.Errorf("service %q listed twice", s.Name)
		}
		seen[s.Name] = true
		if len(s.Values) == 0 || len(s.Values) != slots {
			return fmt.Errorf("service %q has %d slots, want %d", s.Name, len(s.Values), slots)
		}
		for _, v := range s.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return fmt.Errorf("service %q has invalid value %v", s.Name, v)
			}
		}
	}
	return nil
}

func (ds *Dataset) addTime(date, tm string) {
	ts, ok := ds.times[date]
	if !ok {
		ds.dates = append(ds.dates, date)
	}
	for _, t := range ts {
		if t == tm {
			return
		}
	}
	ds.times[date] = append(ts, tm)
}

// GenerateOptions shapes a synthetic dataset.
type GenerateOptions struct {
	Seed     int64
	Services int
	Slots    int
	Dates    []string
	Times    []string
}

var generatedNames = []string{
	"gateway", "auth", "users", "catalog", "search", "cart",
	"checkout", "payments", "shipping", "recommend", "reviews", "inventory",
	"notify", "billing", "media", "audit",
}

// Generate builds a deterministic synthetic dataset for CPU, RAM and
// CHANNEL. A few services get a single burst so that grouping has to split
// them into base and peak components.
func Generate(opts GenerateOptions) *Dataset {
	if opts.Services <= 0 {
		opts.Services = 10
	}
	opts.Services = min(opts.Services, MaxServices)
	if opts.Slots <= 0 {
		opts.Slots = 24
	}
	if len(opts.Dates) == 0 {
		opts.Dates = []string{"2024-05-10", "2024-05-11", "2024-05-12"}
	}
	if len(opts.Times) == 0 {
		opts.Times = []string{"09:00:00", "13:00:00", "19:00:00"}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	f := datasetFile{
		Metrics:  []string{"CPU", "RAM", "CHANNEL"},
		Capacity: map[string]float64{"CPU": 100, "RAM": 100, "CHANNEL": 100},
	}
	for _, date := range opts.Dates {
		for _, tm := range opts.Times {
			snap := snapshotFile{Date: date, Time: tm, Series: make(map[string][]Series)}
			for _, metric := range f.Metrics {
				list := make([]Series, 0, opts.Services)
				for i := 0; i < opts.Services; i++ {
					list = append(list, Series{Name: generatedNames[i], Values: synthSeries(rng, opts.Slots, i%4 == 3)})
				}
				snap.Series[metric] = list
			}
			f.Snapshots = append(f.Snapshots, snap)
		}
	}
	ds, err := newDataset(f)
	if err != nil {
		panic(fmt.Sprintf("mockservice: generated dataset is invalid: %v", err))
	}
	return ds
}

func synthSeries(rng *rand.Rand, slots int, bursty bool) []float64 {
	base := 10 + rng.Float64()*30
	amp := base * (0.2 + rng.Float64()*0.5)
	phase := rng.Float64() * 2 * math.Pi
	out := make([]float64, slots)
	for t := range out {
		v := base + amp*math.Sin(2*math.Pi*float64(t)/float64(slots)+phase) + rng.NormFloat64()*base*0.05
		out[t] = math.Max(v, 0)
	}
	if bursty {
		at := rng.Intn(slots)
		width := 1 + rng.Intn(3)
		for t := at; t < min(at+width, slots); t++ {
			out[t] += base * (2 + rng.Float64()*2)
		}
	}
	return out
}

// Metrics lists the metric kinds.
func (ds *Dataset) Metrics() []string {
	return append([]string(nil), ds.metrics...)
}

// Dates lists the dates in ascending order.
func (ds *Dataset) Dates() []string {
	return append([]string(nil), ds.dates...)
}

// Times returns the times per date.
func (ds *Dataset) Times() map[string][]string {
	out := make(map[string][]string, len(ds.times))
	for d, ts := range ds.times {
		out[d] = append([]string(nil), ts...)
	}
	return out
}

// Capacity returns the standard capacity used by auto-normalization.
func (ds *Dataset) Capacity(metric string) float64 {
	return ds.capacity[metric]
}

// Series returns a copy of the series for one snapshot.
func (ds *Dataset) Series(metric, date, tm string) ([]Series, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	list, ok := ds.series[snapshotKey{metric, date, tm}]
	if !ok {
		return nil, false
	}
	return cloneSeries(list), true
}

// Update applies fn to every value of one snapshot.
func (ds *Dataset) Update(metric, date, tm string, fn func(v float64) float64) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	list, ok := ds.series[snapshotKey{metric, date, tm}]
	if !ok {
		return false
	}
	for _, s := range list {
		for i, v := range s.Values {
			s.Values[i] = fn(v)
		}
	}
	return true
}

func cloneSeries(list []Series) []Series {
	out := make([]Series, len(list))
	for i, s := range list {
		out[i] = Series{Name: s.Name, Values: append([]float64(nil), s.Values...)}
	}
	return out
}
