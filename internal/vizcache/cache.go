// Package vizcache holds fetched visualization resources keyed by slot and
// guards their updates with per-slot generations.
package vizcache

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// Status is the lifecycle state of a slot.
type Status uint8

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return "idle"
}

// Entry is the cached state of one slot.
type Entry struct {
	Slot        model.Slot
	Status      Status
	Generation  uint64
	Fingerprint model.Fingerprint
	Handle      Handle
	Err         error
}

// Cache keeps at most one entry per slot. Replacing or evicting an entry
// releases its handle before the slot is reused.
type Cache struct {
	mu      sync.Mutex
	entries map[model.Slot]*Entry
	closed  bool
	metrics *Metrics
	logger  *zap.Logger
}

// NewCache returns an empty cache. metrics and logger may be nil.
func NewCache(metrics *Metrics, logger *zap.Logger) *Cache {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries: make(map[model.Slot]*Entry),
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "vizcache")),
	}
}

// Get returns a copy of the entry for slot.
func (c *Cache) Get(slot model.Slot) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[slot]
	if !ok {
		return Entry{Slot: slot}, false
	}
	return *e, true
}

// Begin marks slot Loading for generation and fingerprint, releasing any
// handle the slot held.
func (c *Cache) Begin(slot model.Slot, fp model.Fingerprint, generation uint64) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[slot]; ok {
		c.releaseLocked(prev)
	}
	e := &Entry{Slot: slot, Status: StatusLoading, Generation: generation, Fingerprint: fp}
	if !c.closed {
		c.entries[slot] = e
	}
	return *e
}

// Put writes the result of generation into slot. The write is accepted only
// when the slot is still Loading that generation with the same fingerprint;
// otherwise the carried handle is released and Put reports false.
func (c *Cache) Put(slot model.Slot, fp model.Fingerprint, generation uint64, h Handle, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[slot]
	if c.closed || !ok || e.Status != StatusLoading || e.Generation != generation || e.Fingerprint != fp {
		c.release(slot, h)
		return false
	}
	if err != nil {
		c.release(slot, h)
		e.Status = StatusFailed
		e.Err = err
		e.Handle = nil
		return true
	}
	e.Status = StatusReady
	e.Err = nil
	e.Handle = h
	if h != nil {
		c.metrics.LiveHandles.Inc()
	}
	return true
}

// Evict drops slot, releasing its handle.
func (c *Cache) Evict(slot model.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[slot]; ok {
		c.releaseLocked(e)
		delete(c.entries, slot)
	}
}

// InvalidateWhere evicts every entry pred accepts and returns the evicted slots.
func (c *Cache) InvalidateWhere(pred func(Entry) bool) []model.Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var evicted []model.Slot
	for slot, e := range c.entries {
		if !pred(*e) {
			continue
		}
		c.releaseLocked(e)
		delete(c.entries, slot)
		evicted = append(evicted, slot)
	}
	sortSlots(evicted)
	return evicted
}

// Snapshot returns copies of all entries ordered by slot.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return slotLess(out[i].Slot, out[j].Slot) })
	return out
}

// Len returns the number of slots held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases every handle. Later Puts release their handle immediately.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for slot, e := range c.entries {
		c.releaseLocked(e)
		delete(c.entries, slot)
	}
	c.closed = true
}

func (c *Cache) releaseLocked(e *Entry) {
	c.metrics.Evictions.Inc()
	if e.Handle == nil {
		return
	}
	c.metrics.LiveHandles.Dec()
	c.release(e.Slot, e.Handle)
	e.Handle = nil
}

func (c *Cache) release(slot model.Slot, h Handle) {
	if h == nil {
		return
	}
	if err := h.Release(); err != nil {
		c.logger.Warn("release handle", zap.Stringer("slot", slot), zap.Error(err))
	}
}

func slotLess(a, b model.Slot) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.SubKey < b.SubKey
}

func sortSlots(slots []model.Slot) {
	sort.Slice(slots, func(i, j int) bool { return slotLess(slots[i], slots[j]) })
}
