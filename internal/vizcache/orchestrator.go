package vizcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// Fetcher performs the remote fetch for one slot.
type Fetcher interface {
	Fetch(ctx context.Context, slot model.Slot, params model.FilterParameters) (Handle, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, slot model.Slot, params model.FilterParameters) (Handle, error)

func (f FetcherFunc) Fetch(ctx context.Context, slot model.Slot, params model.FilterParameters) (Handle, error) {
	return f(ctx, slot, params)
}

// Request is one issued fetch. Generation is the slot's generation at issue
// time; only a completion carrying the latest generation is applied.
type Request struct {
	Slot        model.Slot
	Fingerprint model.Fingerprint
	Params      model.FilterParameters
	Generation  uint64
}

// Completion is the outcome of running a Request.
type Completion struct {
	Request
	Handle Handle
	Err    error
}

// Orchestrator issues deduplicated fetches and applies their results in
// generation order. Ensure, Refresh and Apply are meant to be called from a
// single event loop; Run may be called from any goroutine.
type Orchestrator struct {
	cache   *Cache
	fetcher Fetcher
	metrics *Metrics
	logger  *zap.Logger

	// FetchTimeout bounds Run when positive. A timeout is an ordinary error
	// and goes through the same generation check.
	FetchTimeout time.Duration

	mu     sync.Mutex
	latest map[model.Slot]uint64
}

// NewOrchestrator wires a fetcher to cache.
func NewOrchestrator(cache *Cache, fetcher Fetcher, metrics *Metrics, logger *zap.Logger) *Orchestrator {
	if metrics == nil {
		metrics = cache.metrics
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cache:   cache,
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "orchestrator")),
		latest:  make(map[model.Slot]uint64),
	}
}

// Cache returns the underlying cache.
func (o *Orchestrator) Cache() *Cache { return o.cache }

// Ensure returns the slot's entry and, when the slot is not Ready or Loading
// for params' fingerprint, a new Request that the caller must Run.
func (o *Orchestrator) Ensure(slot model.Slot, params model.FilterParameters) (Entry, *Request) {
	fp := model.FingerprintFor(slot.Kind, params)
	if e, ok := o.cache.Get(slot); ok && e.Fingerprint == fp {
		if e.Status == StatusReady || e.Status == StatusLoading {
			o.metrics.Hits.WithLabelValues(slot.Kind.String()).Inc()
			return e, nil
		}
	}
	return o.issue(slot, fp, params)
}

// Refresh always issues a new generation for slot.
func (o *Orchestrator) Refresh(slot model.Slot, params model.FilterParameters) (Entry, *Request) {
	return o.issue(slot, model.FingerprintFor(slot.Kind, params), params)
}

func (o *Orchestrator) issue(slot model.Slot, fp model.Fingerprint, params model.FilterParameters) (Entry, *Request) {
	o.mu.Lock()
	o.latest[slot]++
	gen := o.latest[slot]
	o.mu.Unlock()

	e := o.cache.Begin(slot, fp, gen)
	o.metrics.Fetches.WithLabelValues(slot.Kind.String()).Inc()
	o.logger.Debug("fetch issued",
		zap.Stringer("slot", slot),
		zap.Uint64("generation", gen),
		zap.String("fingerprint", string(fp)))
	return e, &Request{Slot: slot, Fingerprint: fp, Params: params, Generation: gen}
}

// Latest returns the last generation issued for slot.
func (o *Orchestrator) Latest(slot model.Slot) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest[slot]
}

// Run performs the fetch for req. It blocks; run it off the event loop.
func (o *Orchestrator) Run(ctx context.Context, req *Request) Completion {
	if o.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.FetchTimeout)
		defer cancel()
	}

	started := time.Now()
	h, err := o.fetcher.Fetch(ctx, req.Slot, req.Params)
	o.metrics.FetchDuration.WithLabelValues(req.Slot.Kind.String()).Observe(time.Since(started).Seconds())
	if err != nil {
		if h != nil {
			_ = h.Release()
			h = nil
		}
		err = fmt.Errorf("vizcache: fetch %s: %w", req.Slot, err)
	}
	return Completion{Request: *req, Handle: h, Err: err}
}

// Apply writes c into the cache when c is the slot's latest generation and the
// slot is still loading it. Stale completions are discarded and their handle
// released.
func (o *Orchestrator) Apply(c Completion) bool {
	if c.Generation != o.Latest(c.Slot) {
		o.discard(c)
		return false
	}
	if !o.cache.Put(c.Slot, c.Fingerprint, c.Generation, c.Handle, c.Err) {
		o.metrics.StaleDiscards.Inc()
		return false
	}
	status := StatusReady
	if c.Err != nil {
		status = StatusFailed
		o.logger.Info("fetch failed",
			zap.Stringer("slot", c.Slot),
			zap.Uint64("generation", c.Generation),
			zap.Error(c.Err))
	}
	o.metrics.FetchOutcomes.WithLabelValues(c.Slot.Kind.String(), status.String()).Inc()
	return true
}

func (o *Orchestrator) discard(c Completion) {
	o.metrics.StaleDiscards.Inc()
	o.logger.Debug("stale completion discarded",
		zap.Stringer("slot", c.Slot),
		zap.Uint64("generation", c.Generation),
		zap.Uint64("latest", o.Latest(c.Slot)))
	if c.Handle != nil {
		if err := c.Handle.Release(); err != nil {
			o.logger.Warn("release stale handle", zap.Stringer("slot", c.Slot), zap.Error(err))
		}
	}
}

// Close releases every handle held by the cache.
func (o *Orchestrator) Close() {
	o.cache.Close()
}
