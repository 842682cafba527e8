package vizcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/tinytelemetry/loadlens/internal/model"
)

var baseParams = model.FilterParameters{
	MetricKind:                "CPU",
	Date:                      "2024-01-01",
	Time:                      "10:00",
	MaxGroupSize:              4,
	StabilityThresholdPercent: 20,
}

// countingFetcher records calls and hands out trackable payload handles.
type countingFetcher struct {
	mu      sync.Mutex
	calls   map[model.Slot]int
	handles []*PayloadHandle
	err     error
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{calls: make(map[model.Slot]int)}
}

func (f *countingFetcher) Fetch(_ context.Context, slot model.Slot, params model.FilterParameters) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[slot]++
	if f.err != nil {
		return nil, f.err
	}
	h := NewPayload(params, 1)
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *countingFetcher) count(slot model.Slot) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[slot]
}

func newTestOrchestrator(f Fetcher) *Orchestrator {
	return NewOrchestrator(NewCache(nil, nil), f, nil, nil)
}

func TestEnsure_DedupWhileLoading(t *testing.T) {
	t.Parallel()

	f := newCountingFetcher()
	o := newTestOrchestrator(f)
	slot := model.NewSlot(model.KindStability, "")

	_, req := o.Ensure(slot, baseParams)
	if req == nil {
		t.Fatal("first Ensure should issue a request")
	}
	e, again := o.Ensure(slot, baseParams)
	if again != nil {
		t.Fatal("second Ensure while loading must not issue a request")
	}
	if e.Status != StatusLoading {
		t.Fatalf("status = %s, want loading", e.Status)
	}

	o.Apply(o.Run(context.Background(), req))
	if got := f.count(slot); got != 1 {
		t.Fatalf("fetch count = %d, want 1", got)
	}
}

func TestEnsure_ReadyIsCacheHit(t *testing.T) {
	t.Parallel()

	f := newCountingFetcher()
	o := newTestOrchestrator(f)
	slot := model.NewSlot(model.KindStatistics, "")

	_, req := o.Ensure(slot, baseParams)
	if !o.Apply(o.Run(context.Background(), req)) {
		t.Fatal("Apply of latest completion should succeed")
	}
	e, again := o.Ensure(slot, baseParams)
	if again != nil {
		t.Fatal("Ensure on a ready slot must not issue a request")
	}
	if e.Status != StatusReady || e.Handle == nil {
		t.Fatalf("entry = %+v, want ready with handle", e)
	}
}

func TestApply_LastIssuedWins(t *testing.T) {
	t.Parallel()

	f := newCountingFetcher()
	o := newTestOrchestrator(f)
	slot := model.NewSlot(model.KindGroupLoad, "")

	p2 := baseParams
	p2.MaxGroupSize = 6

	_, r1 := o.Ensure(slot, baseParams)
	_, r2 := o.Ensure(slot, p2)
	if r1 == nil || r2 == nil || r2.Generation <= r1.Generation {
		t.Fatalf("generations not increasing: %v %v", r1, r2)
	}

	c1 := o.Run(context.Background(), r1)
	c2 := o.Run(context.Background(), r2)

	// F2 resolves first, F1 arrives late.
	if !o.Apply(c2) {
		t.Fatal("latest completion should apply")
	}
	if o.Apply(c1) {
		t.Fatal("stale completion must be discarded")
	}

	e, _ := o.Cache().Get(slot)
	got, ok := PayloadOf[model.FilterParameters](e.Handle)
	if !ok || got.MaxGroupSize != 6 {
		t.Fatalf("slot holds %+v, want F2 result", got)
	}
	if !c1.Handle.Released() {
		t.Fatal("stale completion handle was not released")
	}
}

func TestApply_StaleFailureIgnored(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(newCountingFetcher())
	slot := model.NewSlot(model.KindStability, "")

	_, r1 := o.Ensure(slot, baseParams)
	_, r2 := o.Refresh(slot, baseParams)

	o.Apply(Completion{Request: *r2, Handle: NewPayload("fresh", 1)})
	if o.Apply(Completion{Request: *r1, Err: errors.New("late timeout")}) {
		t.Fatal("stale failure must not apply")
	}
	e, _ := o.Cache().Get(slot)
	if e.Status != StatusReady {
		t.Fatalf("status = %s, want ready", e.Status)
	}
}

func TestApply_FailureIsPerSlot(t *testing.T) {
	t.Parallel()

	f := newCountingFetcher()
	o := newTestOrchestrator(f)
	okSlot := model.NewSlot(model.KindStatistics, "")
	badSlot := model.NewSlot(model.KindStability, "")

	_, okReq := o.Ensure(okSlot, baseParams)
	o.Apply(o.Run(context.Background(), okReq))

	f.mu.Lock()
	f.err = &model.RemoteRejection{Op: "stability", StatusCode: 404, Detail: "no data"}
	f.mu.Unlock()
	_, badReq := o.Ensure(badSlot, baseParams)
	o.Apply(o.Run(context.Background(), badReq))

	bad, _ := o.Cache().Get(badSlot)
	if bad.Status != StatusFailed || model.FailureReason(bad.Err) != "no data" {
		t.Fatalf("bad slot = %s %v, want failed with detail", bad.Status, bad.Err)
	}
	good, _ := o.Cache().Get(okSlot)
	if good.Status != StatusReady {
		t.Fatalf("ok slot status = %s, want ready", good.Status)
	}

	// A failed slot is re-fetched by the next Ensure.
	if _, req := o.Ensure(badSlot, baseParams); req == nil {
		t.Fatal("Ensure on a failed slot should issue a retry")
	}
}

func TestRun_TimeoutGoesThroughGenerationCheck(t *testing.T) {
	t.Parallel()

	block := FetcherFunc(func(ctx context.Context, _ model.Slot, _ model.FilterParameters) (Handle, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := newTestOrchestrator(block)
	o.FetchTimeout = 10 * time.Millisecond
	slot := model.NewSlot(model.KindStability, "")

	_, r1 := o.Ensure(slot, baseParams)
	c1 := o.Run(context.Background(), r1)
	if !errors.Is(c1.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", c1.Err)
	}

	_, r2 := o.Refresh(slot, baseParams)
	if o.Apply(c1) {
		t.Fatal("timed out stale request must not mark the slot failed")
	}
	e, _ := o.Cache().Get(slot)
	if e.Status != StatusLoading || e.Generation != r2.Generation {
		t.Fatalf("entry = %s gen %d, want loading gen %d", e.Status, e.Generation, r2.Generation)
	}
}

func TestReplace_ReleasesPreviousHandle(t *testing.T) {
	t.Parallel()

	f := newCountingFetcher()
	o := newTestOrchestrator(f)
	slot := model.NewSlot(model.KindStatistics, "")

	_, r1 := o.Ensure(slot, baseParams)
	c1 := o.Run(context.Background(), r1)
	o.Apply(c1)

	p2 := baseParams
	p2.Time = "11:00"
	_, r2 := o.Ensure(slot, p2)
	if r2 == nil {
		t.Fatal("new fingerprint should issue a request")
	}
	if !c1.Handle.Released() {
		t.Fatal("previous handle must be released when the slot is reused")
	}
	o.Apply(o.Run(context.Background(), r2))

	live := 0
	for _, h := range f.handles {
		if !h.Released() {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("live handles = %d, want 1", live)
	}
}

func TestClose_ReleasesEverything(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	spool, err := NewSpool(fs, "/spool", nil)
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	img := FetcherFunc(func(_ context.Context, slot model.Slot, _ model.FilterParameters) (Handle, error) {
		return spool.Write(slot, model.ChartImage{ContentType: "image/png", Data: []byte("png")})
	})
	o := newTestOrchestrator(img)

	var handles []Handle
	for _, slot := range []model.Slot{
		model.NewSlot(model.KindGroupLoad, ""),
		model.NewSlot(model.KindStability, ""),
		model.DistributionSlot(2),
	} {
		_, req := o.Ensure(slot, baseParams)
		c := o.Run(context.Background(), req)
		o.Apply(c)
		handles = append(handles, c.Handle)
	}

	o.Close()
	for i, h := range handles {
		if !h.Released() {
			t.Fatalf("handle %d not released after Close", i)
		}
	}
	entries, err := afero.ReadDir(fs, "/spool")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("spool files left after Close: %d", len(entries))
	}
}

func TestStaleImageHandleIsRemoved(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	spool, err := NewSpool(fs, "/spool", nil)
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	o := newTestOrchestrator(FetcherFunc(func(_ context.Context, slot model.Slot, _ model.FilterParameters) (Handle, error) {
		return spool.Write(slot, model.ChartImage{ContentType: "image/png", Data: []byte("png")})
	}))
	slot := model.NewSlot(model.KindStability, "")

	_, r1 := o.Ensure(slot, baseParams)
	c1 := o.Run(context.Background(), r1)
	_, r2 := o.Refresh(slot, baseParams)
	o.Apply(o.Run(context.Background(), r2))
	o.Apply(c1)

	img := c1.Handle.(*ImageHandle)
	if ok, _ := afero.Exists(fs, img.Path()); ok {
		t.Fatalf("stale spool file %s still exists", img.Path())
	}
	if o.Cache().Len() != 1 {
		t.Fatalf("cache len = %d, want 1", o.Cache().Len())
	}
}
