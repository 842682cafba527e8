package vizcache

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/tinytelemetry/loadlens/internal/model"
)

// HandleKind tells what a Handle holds.
type HandleKind uint8

const (
	HandleImage HandleKind = iota
	HandlePayload
)

func (k HandleKind) String() string {
	if k == HandleImage {
		return "image"
	}
	return "payload"
}

// Handle is an exclusively owned fetched resource. The cache entry holding it
// is its only owner and releases it on eviction.
type Handle interface {
	Kind() HandleKind
	Size() int64
	Release() error
	Released() bool
}

// ImageHandle is a chart image spooled to a file.
type ImageHandle struct {
	fs          afero.Fs
	path        string
	contentType string
	size        int64
	released    atomic.Bool
	onRelease   func(int64)
}

func (h *ImageHandle) Kind() HandleKind    { return HandleImage }
func (h *ImageHandle) Size() int64         { return h.size }
func (h *ImageHandle) Released() bool      { return h.released.Load() }
func (h *ImageHandle) Path() string        { return h.path }
func (h *ImageHandle) ContentType() string { return h.contentType }

// Bytes reads the spooled image back.
func (h *ImageHandle) Bytes() ([]byte, error) {
	if h.Released() {
		return nil, fmt.Errorf("vizcache: image %s already released", h.path)
	}
	return afero.ReadFile(h.fs, h.path)
}

// Decode decodes the spooled image.
func (h *ImageHandle) Decode() (image.Image, error) {
	data, err := h.Bytes()
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("vizcache: decode %s: %w", h.path, err)
	}
	return img, nil
}

// Release removes the spool file. Releasing twice is a no-op.
func (h *ImageHandle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if h.onRelease != nil {
		h.onRelease(h.size)
	}
	if err := h.fs.Remove(h.path); err != nil {
		return fmt.Errorf("vizcache: remove %s: %w", h.path, err)
	}
	return nil
}

// PayloadHandle holds a decoded JSON payload.
type PayloadHandle struct {
	value    atomic.Value
	size     int64
	released atomic.Bool
}

// NewPayload wraps v. size is an estimate used for accounting only.
func NewPayload(v any, size int64) *PayloadHandle {
	h := &PayloadHandle{size: size}
	h.value.Store(payloadBox{v})
	return h
}

type payloadBox struct{ v any }

func (h *PayloadHandle) Kind() HandleKind { return HandlePayload }
func (h *PayloadHandle) Size() int64      { return h.size }
func (h *PayloadHandle) Released() bool   { return h.released.Load() }

// Value returns the payload, or nil once released.
func (h *PayloadHandle) Value() any {
	if h.Released() {
		return nil
	}
	return h.value.Load().(payloadBox).v
}

func (h *PayloadHandle) Release() error {
	if h.released.CompareAndSwap(false, true) {
		h.value.Store(payloadBox{})
	}
	return nil
}

// PayloadOf extracts a typed payload from h.
func PayloadOf[T any](h Handle) (T, bool) {
	var zero T
	p, ok := h.(*PayloadHandle)
	if !ok || p == nil {
		return zero, false
	}
	v, ok := p.Value().(T)
	return v, ok
}

// Spool writes chart images to files under one directory.
type Spool struct {
	fs      afero.Fs
	dir     string
	seq     atomic.Uint64
	metrics *Metrics
}

// NewSpool creates dir on fs when missing.
func NewSpool(fs afero.Fs, dir string, metrics *Metrics) (*Spool, error) {
	if dir == "" {
		return nil, fmt.Errorf("vizcache: spool dir is required")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vizcache: create spool dir: %w", err)
	}
	return &Spool{fs: fs, dir: dir, metrics: metrics}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string { return s.dir }

// Remove deletes the spool directory. Call it after the cache is closed.
func (s *Spool) Remove() error {
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("vizcache: remove spool: %w", err)
	}
	return nil
}

// Write stores img for slot and returns its handle.
func (s *Spool) Write(slot model.Slot, img model.ChartImage) (*ImageHandle, error) {
	name := fmt.Sprintf("%s-%06d%s", sanitize(slot.String()), s.seq.Add(1), extension(img.ContentType))
	p := filepath.Join(s.dir, name)
	if err := afero.WriteFile(s.fs, p, img.Data, 0o644); err != nil {
		return nil, fmt.Errorf("vizcache: spool %s: %w", slot, err)
	}
	size := int64(len(img.Data))
	if s.metrics != nil {
		s.metrics.SpoolBytes.Add(float64(size))
	}
	return &ImageHandle{
		fs:          s.fs,
		path:        p,
		contentType: img.ContentType,
		size:        size,
		onRelease: func(n int64) {
			if s.metrics != nil {
				s.metrics.SpoolBytes.Sub(float64(n))
			}
		},
	}, nil
}

func extension(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/svg"):
		return ".svg"
	}
	return ".img"
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
