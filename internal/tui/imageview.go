package tui

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loadlens/internal/vizcache"
)

// previewCache memoizes rendered previews by file and size. Spool files are
// never rewritten, so the path identifies the image.
type previewCache struct {
	entries map[string]string
}

const maxPreviews = 16

func newPreviewCache() *previewCache {
	return &previewCache{entries: make(map[string]string)}
}

func (c *previewCache) get(k string) (string, bool) {
	v, ok := c.entries[k]
	return v, ok
}

func (c *previewCache) put(k, v string) {
	if len(c.entries) >= maxPreviews {
		c.entries = make(map[string]string)
	}
	c.entries[k] = v
}

func (m *ExplorerModel) renderImage(h *vizcache.ImageHandle, width, height int) string {
	footer := mutedStyle.Render(fmt.Sprintf("%s  %d bytes", h.Path(), h.Size()))
	previewH := max(height-1, 1)

	cacheKey := fmt.Sprintf("%s@%dx%d", h.Path(), width, previewH)
	preview, ok := m.previews.get(cacheKey)
	if !ok {
		img, err := h.Decode()
		if err != nil {
			preview = lipgloss.Place(width, previewH, lipgloss.Center, lipgloss.Center,
				mutedStyle.Render("no preview: "+err.Error()))
		} else {
			preview = renderHalfBlocks(img, width, previewH)
		}
		m.previews.put(cacheKey, preview)
	}
	return lipgloss.JoinVertical(lipgloss.Left, preview, footer)
}

// renderHalfBlocks draws img with one "▀" per two vertical pixels, scaled to
// fit cols x rows while keeping the aspect ratio.
func renderHalfBlocks(img image.Image, cols, rows int) string {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || cols <= 0 || rows <= 0 {
		return ""
	}
	scale := min(float64(cols)/float64(b.Dx()), float64(rows*2)/float64(b.Dy()))
	w := max(int(float64(b.Dx())*scale), 1)
	h := max(int(float64(b.Dy())*scale), 2)

	sample := func(x, y int) string {
		sx := b.Min.X + x*b.Dx()/w
		sy := b.Min.Y + y*b.Dy()/h
		r, g, bl, _ := img.At(sx, sy).RGBA()
		return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, bl>>8)
	}

	var sb strings.Builder
	for y := 0; y+1 < h; y += 2 {
		for x := 0; x < w; x++ {
			cell := lipgloss.NewStyle().
				Foreground(lipgloss.Color(sample(x, y))).
				Background(lipgloss.Color(sample(x, y+1)))
			sb.WriteString(cell.Render("▀"))
		}
		if y+3 < h {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
