package mockservice

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
)

const (
	chartWidth  = 640
	chartHeight = 360
	chartMargin = 24
)

var (
	chartBackground = color.RGBA{R: 0xfa, G: 0xfa, B: 0xfa, A: 0xff}
	chartAxis       = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	chartThreshold  = color.RGBA{R: 0xd0, G: 0x30, B: 0x30, A: 0xff}
	chartPalette    = []color.RGBA{
		{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
		{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
		{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
		{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
		{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
		{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
		{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
		{R: 0xbc, G: 0xbd, B: 0x22, A: 0xff},
	}
)

type canvas struct {
	img  *image.RGBA
	plot image.Rectangle
}

func newCanvas() *canvas {
	img := image.NewRGBA(image.Rect(0, 0, chartWidth, chartHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: chartBackground}, image.Point{}, draw.Src)
	c := &canvas{
		img:  img,
		plot: image.Rect(chartMargin, chartMargin, chartWidth-chartMargin, chartHeight-chartMargin),
	}
	c.line(c.plot.Min.X, c.plot.Max.Y, c.plot.Max.X, c.plot.Max.Y, chartAxis)
	c.line(c.plot.Min.X, c.plot.Min.Y, c.plot.Min.X, c.plot.Max.Y, chartAxis)
	return c
}

func (c *canvas) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return nil, fmt.Errorf("mockservice: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// line draws with Bresenham's algorithm.
func (c *canvas) line(x0, y0, x1, y1 int, col color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		c.img.Set(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (c *canvas) y(v, top float64) int {
	if top <= 0 {
		return c.plot.Max.Y
	}
	return c.plot.Max.Y - int(math.Round(v/top*float64(c.plot.Dy())))
}

// renderLines draws each series as a polyline on a shared scale.
func renderLines(series [][]float64) ([]byte, error) {
	c := newCanvas()
	top := 0.0
	slots := 0
	for _, s := range series {
		slots = max(slots, len(s))
		for _, v := range s {
			top = math.Max(top, v)
		}
	}
	top *= 1.05
	if slots < 2 {
		return c.encode()
	}
	step := float64(c.plot.Dx()) / float64(slots-1)
	for i, s := range series {
		col := chartPalette[i%len(chartPalette)]
		for t := 1; t < len(s); t++ {
			c.line(
				c.plot.Min.X+int(math.Round(float64(t-1)*step)), c.y(s[t-1], top),
				c.plot.Min.X+int(math.Round(float64(t)*step)), c.y(s[t], top),
				col,
			)
		}
	}
	return c.encode()
}

// renderBars draws one bar per value with an optional horizontal threshold.
func renderBars(values []float64, threshold float64) ([]byte, error) {
	c := newCanvas()
	if len(values) == 0 {
		return c.encode()
	}
	top := threshold
	for _, v := range values {
		if !math.IsInf(v, 0) {
			top = math.Max(top, v)
		}
	}
	top *= 1.1

	slot := c.plot.Dx() / len(values)
	gap := max(slot/5, 1)
	for i, v := range values {
		if math.IsInf(v, 0) {
			v = top
		}
		x0 := c.plot.Min.X + i*slot + gap
		x1 := c.plot.Min.X + (i+1)*slot - gap
		bar := image.Rect(x0, c.y(v, top), x1, c.plot.Max.Y)
		col := chartPalette[0]
		if v >= threshold {
			col = chartPalette[1]
		}
		draw.Draw(c.img, bar, &image.Uniform{C: col}, image.Point{}, draw.Src)
	}
	if threshold > 0 {
		y := c.y(threshold, top)
		c.line(c.plot.Min.X, y, c.plot.Max.X, y, chartThreshold)
	}
	return c.encode()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
