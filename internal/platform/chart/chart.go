package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

type Bar struct {
	Label string
	Value float64 // 0..1
}

type Options struct {
	Title  string
	Width  int
	Height int
}

var palette = []color.RGBA{
	{R: 0x25, G: 0x63, B: 0xeb, A: 0xff},
	{R: 0x16, G: 0xa3, B: 0x4a, A: 0xff},
	{R: 0xdc, G: 0x26, B: 0x26, A: 0xff},
	{R: 0xd9, G: 0x77, B: 0x06, A: 0xff},
	{R: 0x7c, G: 0x3a, B: 0xed, A: 0xff},
}

const (
	padding    = 24.0
	labelWidth = 120.0
	titleSpace = 32.0
)

// BarPNG renders horizontal bars as a PNG. Values are clamped to [0,1] and
// printed as percentages.
func BarPNG(bars []Bar, opts Options) ([]byte, error) {
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = int(titleSpace+2*padding) + max(1, len(bars))*36
	}
	w, h := float64(opts.Width), float64(opts.Height)
	if w < labelWidth+3*padding {
		return nil, fmt.Errorf("chart width %d too small", opts.Width)
	}

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetColor(color.Black)
	if opts.Title != "" {
		dc.DrawStringAnchored(opts.Title, w/2, padding, 0.5, 0.5)
	}
	if len(bars) == 0 {
		dc.DrawStringAnchored("no data", w/2, h/2, 0.5, 0.5)
		return encode(dc)
	}

	top := padding + titleSpace
	rowH := (h - top - padding) / float64(len(bars))
	barH := math.Max(4, rowH*0.6)
	plotW := w - labelWidth - 3*padding - 48

	for i, b := range bars {
		v := clamp01(b.Value)
		y := top + float64(i)*rowH + (rowH-barH)/2
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(truncate(b.Label, 16), padding, y+barH/2, 0, 0.5)

		dc.SetColor(color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff})
		dc.DrawRectangle(padding+labelWidth, y, plotW, barH)
		dc.Fill()

		dc.SetColor(palette[i%len(palette)])
		dc.DrawRectangle(padding+labelWidth, y, plotW*v, barH)
		dc.Fill()

		dc.SetColor(color.Black)
		dc.DrawStringAnchored(fmt.Sprintf("%.0f%%", v*100), padding+labelWidth+plotW+8, y+barH/2, 0, 0.5)
	}
	return encode(dc)
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
