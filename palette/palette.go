// CLAUDE:SUMMARY Fixed paint palette with a transparent sentinel and nearest-color quantization.
// Package palette maps arbitrary colors onto the small fixed set of colors
// the canvas accepts.
//
// A Palette of N colors addresses them as Index 0..N-1. The value N is the
// sentinel: "no constraint at this position". It never appears on a canvas.
package palette

import (
	"image"
	"image/color"
)

// Index identifies a palette entry, or the sentinel when equal to Len().
type Index uint8

// AlphaThreshold is the alpha below which a color is treated as transparent.
const AlphaThreshold = 128

// Palette is an ordered set of opaque colors.
type Palette struct {
	colors []color.NRGBA
}

// New builds a palette from the given colors. Alpha is forced to 255.
// Panics if more than 255 colors are given (the sentinel must fit in an Index).
func New(colors []color.NRGBA) *Palette {
	if len(colors) > 255 {
		panic("palette: too many colors")
	}
	p := &Palette{colors: make([]color.NRGBA, len(colors))}
	for i, c := range colors {
		c.A = 255
		p.colors[i] = c
	}
	return p
}

// Len returns the number of concrete colors.
func (p *Palette) Len() int { return len(p.colors) }

// Sentinel returns the reserved "transparent/unset" index.
func (p *Palette) Sentinel() Index { return Index(len(p.colors)) }

// Color returns the concrete color for i. ok is false for the sentinel or
// any out-of-range index.
func (p *Palette) Color(i Index) (c color.NRGBA, ok bool) {
	if int(i) >= len(p.colors) {
		return color.NRGBA{}, false
	}
	return p.colors[i], true
}

// Quantize returns the index of the palette color nearest to c in squared
// RGBA distance. Colors with alpha below AlphaThreshold map to the sentinel.
// Ties resolve to the lowest index.
func (p *Palette) Quantize(c color.NRGBA) Index {
	if c.A < AlphaThreshold {
		return p.Sentinel()
	}
	best := p.Sentinel()
	bestDist := -1
	for i, e := range p.colors {
		d := sq(int(e.R)-int(c.R)) + sq(int(e.G)-int(c.G)) +
			sq(int(e.B)-int(c.B)) + sq(int(e.A)-int(c.A))
		if bestDist < 0 || d < bestDist {
			best, bestDist = Index(i), d
		}
	}
	return best
}

// QuantizeImage quantizes every pixel of img in row-major order. The result
// has Dx()*Dy() entries, indexed from the image's top-left corner.
func (p *Palette) QuantizeImage(img image.Image) []Index {
	b := img.Bounds()
	out := make([]Index, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out = append(out, p.Quantize(c))
		}
	}
	return out
}

func sq(v int) int { return v * v }

// Default is the 16-color canvas palette. Its sentinel is 16.
var Default = New([]color.NRGBA{
	{255, 255, 255, 255},
	{228, 228, 228, 255},
	{136, 136, 136, 255},
	{34, 34, 34, 255},
	{255, 167, 209, 255},
	{229, 0, 0, 255},
	{229, 149, 0, 255},
	{160, 106, 66, 255},
	{229, 217, 0, 255},
	{148, 224, 68, 255},
	{2, 190, 1, 255},
	{0, 211, 221, 255},
	{0, 131, 199, 255},
	{0, 0, 234, 255},
	{207, 110, 228, 255},
	{130, 0, 128, 255},
})
