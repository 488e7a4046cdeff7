// CLAUDE:SUMMARY Packed 4-bit-per-pixel canvas buffer with coordinate sampling and wholesale reload.
// Package canvas holds a snapshot of the shared pixel canvas.
//
// Pixels are packed two per byte, row-major: the high nibble holds the even
// x coordinate, the low nibble the odd one. The row stride is fixed by the
// canvas width.
package canvas

import (
	"errors"
	"fmt"
	"io"

	"github.com/hazyhaar/placebot/palette"
)

// Default dimensions of the remote canvas.
const (
	DefaultWidth  = 1000
	DefaultHeight = 1000
)

// ErrShortSnapshot is returned by Load when the reader ends before the
// buffer is full.
var ErrShortSnapshot = errors.New("canvas: short snapshot")

// Canvas is a fixed-size packed pixel grid.
type Canvas struct {
	width  int
	height int
	stride int
	buf    []byte
}

// New allocates a zeroed canvas. width must be even and positive.
func New(width, height int) *Canvas {
	if width <= 0 || height <= 0 || width%2 != 0 {
		panic(fmt.Sprintf("canvas: invalid dimensions %dx%d", width, height))
	}
	stride := width / 2
	return &Canvas{
		width:  width,
		height: height,
		stride: stride,
		buf:    make([]byte, stride*height),
	}
}

// FromBytes wraps an existing packed buffer. len(buf) must equal
// height*width/2.
func FromBytes(width, height int, buf []byte) (*Canvas, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("canvas: invalid dimensions %dx%d", width, height)
	}
	if len(buf) != height*width/2 {
		return nil, fmt.Errorf("canvas: buffer is %d bytes, want %d", len(buf), height*width/2)
	}
	return &Canvas{width: width, height: height, stride: width / 2, buf: buf}, nil
}

// FromPixels packs one index per pixel (row-major, len width*height) into a
// canvas. Indices must fit in 4 bits.
func FromPixels(width, height int, pixels []palette.Index) (*Canvas, error) {
	if len(pixels) != width*height {
		return nil, fmt.Errorf("canvas: got %d pixels, want %d", len(pixels), width*height)
	}
	buf := make([]byte, width*height/2)
	c, err := FromBytes(width, height, buf)
	if err != nil {
		return nil, err
	}
	for i, p := range pixels {
		if p > 0x0F {
			return nil, fmt.Errorf("canvas: index %d at %d does not fit in 4 bits", p, i)
		}
		x, y := i%width, i/width
		if x%2 == 0 {
			buf[y*c.stride+x/2] |= byte(p) << 4
		} else {
			buf[y*c.stride+x/2] |= byte(p)
		}
	}
	return c, nil
}

// Width returns the canvas width in pixels.
func (c *Canvas) Width() int { return c.width }

// Height returns the canvas height in pixels.
func (c *Canvas) Height() int { return c.height }

// Size returns the packed buffer length in bytes.
func (c *Canvas) Size() int { return len(c.buf) }

// Contains reports whether the w×h rectangle at (x, y) lies inside the canvas.
func (c *Canvas) Contains(x, y, w, h int) bool {
	return x >= 0 && y >= 0 && w >= 0 && h >= 0 &&
		x+w <= c.width && y+h <= c.height
}

// Sample returns the palette index at (x, y). Panics when out of range:
// callers check the rectangle with Contains first.
func (c *Canvas) Sample(x, y int) palette.Index {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		panic(fmt.Sprintf("canvas: sample (%d,%d) outside %dx%d", x, y, c.width, c.height))
	}
	v := c.buf[y*c.stride+x/2]
	if x%2 == 0 {
		return palette.Index(v >> 4)
	}
	return palette.Index(v & 0x0F)
}

// Load replaces the whole buffer with exactly Size() bytes from r.
// On error the previous contents are left untouched.
func (c *Canvas) Load(r io.Reader) error {
	next := make([]byte, len(c.buf))
	if _, err := io.ReadFull(r, next); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", ErrShortSnapshot, err)
		}
		return fmt.Errorf("canvas: read snapshot: %w", err)
	}
	c.buf = next
	return nil
}
