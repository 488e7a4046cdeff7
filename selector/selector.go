// CLAUDE:SUMMARY Diffs a target against a canvas snapshot, reports completion, and picks one mismatch uniformly at random.
// Package selector decides which pixel to paint next.
package selector

import (
	"math"

	"github.com/hazyhaar/placebot/canvas"
	"github.com/hazyhaar/placebot/palette"
	"github.com/hazyhaar/placebot/target"
)

// Kind tags a selection result.
type Kind int

const (
	// Exhausted means every solid target pixel already matches the canvas.
	Exhausted Kind = iota
	// Picked means Result.Pick holds the next pixel to paint.
	Picked
)

func (k Kind) String() string {
	switch k {
	case Picked:
		return "picked"
	default:
		return "exhausted"
	}
}

// Source draws uniform integers in [0, n). *math/rand/v2.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

// Pick is a pixel to paint, in absolute canvas coordinates.
type Pick struct {
	X, Y  int
	Color palette.Index
}

// Stats summarises a diff.
type Stats struct {
	Solid    int // target pixels that are not the sentinel
	Mismatch int // solid pixels differing from the canvas
}

// Done returns the number of solid pixels already matching.
func (s Stats) Done() int { return s.Solid - s.Mismatch }

// Percent returns the completion percentage rounded to one decimal.
// A target without solid pixels is complete.
func (s Stats) Percent() float64 {
	if s.Solid == 0 {
		return 100
	}
	p := float64(s.Done()) / float64(s.Solid) * 100
	return math.Round(p*10) / 10
}

// Result is the outcome of Select.
type Result struct {
	Kind  Kind
	Pick  Pick
	Stats Stats
}

// Diff counts solid and mismatching pixels of t against c.
// The target rectangle must lie inside the canvas.
func Diff(c *canvas.Canvas, t *target.Target) Stats {
	var s Stats
	for py := 0; py < t.Height; py++ {
		for px := 0; px < t.Width; px++ {
			want := t.At(px, py)
			if want == t.Sentinel {
				continue
			}
			s.Solid++
			if c.Sample(t.X+px, t.Y+py) != want {
				s.Mismatch++
			}
		}
	}
	return s
}

// Select diffs t against c and, if anything is left to paint, returns the
// k-th mismatch in row-major scan order for k drawn uniformly from
// [0, mismatches). Every mismatch is equally likely. Neither input is
// modified.
func Select(c *canvas.Canvas, t *target.Target, rnd Source) Result {
	stats := Diff(c, t)
	if stats.Mismatch == 0 {
		return Result{Kind: Exhausted, Stats: stats}
	}
	k := rnd.IntN(stats.Mismatch)
	for py := 0; py < t.Height; py++ {
		for px := 0; px < t.Width; px++ {
			want := t.At(px, py)
			if want == t.Sentinel || c.Sample(t.X+px, t.Y+py) == want {
				continue
			}
			if k == 0 {
				return Result{
					Kind:  Picked,
					Pick:  Pick{X: t.X + px, Y: t.Y + py, Color: want},
					Stats: stats,
				}
			}
			k--
		}
	}
	// Unreachable: k < Mismatch and the second scan sees the same mismatches.
	panic("selector: draw exceeded mismatch count")
}
