package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIOU(t *testing.T) {
	a := Rect{
		X:      0,
		Y:      0,
		Width:  10,
		Height: 10,
	}
	b := Rect{
		X:      5,
		Y:      5,
		Width:  10,
		Height: 10,
	}
	require.InDelta(t, 25.0/175.0, a.IOU(b), 1e-6)
	require.Equal(t, a.IOU(b), b.IOU(a))

	// identical
	require.EqualValues(t, 1, a.IOU(a))

	// disjoint
	c := Rect{X: 100, Y: 100, Width: 10, Height: 10}
	require.EqualValues(t, 0, a.IOU(c))
	require.EqualValues(t, 0, c.IOU(a))

	// touching edges is not an overlap
	d := Rect{X: 10, Y: 0, Width: 10, Height: 10}
	require.EqualValues(t, 0, a.IOU(d))

	// zero-area union
	var z Rect
	require.EqualValues(t, 0, z.IOU(z))
}

func TestNormIOU(t *testing.T) {
	a := NormRect{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.3}
	b := NormRect{X1: 0.2, Y1: 0.2, X2: 0.4, Y2: 0.4}
	require.InDelta(t, 0.01/0.07, a.IOU(b), 1e-5)
	require.Equal(t, a.IOU(b), b.IOU(a))
	require.InDelta(t, 1, a.IOU(a), 1e-6)
	require.EqualValues(t, 0, a.IOU(NormRect{X1: 0.5, Y1: 0.5, X2: 0.6, Y2: 0.6}))

	var z NormRect
	require.EqualValues(t, 0, z.IOU(z))

	// inverted box has no area
	inv := NormRect{X1: 0.3, Y1: 0.3, X2: 0.1, Y2: 0.1}
	require.EqualValues(t, 0, inv.IOU(a))
}

func TestRectHelpers(t *testing.T) {
	r := MakeRectXYXY(100, 100, 150, 140)
	require.Equal(t, Rect{X: 100, Y: 100, Width: 50, Height: 40}, r)
	require.Equal(t, 150, r.X2())
	require.Equal(t, 140, r.Y2())
	require.Equal(t, Point{X: 125, Y: 120}, r.Center())

	u := r.Union(MakeRectXYXY(0, 0, 10, 10))
	require.Equal(t, MakeRectXYXY(0, 0, 150, 140), u)

	clipped := MakeRectXYXY(-10, -10, 20, 20).Clip(15, 15)
	require.Equal(t, MakeRectXYXY(0, 0, 15, 15), clipped)

	outside := MakeRectXYXY(30, 30, 40, 40).Clip(15, 15)
	require.True(t, outside.IsEmpty())

	require.Equal(t, MakeRectXYXY(90, 95, 160, 145), r.Expand(10, 5))
}

func TestNormRectToPixels(t *testing.T) {
	n := NormRect{X1: 0.25, Y1: 0.5, X2: 0.5, Y2: 1}
	require.Equal(t, MakeRectXYXY(160, 240, 320, 480), n.ToPixels(640, 480))

	tile := MakeRectXYXY(320, 0, 640, 320)
	full := NormRect{X1: 0, Y1: 0, X2: 1, Y2: 1}.FromTile(tile, 640, 480)
	require.Equal(t, tile, full.ToPixels(640, 480))
}
