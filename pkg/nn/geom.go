package nn

import (
	"github.com/chewxy/math32"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt(float32((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y)))
}

// Rect is an axis-aligned rectangle in frame pixels
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Create a Rect from two corners (x1,y1 inclusive, x2,y2 exclusive)
func MakeRectXYXY(x1, y1, x2, y2 int) Rect {
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

func (r Rect) X2() int {
	return r.X + r.Width
}

func (r Rect) Y2() int {
	return r.Y + r.Height
}

func (r Rect) Area() int {
	return r.Width * r.Height
}

// Returns true if the rectangle has a non-positive width or height
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X+r.Width, b.X+b.Width)
	y2 := min(r.Y+r.Height, b.Y+b.Height)
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

func (r Rect) Union(b Rect) Rect {
	x1 := min(r.X, b.X)
	y1 := min(r.Y, b.Y)
	x2 := max(r.X+r.Width, b.X+b.Width)
	y2 := max(r.Y+r.Height, b.Y+b.Height)
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

// Intersection over Union. Returns 0 if the union area is 0.
func (r Rect) IOU(b Rect) float32 {
	intersection := r.Intersection(b).Area()
	union := r.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return float32(intersection) / float32(union)
}

func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

// Length of the diagonal
func (r Rect) Diagonal() float32 {
	return math32.Sqrt(float32(r.Width*r.Width + r.Height*r.Height))
}

func (r *Rect) Offset(dx, dy int) {
	r.X += dx
	r.Y += dy
}

// Grow the rectangle by dx on the left and right, and dy on the top and bottom
func (r Rect) Expand(dx, dy int) Rect {
	return Rect{
		X:      r.X - dx,
		Y:      r.Y - dy,
		Width:  r.Width + 2*dx,
		Height: r.Height + 2*dy,
	}
}

// Clip the rectangle to the bounds of an image of the given size.
// The result may be empty.
func (r Rect) Clip(width, height int) Rect {
	return r.Intersection(Rect{X: 0, Y: 0, Width: width, Height: height})
}

// NormRect is an axis-aligned rectangle in normalized [0,1] coordinates,
// which is what our detection models emit.
type NormRect struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

func (r NormRect) Width() float32 {
	return r.X2 - r.X1
}

func (r NormRect) Height() float32 {
	return r.Y2 - r.Y1
}

func (r NormRect) Area() float32 {
	return max(0, r.Width()) * max(0, r.Height())
}

// Intersection over Union. Returns 0 if the union area is 0.
func (r NormRect) IOU(b NormRect) float32 {
	iw := max(0, min(r.X2, b.X2)-max(r.X1, b.X1))
	ih := max(0, min(r.Y2, b.Y2)-max(r.Y1, b.Y1))
	inter := iw * ih
	union := r.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Convert to pixel coordinates by scaling by the frame width and height
func (r NormRect) ToPixels(frameWidth, frameHeight int) Rect {
	x1 := int(math32.Round(r.X1 * float32(frameWidth)))
	y1 := int(math32.Round(r.Y1 * float32(frameHeight)))
	x2 := int(math32.Round(r.X2 * float32(frameWidth)))
	y2 := int(math32.Round(r.Y2 * float32(frameHeight)))
	return MakeRectXYXY(x1, y1, x2, y2)
}

// Map a rectangle that is normalized relative to 'tile' into a rectangle that is
// normalized relative to the whole frame.
func (r NormRect) FromTile(tile Rect, frameWidth, frameHeight int) NormRect {
	fw := float32(frameWidth)
	fh := float32(frameHeight)
	tx := float32(tile.X) / fw
	ty := float32(tile.Y) / fh
	tw := float32(tile.Width) / fw
	th := float32(tile.Height) / fh
	return NormRect{
		X1: tx + r.X1*tw,
		Y1: ty + r.Y1*th,
		X2: tx + r.X2*tw,
		Y2: ty + r.Y2*th,
	}
}
