package nn

import (
	"github.com/bmharper/tiledinference"
)

// Minimum overlap between adjacent tiles, in pixels.
// A jersey number that straddles a tile boundary needs to appear whole inside at
// least one tile, so this is roughly the size of a large number at typical distance.
const tileMinPadding = 32

// PlanTiles splits a frame into model-sized tiles.
// If the frame fits inside a single model input, then nil is returned, because the
// whole-frame pass already sees the image at full resolution.
func PlanTiles(frameWidth, frameHeight, modelWidth, modelHeight int) []Rect {
	if frameWidth <= 0 || frameHeight <= 0 || modelWidth <= 0 || modelHeight <= 0 {
		return nil
	}
	tiling := tiledinference.MakeTiling(frameWidth, frameHeight, modelWidth, modelHeight, tileMinPadding)
	if tiling.IsSingle() {
		return nil
	}
	tiles := make([]Rect, 0, tiling.NumX*tiling.NumY)
	for ty := 0; ty < tiling.NumY; ty++ {
		for tx := 0; tx < tiling.NumX; tx++ {
			r := tiling.TileRect(tx, ty)
			tile := MakeRectXYXY(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2)).Clip(frameWidth, frameHeight)
			if !tile.IsEmpty() {
				tiles = append(tiles, tile)
			}
		}
	}
	return tiles
}
