package ocr

import (
	"github.com/bmharper/cimg/v2"
	"github.com/chewxy/math32"
	"github.com/cyclopcam/jerseyid/pkg/nn"
)

// Crop is a region of a frame that has been prepared for text recognition.
// The image may be upscaled relative to the frame.
type Crop struct {
	Image  *cimg.Image
	Region nn.Rect // Region of the frame that Image was cut from
	Scale  float32 // Image pixels per frame pixel (>= 1)
}

// PrepareCrop cuts 'region' out of 'frame', upscales it so that its shortest side
// is at least minSize pixels, and boosts its contrast.
// Returns false if the region is empty once clamped to the frame.
// The frame is not modified.
func PrepareCrop(frame *cimg.Image, region nn.Rect, minSize int) (*Crop, bool) {
	region = region.Clip(frame.Width, frame.Height)
	if region.IsEmpty() {
		return nil, false
	}
	img := cimg.NewImage(region.Width, region.Height, frame.Format)
	img.CopyImageRect(frame, region.X, region.Y, region.X2(), region.Y2(), 0, 0)

	scale := float32(1)
	shortest := min(region.Width, region.Height)
	if shortest < minSize {
		scale = float32(minSize) / float32(shortest)
		w := int(math32.Round(float32(region.Width) * scale))
		h := int(math32.Round(float32(region.Height) * scale))
		img = cimg.ResizeNew(img, w, h, &cimg.ResizeParams{CheapSRGBFilter: true, Filter: cimg.ResizeFilterCatmullRom})
	}
	EnhanceContrast(img)
	return &Crop{
		Image:  img,
		Region: region,
		Scale:  scale,
	}, true
}

// ToFrame maps a box from crop image coordinates back into frame coordinates
func (c *Crop) ToFrame(box nn.Rect) nn.Rect {
	inv := 1 / c.Scale
	x1 := c.Region.X + int(math32.Round(float32(box.X)*inv))
	y1 := c.Region.Y + int(math32.Round(float32(box.Y)*inv))
	x2 := c.Region.X + int(math32.Round(float32(box.X2())*inv))
	y2 := c.Region.Y + int(math32.Round(float32(box.Y2())*inv))
	return nn.MakeRectXYXY(x1, y1, x2, y2)
}

// EnhanceContrast stretches every channel of img in place with v' = 3v - 150, clamped to [0,255].
func EnhanceContrast(img *cimg.Image) {
	rowBytes := img.Width * img.NChan()
	for y := 0; y < img.Height; y++ {
		row := img.Pixels[y*img.Stride : y*img.Stride+rowBytes]
		for i, v := range row {
			row[i] = contrastLUT[v]
		}
	}
}

var contrastLUT [256]byte

func init() {
	for i := 0; i < 256; i++ {
		v := 3*i - 150
		contrastLUT[i] = byte(max(0, min(255, v)))
	}
}
