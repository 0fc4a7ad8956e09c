package jersey

import (
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/chewxy/math32"
	"github.com/cyclopcam/jerseyid/pkg/gen"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/ocr"
)

// NormalizeDigits strips everything except the digits 0-9
func NormalizeDigits(text string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
}

// isExact is true when the text element is nothing but a number of acceptable length
func (c *Config) isExact(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > c.MaxDigits {
		return false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// idealAspect is the ideal height/width ratio of an n-digit number
func (c *Config) idealAspect(nDigits int) float32 {
	return c.IdealDigitAspect / float32(nDigits)
}

// isCandidate returns the element's digits, if the element looks like a printed jersey number
func (c *Config) isCandidate(el ocr.TextElement) (string, bool) {
	digits := NormalizeDigits(el.Text)
	if digits == "" || len(digits) > c.MaxDigits {
		return "", false
	}
	w, h := el.Box.Width, el.Box.Height
	if w < c.MinSize || w > c.MaxSize || h < c.MinSize || h > c.MaxSize {
		return "", false
	}
	aspect := float32(h) / float32(w)
	if math32.Abs(aspect-c.idealAspect(len(digits))) > c.AspectTolerance {
		return "", false
	}
	return digits, true
}

// directConfidence scores a validated text element.
// The score is a base value, plus bonuses for clean text, ideal height, ideal aspect ratio,
// and uniform colour around the text.
func (c *Config) directConfidence(el ocr.TextElement, digits string, frame *cimg.Image) float32 {
	conf := float32(0.6)
	if c.isExact(el.Text) {
		conf += 0.2
	}

	h := float32(el.Box.Height)
	sizeDiff := math32.Abs(h-c.IdealTextHeight) / c.IdealTextHeight
	conf += max(0, 0.2-sizeDiff)

	aspect := h / float32(el.Box.Width)
	aspectDiff := math32.Abs(aspect - c.idealAspect(len(digits)))
	conf += max(0, 0.2-aspectDiff*0.5)

	if c.ColorContext && frame != nil {
		conf += colorUniformity(frame, el.Box) * 0.1
	}
	return gen.Clamp(conf, 0, 1)
}

// colorUniformity measures how flat the colour is in the neighbourhood of 'box'.
// The neighbourhood is the box expanded by its own width and height on every side.
// Returns 1 for a perfectly flat colour, falling to 0 when the RGB variance reaches 10000.
func colorUniformity(frame *cimg.Image, box nn.Rect) float32 {
	if frame.NChan() < 3 {
		return 0
	}
	r := box.Expand(box.Width, box.Height).Clip(frame.Width, frame.Height)
	if r.IsEmpty() {
		return 0
	}
	nchan := frame.NChan()
	var sum, sumSq [3]float64
	for y := r.Y; y < r.Y2(); y++ {
		row := frame.Pixels[y*frame.Stride+r.X*nchan : y*frame.Stride+r.X2()*nchan]
		for x := 0; x < len(row); x += nchan {
			for ch := 0; ch < 3; ch++ {
				v := float64(row[x+ch])
				sum[ch] += v
				sumSq[ch] += v * v
			}
		}
	}
	n := float64(r.Area())
	variance := 0.0
	for ch := 0; ch < 3; ch++ {
		mean := sum[ch] / n
		variance += sumSq[ch]/n - mean*mean
	}
	return float32(max(0, (10000-variance)/10000))
}
