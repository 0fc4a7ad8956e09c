package jersey

import (
	"errors"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/ocr"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func element(text string, x, y, w, h int, conf float32) ocr.TextElement {
	return ocr.TextElement{Text: text, Box: nn.Rect{X: x, Y: y, Width: w, Height: h}, Confidence: conf}
}

func configNoColor() Config {
	c := DefaultConfig()
	c.ColorContext = false
	return c
}

func TestFragmentMergeDirection(t *testing.T) {
	c := configNoColor()

	// "1" on the left, "0" on the right
	res := c.ScoreElements(nil, []ocr.TextElement{
		element("1", 0, 0, 12, 30, 0.9),
		element("0", 20, 0, 16, 30, 0.9),
	}, 0.3)
	require.Len(t, res, 1)
	require.Equal(t, "10", res[0].Text)
	require.Equal(t, SourceFragments, res[0].Source)
	require.Equal(t, nn.MakeRectXYXY(0, 0, 36, 30), res[0].Box)
	require.InDelta(t, 0.4+0.18+0.15+0.15, res[0].Confidence, 1e-5)

	// Swapped: zero is left of one
	res = c.ScoreElements(nil, []ocr.TextElement{
		element("1", 20, 0, 12, 30, 0.9),
		element("0", 0, 0, 16, 30, 0.9),
	}, 0.3)
	require.Len(t, res, 0)
}

func TestFragmentsNotReadAlone(t *testing.T) {
	c := configNoColor()

	// This "0" has the ideal shape of a single digit, so on its own it is a strong direct reading
	zero := element("0", 114, 100, 30, 36, 0.9)
	res := c.ScoreElements(nil, []ocr.TextElement{zero}, 0.3)
	require.Len(t, res, 1)
	require.Equal(t, "0", res[0].Text)

	// Beside a "1", it only contributes to the "10"
	res = c.ScoreElements(nil, []ocr.TextElement{
		element("1", 100, 100, 10, 36, 0.9),
		zero,
	}, 0.3)
	require.Len(t, res, 1)
	require.Equal(t, "10", res[0].Text)
	require.Equal(t, SourceFragments, res[0].Source)
	require.InDelta(t, 0.88, res[0].Confidence, 1e-5)

	// A second "0" elsewhere in the frame is still read
	res = c.ScoreElements(nil, []ocr.TextElement{
		element("1", 100, 100, 10, 36, 0.9),
		zero,
		element("0", 400, 100, 30, 36, 0.9),
	}, 0.3)
	require.Len(t, res, 2)
	require.Equal(t, "0", res[0].Text)
	require.Equal(t, nn.Rect{X: 400, Y: 100, Width: 30, Height: 36}, res[0].Box)
	require.Equal(t, "10", res[1].Text)

	// Without merging, the "0" is read directly
	c.MergeFragments = false
	res = c.ScoreElements(nil, []ocr.TextElement{
		element("1", 100, 100, 10, 36, 0.9),
		zero,
	}, 0.3)
	require.Len(t, res, 1)
	require.Equal(t, "0", res[0].Text)
}

func TestFragmentMergeGlyphs(t *testing.T) {
	c := configNoColor()
	res := c.ScoreElements(nil, []ocr.TextElement{
		element("l", 100, 50, 10, 40, 0.5),
		element("O", 118, 52, 22, 40, 0.5),
	}, 0.3)
	require.Len(t, res, 1)
	require.Equal(t, "10", res[0].Text)

	// Too far apart
	res = c.ScoreElements(nil, []ocr.TextElement{
		element("1", 0, 0, 12, 30, 0.9),
		element("0", 200, 0, 16, 30, 0.9),
	}, 0.3)
	require.Len(t, res, 0)

	// No vertical overlap
	res = c.ScoreElements(nil, []ocr.TextElement{
		element("1", 0, 0, 12, 30, 0.9),
		element("0", 20, 40, 16, 30, 0.9),
	}, 0.3)
	require.Len(t, res, 0)

	// Heights too different
	res = c.ScoreElements(nil, []ocr.TextElement{
		element("1", 0, 0, 12, 30, 0.9),
		element("0", 20, 0, 16, 70, 0.9),
	}, 0.3)
	require.Len(t, res, 0)

	// Disabled
	c.MergeFragments = false
	res = c.ScoreElements(nil, []ocr.TextElement{
		element("1", 0, 0, 12, 30, 0.9),
		element("0", 20, 0, 16, 30, 0.9),
	}, 0.3)
	require.Len(t, res, 0)
}

func TestLoneGlyph(t *testing.T) {
	require.True(t, isLoneGlyph("1", oneGlyphs))
	require.True(t, isLoneGlyph("|", oneGlyphs))
	require.True(t, isLoneGlyph("1.", oneGlyphs))
	require.False(t, isLoneGlyph("11", oneGlyphs))
	require.False(t, isLoneGlyph("0", oneGlyphs))
	require.True(t, isLoneGlyph("o", zeroGlyphs))
	require.False(t, isLoneGlyph("10", zeroGlyphs))
}

func TestDirectCandidate(t *testing.T) {
	c := configNoColor()

	// Not exact (has a '#'), height 50, aspect 1.25 for one digit
	res := c.ScoreElements(nil, []ocr.TextElement{element("#7", 0, 0, 40, 50, 0.9)}, 0.3)
	require.Len(t, res, 1)
	require.Equal(t, "7", res[0].Text)
	require.Equal(t, SourceDirect, res[0].Source)
	expect := float32(0.6) + (0.2 - 10.0/60.0) + (0.2 - 0.05*0.5)
	require.InDelta(t, expect, res[0].Confidence, 1e-4)

	// Ideal "10": exact, ideal height, ideal aspect. Clamped to 1.
	res = c.ScoreElements(nil, []ocr.TextElement{element("10", 0, 0, 100, 60, 0.9)}, 0.3)
	require.Len(t, res, 1)
	require.EqualValues(t, 1, res[0].Confidence)

	// Leading zeros survive
	res = c.ScoreElements(nil, []ocr.TextElement{element("00", 0, 0, 100, 60, 0.9)}, 0.3)
	require.Len(t, res, 1)
	require.Equal(t, "00", res[0].Text)

	// Rejections
	rejects := []ocr.TextElement{
		element("7", 0, 0, 4, 5, 0.9),       // too small
		element("7", 0, 0, 500, 600, 0.9),   // too big
		element("123", 0, 0, 150, 60, 0.9),  // too many digits
		element("ab", 0, 0, 50, 60, 0.9),    // no digits
		element("7", 0, 0, 100, 30, 0.9),    // too wide for one digit
		element("23", 0, 0, 30, 60, 0.9),    // too narrow for two digits
	}
	res = c.ScoreElements(nil, rejects, 0.3)
	require.Len(t, res, 0)

	// Threshold is exclusive
	res = c.ScoreElements(nil, []ocr.TextElement{element("10", 0, 0, 100, 60, 0.9)}, 1.0)
	require.Len(t, res, 0)
}

func TestSortedAndDeduped(t *testing.T) {
	c := configNoColor()
	res := c.ScoreElements(nil, []ocr.TextElement{
		element("#7", 0, 0, 40, 50, 0.9),
		element("10", 300, 0, 100, 60, 0.9),
		element("10", 302, 1, 100, 60, 0.9), // same place, same number
	}, 0.3)
	require.Len(t, res, 2)
	require.Equal(t, "10", res[0].Text)
	require.Equal(t, "7", res[1].Text)
	require.GreaterOrEqual(t, res[0].Confidence, res[1].Confidence)
}

func TestColorUniformity(t *testing.T) {
	flat := cimg.NewImage(100, 100, cimg.PixelFormatRGB)
	for i := range flat.Pixels {
		flat.Pixels[i] = 120
	}
	require.InDelta(t, 1.0, colorUniformity(flat, nn.Rect{X: 40, Y: 40, Width: 10, Height: 10}), 1e-6)

	noisy := cimg.NewImage(100, 100, cimg.PixelFormatRGB)
	for i := range noisy.Pixels {
		if (i/3)%2 == 0 {
			noisy.Pixels[i] = 255
		}
	}
	require.EqualValues(t, 0, colorUniformity(noisy, nn.Rect{X: 40, Y: 40, Width: 10, Height: 10}))

	c := DefaultConfig()
	res := c.ScoreElements(flat, []ocr.TextElement{element("#7", 10, 10, 40, 50, 0.9)}, 0.3)
	require.Len(t, res, 1)
	expect := float32(0.6) + (0.2 - 10.0/60.0) + (0.2 - 0.05*0.5) + 0.1
	require.InDelta(t, expect, res[0].Confidence, 1e-4)
}

type fakeText struct {
	fn     func(img *cimg.Image) ([]ocr.TextElement, error)
	sizes  [][2]int
	closed bool
}

func (f *fakeText) Recognize(img *cimg.Image) ([]ocr.TextElement, error) {
	f.sizes = append(f.sizes, [2]int{img.Width, img.Height})
	return f.fn(img)
}

func (f *fakeText) Close() {
	f.closed = true
}

func TestRecognizer(t *testing.T) {
	log := logs.NewTestingLog(t)
	fake := &fakeText{
		fn: func(img *cimg.Image) ([]ocr.TextElement, error) {
			return []ocr.TextElement{element("23", 10, 10, 50, 30, 0.8)}, nil
		},
	}
	r := NewRecognizer(log, fake, configNoColor())
	frame := cimg.NewImage(200, 200, cimg.PixelFormatRGB)

	res, err := r.Recognize(frame, []nn.Rect{nn.MakeRectXYXY(50, 50, 150, 110)}, 0.3)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "23", res[0].Text)
	// element box mapped from crop to frame coordinates
	require.Equal(t, nn.MakeRectXYXY(60, 60, 110, 90), res[0].Box)
	require.Equal(t, [2]int{100, 60}, fake.sizes[0])

	// Small regions are upscaled before recognition
	fake.sizes = nil
	_, err = r.Recognize(frame, []nn.Rect{nn.MakeRectXYXY(0, 0, 16, 20)}, 0.3)
	require.NoError(t, err)
	require.Equal(t, [2]int{32, 40}, fake.sizes[0])

	// Only MaxRegions regions are recognized, and regions outside the frame are skipped
	fake.sizes = nil
	regions := []nn.Rect{}
	for i := 0; i < 7; i++ {
		regions = append(regions, nn.Rect{X: i * 20, Y: 0, Width: 40, Height: 40})
	}
	regions[1] = nn.MakeRectXYXY(500, 500, 540, 540)
	_, err = r.Recognize(frame, regions, 0.3)
	require.NoError(t, err)
	require.Len(t, fake.sizes, 4)

	// No regions
	fake.sizes = nil
	res, err = r.Recognize(frame, nil, 0.3)
	require.NoError(t, err)
	require.Len(t, res, 0)
	require.Len(t, fake.sizes, 0)

	// No regions, with whole frame fallback
	r.config.WholeFrameFallback = true
	_, err = r.Recognize(frame, nil, 0.3)
	require.NoError(t, err)
	require.Equal(t, [][2]int{{200, 200}}, fake.sizes)

	// Recognition failure yields an empty result
	fake.fn = func(img *cimg.Image) ([]ocr.TextElement, error) {
		return nil, errors.New("engine crashed")
	}
	res, err = r.Recognize(frame, []nn.Rect{nn.MakeRectXYXY(50, 50, 150, 110)}, 0.3)
	require.Error(t, err)
	require.NotNil(t, res)
	require.Len(t, res, 0)

	r.Close()
	require.True(t, fake.closed)
	_, err = r.Recognize(frame, nil, 0.3)
	require.ErrorIs(t, err, ocr.ErrRecognizerClosed)
}
