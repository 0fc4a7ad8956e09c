package jersey

import (
	"strings"

	"github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"
	"github.com/cyclopcam/jerseyid/pkg/gen"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/ocr"
)

// Glyphs that text recognizers produce when they see a printed "1" or "0"
const oneGlyphs = "1lI|"
const zeroGlyphs = "0Oo"

// Return true if 'text' is a single glyph from 'glyphs', ignoring any characters
// that are in neither 'glyphs' nor the digits.
func isLoneGlyph(text, glyphs string) bool {
	kept := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || strings.ContainsRune(glyphs, r) {
			return r
		}
		return -1
	}, text)
	return len(kept) == 1 && strings.ContainsRune(glyphs, rune(kept[0]))
}

func centerX(r nn.Rect) float32 {
	return float32(r.X) + float32(r.Width)/2
}

func centerY(r nn.Rect) float32 {
	return float32(r.Y) + float32(r.Height)/2
}

// Two elements are nearby if their centres are horizontally closer than twice the wider
// element's width, and they overlap vertically.
func areNearby(a, b nn.Rect) bool {
	maxDistance := float32(max(a.Width, b.Width) * 2)
	dx := math32.Abs(centerX(a) - centerX(b))
	verticalOverlap := min(a.Y2(), b.Y2()) - max(a.Y, b.Y)
	return dx < maxDistance && verticalOverlap > 0
}

// The "1" must be left of the "0", and their heights within a factor of two
func isValidTenPair(one, zero nn.Rect) bool {
	if centerX(one) >= centerX(zero) {
		return false
	}
	ratio := float32(one.Height) / float32(zero.Height)
	return ratio > 0.5 && ratio < 2
}

func fragmentConfidence(one, zero ocr.TextElement) float32 {
	conf := float32(0.4)
	conf += (one.Confidence + zero.Confidence) * 0.1

	ratio := float32(one.Box.Height) / float32(zero.Box.Height)
	if ratio > 0.7 && ratio < 1.3 {
		conf += 0.15
	}

	avgHeight := float32(one.Box.Height+zero.Box.Height) / 2
	if math32.Abs(centerY(one.Box)-centerY(zero.Box)) < avgHeight*0.3 {
		conf += 0.15
	}
	return gen.Clamp(conf, 0, 1)
}

// mergeFragments finds every lone "1" that sits just left of a lone "0", and produces a "10"
// whose box is the union of the two.
// paired[i] is true if elements[i] was used in at least one merge. paired is nil when nothing merged.
func mergeFragments(elements []ocr.TextElement) (merged []RecognizedNumber, paired []bool) {
	ones := []int{}
	zeros := []int{}
	for i, el := range elements {
		if el.Box.IsEmpty() {
			continue
		}
		if isLoneGlyph(el.Text, oneGlyphs) {
			ones = append(ones, i)
		} else if isLoneGlyph(el.Text, zeroGlyphs) {
			zeros = append(zeros, i)
		}
	}
	if len(ones) == 0 || len(zeros) == 0 {
		return nil, nil
	}

	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(zeros))
	maxZeroWidth := 0
	for _, i := range zeros {
		b := elements[i].Box
		fb.Add(int32(b.X), int32(b.Y), int32(b.X2()), int32(b.Y2()))
		maxZeroWidth = max(maxZeroWidth, b.Width)
	}
	fb.Finish()

	nearby := []int{}
	for _, i := range ones {
		one := elements[i]
		// Any zero that areNearby() accepts has its centre within 2*maxWidth of ours,
		// so its box lies within this search window.
		reach := int32(2*max(one.Box.Width, maxZeroWidth) + maxZeroWidth)
		nearby = fb.SearchFast(int32(one.Box.X)-reach, int32(one.Box.Y), int32(one.Box.X2())+reach, int32(one.Box.Y2()), nearby)
		for _, k := range nearby {
			zero := elements[zeros[k]]
			if !areNearby(one.Box, zero.Box) || !isValidTenPair(one.Box, zero.Box) {
				continue
			}
			if paired == nil {
				paired = make([]bool, len(elements))
			}
			paired[i] = true
			paired[zeros[k]] = true
			merged = append(merged, RecognizedNumber{
				Text:       "10",
				Box:        one.Box.Union(zero.Box),
				Confidence: fragmentConfidence(one, zero),
				Source:     SourceFragments,
			})
		}
	}
	return merged, paired
}
