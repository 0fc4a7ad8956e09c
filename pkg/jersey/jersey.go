// Package jersey reads jersey numbers out of the candidate regions of a frame.
//
// Each region is cropped, enhanced and handed to a text recognizer. The words that
// come back are validated against size and shape priors of printed numbers, and
// scored. Separately, a lone "1" beside a lone "0" is merged into "10", because
// text recognizers often split a wide-spaced "10" into two words.
package jersey

import (
	"sort"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/ocr"
	"github.com/cyclopcam/jerseyid/pkg/throttle"
	"github.com/cyclopcam/logs"
)

// How a RecognizedNumber was produced
type Source string

const (
	SourceDirect    Source = "direct"    // A single text element
	SourceFragments Source = "fragments" // Two adjacent single-glyph elements
)

// RecognizedNumber is a jersey number read from a frame
type RecognizedNumber struct {
	Text       string  `json:"text"` // Digits only. Leading zeros are significant ("00" is not "0").
	Box        nn.Rect `json:"box"`  // Frame pixel coordinates
	Confidence float32 `json:"confidence"`
	Source     Source  `json:"source"`
}

type Config struct {
	MinSize            int     // Minimum text box width and height, in frame pixels
	MaxSize            int     // Maximum text box width and height, in frame pixels
	MaxDigits          int     // Longest number we accept
	IdealDigitAspect   float32 // height/width of a single printed digit. For n digits the ideal is IdealDigitAspect/n.
	AspectTolerance    float32 // Allowed deviation from the ideal aspect ratio
	IdealTextHeight    float32 // Text height (pixels) that earns the full size bonus
	MaxRegions         int     // Only the best MaxRegions regions are sent to the text recognizer
	MinOCRCrop         int     // Region crops are upscaled so that their shortest side is at least this
	WholeFrameFallback bool    // If there are no regions, run the text recognizer over the whole frame
	MergeFragments     bool    // Merge a lone "1" and a lone "0" into "10"
	ColorContext       bool    // Add a small bonus for uniform colour around the text
}

func DefaultConfig() Config {
	return Config{
		MinSize:          10,
		MaxSize:          400,
		MaxDigits:        2,
		IdealDigitAspect: 1.2,
		AspectTolerance:  0.4,
		IdealTextHeight:  60,
		MaxRegions:       5,
		MinOCRCrop:       32,
		MergeFragments:   true,
		ColorContext:     true,
	}
}

// Recognizer owns a text recognizer, and turns candidate regions into numbers.
// A Recognizer must only be used by one thread at a time.
type Recognizer struct {
	log    logs.Log
	text   ocr.TextRecognizer
	config Config
	errLog *throttle.Log
}

// NewRecognizer takes ownership of 'text', and closes it when the Recognizer is closed
func NewRecognizer(log logs.Log, text ocr.TextRecognizer, config Config) *Recognizer {
	return &Recognizer{
		log:    log,
		text:   text,
		config: config,
		errLog: throttle.New(throttle.DefaultInterval),
	}
}

func (r *Recognizer) Close() {
	if r.text != nil {
		r.text.Close()
		r.text = nil
	}
}

func (r *Recognizer) Config() Config {
	return r.config
}

// Recognize reads numbers from 'regions' of 'frame'.
// Regions are assumed to be sorted by descending detector score.
// The result is sorted by descending confidence, and only contains numbers whose confidence exceeds 'threshold'.
// If the text recognizer fails, the result is empty and the error is returned for health reporting.
// The error has already been logged.
func (r *Recognizer) Recognize(frame *cimg.Image, regions []nn.Rect, threshold float32) ([]RecognizedNumber, error) {
	if r.text == nil {
		return []RecognizedNumber{}, ocr.ErrRecognizerClosed
	}
	if len(regions) > r.config.MaxRegions {
		regions = regions[:r.config.MaxRegions]
	}
	minCrop := r.config.MinOCRCrop
	if len(regions) == 0 {
		if !r.config.WholeFrameFallback {
			return []RecognizedNumber{}, nil
		}
		regions = []nn.Rect{{X: 0, Y: 0, Width: frame.Width, Height: frame.Height}}
		minCrop = 1
	}

	elements := []ocr.TextElement{}
	for _, region := range regions {
		crop, ok := ocr.PrepareCrop(frame, region, minCrop)
		if !ok {
			// Malformed region geometry only loses this region
			continue
		}
		found, err := r.text.Recognize(crop.Image)
		if err != nil {
			r.errLog.Warnf(r.log, "Text recognition failed: %v", err)
			return []RecognizedNumber{}, err
		}
		for _, el := range found {
			el.Box = crop.ToFrame(el.Box)
			elements = append(elements, el)
		}
	}
	return r.config.ScoreElements(frame, elements, threshold), nil
}

// ScoreElements turns raw text elements (in frame coordinates) into scored numbers.
// 'frame' is only used for colour context, and may be nil.
func (c *Config) ScoreElements(frame *cimg.Image, elements []ocr.TextElement, threshold float32) []RecognizedNumber {
	results := []RecognizedNumber{}
	var paired []bool
	if c.MergeFragments {
		var merged []RecognizedNumber
		merged, paired = mergeFragments(elements)
		for _, m := range merged {
			if m.Confidence > threshold {
				results = append(results, m)
			}
		}
	}
	for i, el := range elements {
		if paired != nil && paired[i] {
			// Half of a merged "10" is not a number of its own
			continue
		}
		digits, ok := c.isCandidate(el)
		if !ok {
			continue
		}
		conf := c.directConfidence(el, digits, frame)
		if conf > threshold {
			results = append(results, RecognizedNumber{
				Text:       digits,
				Box:        el.Box,
				Confidence: conf,
				Source:     SourceDirect,
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return dedupe(results)
}

// Remove lower confidence copies of the same number in the same place.
// This happens when overlapping regions both see the same text.
// 'results' must be sorted by descending confidence.
func dedupe(results []RecognizedNumber) []RecognizedNumber {
	const sameIoU = 0.5
	kept := results[:0]
	for _, r := range results {
		dup := false
		for _, k := range kept {
			if k.Text == r.Text && k.Box.IOU(r.Box) > sameIoU {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, r)
		}
	}
	return kept
}
