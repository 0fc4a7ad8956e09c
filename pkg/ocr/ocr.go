// Package ocr is the interface to a text recognition engine, along with the
// image preparation that makes small, low contrast jersey numbers legible to it.
package ocr

import (
	"errors"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/nn"
)

var ErrRecognizerClosed = errors.New("Text recognizer is closed")

// TextElement is a word found by the text recognizer
type TextElement struct {
	Text       string  `json:"text"`
	Box        nn.Rect `json:"box"`
	Confidence float32 `json:"confidence"` // 0..1
}

// TextRecognizer finds words in an image.
// Implementations need not be safe for concurrent use.
type TextRecognizer interface {
	// Recognize returns all words in img, with boxes in img's pixel coordinates
	Recognize(img *cimg.Image) ([]TextElement, error)

	// Close releases the engine
	Close()
}
