// Package tesseract is an ocr.TextRecognizer backed by the Tesseract engine
package tesseract

import (
	"fmt"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Characters that Tesseract is allowed to emit.
// Besides digits, we allow the letters that are commonly confused with 1 and 0, so
// that the fragment merger can still see them.
const whitelist = "0123456789lI|Oo"

type Options struct {
	TessdataPath string // Blank = Tesseract default
	Language     string // Blank = "eng"
}

type Recognizer struct {
	client *gosseract.Client
}

func New(options Options) (*Recognizer, error) {
	client := gosseract.NewClient()
	if options.TessdataPath != "" {
		if err := client.SetTessdataPrefix(options.TessdataPath); err != nil {
			client.Close()
			return nil, fmt.Errorf("Failed to set tessdata path: %w", err)
		}
	}
	lang := options.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("Failed to set OCR language: %w", err)
	}
	// Jersey numbers are sparse, isolated words
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("Failed to set page segmentation mode: %w", err)
	}
	if err := client.SetWhitelist(whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("Failed to set character whitelist: %w", err)
	}
	return &Recognizer{
		client: client,
	}, nil
}

func (r *Recognizer) Close() {
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}

func (r *Recognizer) Recognize(img *cimg.Image) ([]ocr.TextElement, error) {
	if r.client == nil {
		return nil, ocr.ErrRecognizerClosed
	}
	encoded, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling444, 95, 0))
	if err != nil {
		return nil, fmt.Errorf("Failed to encode image for OCR: %w", err)
	}
	if err := r.client.SetImageFromBytes(encoded); err != nil {
		return nil, fmt.Errorf("Failed to set OCR image: %w", err)
	}
	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}
	elements := make([]ocr.TextElement, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		elements = append(elements, ocr.TextElement{
			Text:       text,
			Box:        nn.MakeRectXYXY(b.Box.Min.X, b.Box.Min.Y, b.Box.Max.X, b.Box.Max.Y),
			Confidence: float32(b.Confidence / 100),
		})
	}
	return elements, nil
}
