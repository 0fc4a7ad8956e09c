// Package locator finds the regions of a frame that probably contain a jersey number.
//
// The detector runs over the whole frame (squashed into the model's input size),
// and optionally over a set of overlapping model-sized tiles, so that small numbers
// far from the camera are seen at full resolution. All detections are merged
// with a single greedy NMS pass.
package locator

import (
	"errors"
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/throttle"
	"github.com/cyclopcam/logs"
)

var ErrUnsupportedFrame = errors.New("Unsupported frame format")

// CandidateRegion is a box in frame pixel coordinates that probably contains a number
type CandidateRegion struct {
	Box   nn.Rect `json:"box"`
	Score float32 `json:"score"`
}

type Config struct {
	NmsIoUThreshold float32 // Suppress a candidate if its IoU with a better candidate exceeds this
	TilePasses      bool    // Run extra detection passes over model-sized tiles of large frames
}

func DefaultConfig() Config {
	return Config{
		NmsIoUThreshold: nn.DefaultNmsIouThreshold,
		TilePasses:      true,
	}
}

// Locator owns a detector, and the buffers that feed it.
// A Locator must only be used by one thread at a time.
type Locator struct {
	log      logs.Log
	detector nn.ObjectDetector
	config   Config
	output   *nn.RawOutput
	input    *cimg.Image // model-sized RGB buffer, reused across frames
	tile     *cimg.Image // tile crop buffer
	errLog   *throttle.Log

	resizeParams cimg.ResizeParams
}

// New creates a Locator. The Locator takes ownership of the detector, and
// closes it when the Locator is closed.
func New(log logs.Log, detector nn.ObjectDetector, config Config) *Locator {
	mc := detector.Config()
	return &Locator{
		log:      log,
		detector: detector,
		config:   config,
		output:   nn.NewRawOutput(mc.MaxDetections),
		input:    cimg.NewImage(mc.Width, mc.Height, cimg.PixelFormatRGB),
		errLog:   throttle.New(throttle.DefaultInterval),
		resizeParams: cimg.ResizeParams{
			CheapSRGBFilter: true,
			Filter:          cimg.ResizeFilterBox,
		},
	}
}

func (l *Locator) Close() {
	if l.detector != nil {
		l.detector.Close()
		l.detector = nil
	}
}

func (l *Locator) ModelConfig() *nn.ModelConfig {
	return l.detector.Config()
}

// Locate returns the de-duplicated candidate regions in 'frame', sorted by descending score.
// The frame is not modified.
// If the detector fails, Locate returns an empty list along with the error. The error
// has already been logged, so callers only need it for health reporting.
func (l *Locator) Locate(frame *cimg.Image, confidenceThreshold float32) ([]CandidateRegion, error) {
	regions, err := l.locate(frame, confidenceThreshold)
	if err != nil {
		l.errLog.Warnf(l.log, "Number locator failed: %v", err)
		return []CandidateRegion{}, err
	}
	return regions, nil
}

func (l *Locator) locate(frame *cimg.Image, confidenceThreshold float32) ([]CandidateRegion, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrUnsupportedFrame)
	}
	if frame.Format != cimg.PixelFormatRGB {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFrame, frame.Format)
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("%w: %v x %v", ErrUnsupportedFrame, frame.Width, frame.Height)
	}
	mc := l.detector.Config()

	// Whole frame pass. Failure here fails the whole frame.
	all, err := l.detectInto(nil, frame, nn.Rect{X: 0, Y: 0, Width: frame.Width, Height: frame.Height}, frame.Width, frame.Height, confidenceThreshold)
	if err != nil {
		return nil, err
	}

	if l.config.TilePasses {
		for _, tile := range nn.PlanTiles(frame.Width, frame.Height, mc.Width, mc.Height) {
			sub := l.crop(frame, tile)
			// A failed tile only loses the detections of that tile
			all, err = l.detectInto(all, sub, tile, frame.Width, frame.Height, confidenceThreshold)
			if err != nil {
				l.errLog.Warnf(l.log, "Number locator tile pass %v failed: %v", tile, err)
			}
		}
	}

	kept := nn.NMS(all, l.config.NmsIoUThreshold)
	regions := make([]CandidateRegion, 0, len(kept))
	for _, det := range kept {
		box := det.Box.ToPixels(frame.Width, frame.Height).Clip(frame.Width, frame.Height)
		if box.IsEmpty() {
			continue
		}
		regions = append(regions, CandidateRegion{Box: box, Score: det.Score})
	}
	return regions, nil
}

// Run the detector over 'img', which is the 'tile' region of a frame of size frameWidth x frameHeight.
// Detections that pass the score threshold are appended to 'dst', in frame-normalized coordinates.
func (l *Locator) detectInto(dst []nn.RawDetection, img *cimg.Image, tile nn.Rect, frameWidth, frameHeight int, threshold float32) ([]nn.RawDetection, error) {
	mc := l.detector.Config()
	var input *cimg.Image
	if img.Width == mc.Width && img.Height == mc.Height {
		input = img
	} else {
		cimg.Resize(img, l.input, &l.resizeParams)
		input = l.input
	}
	l.output.Reset()
	if err := l.detector.Detect(input, l.output); err != nil {
		return dst, err
	}
	valid, err := l.output.Valid()
	if err != nil {
		return dst, err
	}
	isWholeFrame := tile.X == 0 && tile.Y == 0 && tile.Width == frameWidth && tile.Height == frameHeight
	for _, det := range nn.FilterByScore(valid, threshold) {
		if !isWholeFrame {
			det.Box = det.Box.FromTile(tile, frameWidth, frameHeight)
		}
		dst = append(dst, det)
	}
	return dst, nil
}

// Copy the 'r' region of img into our tile buffer
func (l *Locator) crop(img *cimg.Image, r nn.Rect) *cimg.Image {
	if l.tile == nil || l.tile.Width != r.Width || l.tile.Height != r.Height {
		l.tile = cimg.NewImage(r.Width, r.Height, cimg.PixelFormatRGB)
	}
	l.tile.CopyImageRect(img, r.X, r.Y, r.X2(), r.Y2(), 0, 0)
	return l.tile
}
