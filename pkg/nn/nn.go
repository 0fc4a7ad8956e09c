// Package nn is the neural network interface layer for number localization.
// To load a model, use the nnload package.
package nn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bmharper/cimg/v2"
)

const DefaultProbabilityThreshold = 0.15
const DefaultNmsIouThreshold = 0.3

// Default maximum number of detections that a model emits per image
const DefaultMaxDetections = 40

// ErrMalformedOutput is returned when a model's output does not match its declared shape
var ErrMalformedOutput = errors.New("Malformed model output")

// RawDetection is a box and score straight out of the detection model
type RawDetection struct {
	Box   NormRect `json:"box"`
	Score float32  `json:"score"`
}

// RawOutput holds the fixed-capacity output buffers of a detection model.
// The model fills Detections[0:Count]. Entries beyond Count are ignored.
// A RawOutput is allocated once per detector and reused for every frame.
type RawOutput struct {
	Detections []RawDetection
	Count      int
}

// Create a RawOutput with capacity for 'capacity' detections
func NewRawOutput(capacity int) *RawOutput {
	return &RawOutput{
		Detections: make([]RawDetection, capacity),
	}
}

func (o *RawOutput) Capacity() int {
	return len(o.Detections)
}

func (o *RawOutput) Reset() {
	o.Count = 0
}

// Valid returns the valid detections, or ErrMalformedOutput if the reported count
// is out of range, or any box or score is not finite.
// Box ordering is not checked. A reversed box is empty after clipping, and callers drop it then.
func (o *RawOutput) Valid() ([]RawDetection, error) {
	if o.Count < 0 || o.Count > len(o.Detections) {
		return nil, fmt.Errorf("%w: count %v, capacity %v", ErrMalformedOutput, o.Count, len(o.Detections))
	}
	valid := o.Detections[:o.Count]
	for i := range valid {
		b := valid[i].Box
		if !isFinite(b.X1) || !isFinite(b.Y1) || !isFinite(b.X2) || !isFinite(b.Y2) || !isFinite(valid[i].Score) {
			return nil, fmt.Errorf("%w: non-finite value in detection %v", ErrMalformedOutput, i)
		}
	}
	return valid, nil
}

func isFinite(f float32) bool {
	return f == f && f < 3.4e38 && f > -3.4e38
}

// ObjectDetector is given an image, and returns raw detections
type ObjectDetector interface {
	// Close releases the model (you MUST call this when finished, because there is a C++ runtime underneath)
	Close()

	// Detect runs the model over 'img', which must be exactly Config().Width x Config().Height RGB.
	// Results are written into 'out', which must have capacity Config().MaxDetections.
	Detect(img *cimg.Image, out *RawOutput) error

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture  string   `json:"architecture"`  // eg "ssd-mobilenet"
	Width         int      `json:"width"`         // eg 320
	Height        int      `json:"height"`        // eg 320
	Quantized     bool     `json:"quantized"`     // True if the input tensor is uint8 (otherwise float32 in [0,1])
	MaxDetections int      `json:"maxDetections"` // Capacity of the output buffers (eg 40)
	InputName     string   `json:"inputName"`     // eg "normalized_input_image_tensor"
	OutputNames   []string `json:"outputNames"`   // boxes, classes, scores, count (in that order)
	Classes       []string `json:"classes"`       // eg ["number"]
}

// Fill in defaults for fields that are missing from the JSON file
func (c *ModelConfig) applyDefaults() {
	if c.MaxDetections == 0 {
		c.MaxDetections = DefaultMaxDetections
	}
	if c.InputName == "" {
		c.InputName = "normalized_input_image_tensor"
	}
	if len(c.OutputNames) == 0 {
		c.OutputNames = []string{
			"TFLite_Detection_PostProcess",
			"TFLite_Detection_PostProcess:1",
			"TFLite_Detection_PostProcess:2",
			"TFLite_Detection_PostProcess:3",
		}
	}
	if len(c.Classes) == 0 {
		c.Classes = []string{"number"}
	}
}

func (c *ModelConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("Invalid model input size %vx%v", c.Width, c.Height)
	}
	if len(c.OutputNames) != 4 {
		return fmt.Errorf("Expected 4 model outputs (boxes, classes, scores, count), but config has %v", len(c.OutputNames))
	}
	return nil
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, fmt.Errorf("Error parsing model config %v: %w", filename, err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
