// Package ortdetect runs an SSD-style number detection model through ONNX Runtime.
// The model is expected to have the classic TFLite detection post-process outputs:
//
//	boxes   [1, N, 4] (ymin, xmin, ymax, xmax), normalized
//	classes [1, N]
//	scores  [1, N]
//	count   [1]
package ortdetect

import (
	"fmt"
	"sync"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	ort "github.com/yalue/onnxruntime_go"
)

// The ONNX Runtime environment is process-wide, so we reference count it across detectors.
var envLock sync.Mutex
var envRefs int

func acquireEnvironment(sharedLibPath string) error {
	envLock.Lock()
	defer envLock.Unlock()
	if envRefs == 0 {
		if sharedLibPath != "" {
			ort.SetSharedLibraryPath(sharedLibPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("Failed to initialize ONNX runtime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envLock.Lock()
	defer envLock.Unlock()
	envRefs--
	if envRefs == 0 {
		ort.DestroyEnvironment()
	}
}

type Options struct {
	SharedLibPath string // Path to onnxruntime.so. Empty = let the library find it.
	NumThreads    int    // Intra-op threads. Zero = 1.
}

// Detector is an nn.ObjectDetector backed by an ONNX Runtime session.
// A Detector is not safe for concurrent use.
type Detector struct {
	config     nn.ModelConfig
	session    *ort.AdvancedSession
	inputU8    *ort.Tensor[uint8]
	inputF32   *ort.Tensor[float32]
	outBoxes   *ort.Tensor[float32]
	outClasses *ort.Tensor[float32]
	outScores  *ort.Tensor[float32]
	outCount   *ort.Tensor[float32]
	closed     bool
}

func NewDetector(config *nn.ModelConfig, modelFile string, options Options) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := acquireEnvironment(options.SharedLibPath); err != nil {
		return nil, err
	}
	d := &Detector{
		config: *config,
	}
	if err := d.init(modelFile, options); err != nil {
		d.destroyTensors()
		releaseEnvironment()
		return nil, err
	}
	return d, nil
}

func (d *Detector) init(modelFile string, options Options) error {
	var err error
	n := int64(d.config.MaxDetections)
	inputShape := ort.NewShape(1, int64(d.config.Height), int64(d.config.Width), 3)
	var input ort.ArbitraryTensor
	if d.config.Quantized {
		d.inputU8, err = ort.NewTensor(inputShape, make([]uint8, d.config.Width*d.config.Height*3))
		input = d.inputU8
	} else {
		d.inputF32, err = ort.NewTensor(inputShape, make([]float32, d.config.Width*d.config.Height*3))
		input = d.inputF32
	}
	if err != nil {
		return fmt.Errorf("Failed to create input tensor: %w", err)
	}

	if d.outBoxes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n, 4)); err != nil {
		return err
	}
	if d.outClasses, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err != nil {
		return err
	}
	if d.outScores, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err != nil {
		return err
	}
	if d.outCount, err = ort.NewEmptyTensor[float32](ort.NewShape(1)); err != nil {
		return err
	}

	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return err
	}
	defer sessionOptions.Destroy()
	sessionOptions.SetIntraOpNumThreads(max(1, options.NumThreads))
	sessionOptions.SetInterOpNumThreads(1)

	d.session, err = ort.NewAdvancedSession(modelFile,
		[]string{d.config.InputName},
		d.config.OutputNames,
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{d.outBoxes, d.outClasses, d.outScores, d.outCount},
		sessionOptions)
	if err != nil {
		return fmt.Errorf("Failed to create ONNX session for %v: %w", modelFile, err)
	}
	return nil
}

func (d *Detector) destroyTensors() {
	if d.inputU8 != nil {
		d.inputU8.Destroy()
	}
	if d.inputF32 != nil {
		d.inputF32.Destroy()
	}
	for _, t := range []*ort.Tensor[float32]{d.outBoxes, d.outClasses, d.outScores, d.outCount} {
		if t != nil {
			t.Destroy()
		}
	}
}

func (d *Detector) Close() {
	if d.closed {
		return
	}
	d.closed = true
	if d.session != nil {
		d.session.Destroy()
	}
	d.destroyTensors()
	releaseEnvironment()
}

func (d *Detector) Config() *nn.ModelConfig {
	return &d.config
}

func (d *Detector) Detect(img *cimg.Image, out *nn.RawOutput) error {
	if d.closed {
		return fmt.Errorf("Detector is closed")
	}
	if img.Width != d.config.Width || img.Height != d.config.Height || img.NChan() != 3 {
		return fmt.Errorf("Input image is %vx%vx%v, but model expects %vx%vx3", img.Width, img.Height, img.NChan(), d.config.Width, d.config.Height)
	}
	if out.Capacity() != d.config.MaxDetections {
		return fmt.Errorf("Output capacity %v does not match model capacity %v", out.Capacity(), d.config.MaxDetections)
	}
	d.loadInput(img)
	if err := d.session.Run(); err != nil {
		return fmt.Errorf("ONNX inference failed: %w", err)
	}
	return d.readOutput(out)
}

func (d *Detector) loadInput(img *cimg.Image) {
	rowBytes := img.Width * 3
	if d.inputU8 != nil {
		dst := d.inputU8.GetData()
		for y := 0; y < img.Height; y++ {
			copy(dst[y*rowBytes:(y+1)*rowBytes], img.Pixels[y*img.Stride:y*img.Stride+rowBytes])
		}
	} else {
		dst := d.inputF32.GetData()
		for y := 0; y < img.Height; y++ {
			src := img.Pixels[y*img.Stride : y*img.Stride+rowBytes]
			row := dst[y*rowBytes : (y+1)*rowBytes]
			for i, v := range src {
				row[i] = float32(v) * (1.0 / 255)
			}
		}
	}
}

func (d *Detector) readOutput(out *nn.RawOutput) error {
	boxes := d.outBoxes.GetData()
	scores := d.outScores.GetData()
	count := d.outCount.GetData()
	n := d.config.MaxDetections
	if len(boxes) != n*4 || len(scores) != n || len(count) != 1 {
		return fmt.Errorf("%w: boxes %v, scores %v, count %v", nn.ErrMalformedOutput, len(boxes), len(scores), len(count))
	}
	out.Count = int(count[0])
	if out.Count < 0 || out.Count > n {
		return fmt.Errorf("%w: reported count %v exceeds capacity %v", nn.ErrMalformedOutput, out.Count, n)
	}
	for i := 0; i < out.Count; i++ {
		// TFLite order is ymin, xmin, ymax, xmax
		out.Detections[i] = nn.RawDetection{
			Box: nn.NormRect{
				X1: boxes[i*4+1],
				Y1: boxes[i*4+0],
				X2: boxes[i*4+3],
				Y2: boxes[i*4+2],
			},
			Score: scores[i],
		}
	}
	return nil
}
