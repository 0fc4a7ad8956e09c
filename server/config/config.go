package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalid is wrapped by all errors returned from Validate
var ErrInvalid = errors.New("Invalid configuration")

// Config is the jerseyid service configuration, loaded from a JSON file.
// Every field is optional. Missing fields take their value from Default().
type Config struct {
	ModelDir     string `json:"modelDir"`     // Directory containing the detection model(s)
	ModelName    string `json:"modelName"`    // eg "jerseynum_320_320"
	ModelURL     string `json:"modelURL"`     // Base URL for downloading missing model files (blank = never download)
	OnnxLibrary  string `json:"onnxLibrary"`  // Path to libonnxruntime.so (blank = system default)
	TessdataPath string `json:"tessdataPath"` // Tesseract language data directory (blank = system default)
	RosterDB     string `json:"rosterDB"`     // sqlite file with teams and players (blank = no profile lookup)
	Team         string `json:"team"`         // Initial active team (blank = no roster filter)
	HTTPAddr     string `json:"httpAddr"`     // eg ":8090"
	Verbose      bool   `json:"verbose"`      // Emit per-frame debug logs
	NumThreads   int    `json:"numThreads"`   // Inference threads

	// Region locator
	DetectionConfidenceThreshold float32 `json:"detectionConfidenceThreshold"`
	NmsIoUThreshold              float32 `json:"nmsIoUThreshold"`
	TilePasses                   bool    `json:"tilePasses"`

	// Number recognizer
	RecognitionConfidenceThreshold float32 `json:"recognitionConfidenceThreshold"`
	CandidateMinSize               int     `json:"candidateMinSize"`
	CandidateMaxSize               int     `json:"candidateMaxSize"`
	IdealDigitAspect               float32 `json:"idealDigitAspect"` // height/width of a single digit
	AspectTolerance                float32 `json:"aspectTolerance"`
	IdealTextHeight                float32 `json:"idealTextHeight"`
	MaxRegions                     int     `json:"maxRegions"`
	MinOCRCrop                     int     `json:"minOCRCrop"`
	WholeFrameFallback             bool    `json:"wholeFrameFallback"`
	MergeFragments                 bool    `json:"mergeFragments"`

	// Identity tracker
	TrackMinIoU             float32 `json:"trackMinIoU"`
	TrackMaxCentreDistance  float32 `json:"trackMaxCentreDistance"` // Fraction of the track's box diagonal
	TrackDisappearTolerance int     `json:"trackDisappearTolerance"`
	NumberVoteWindow        int     `json:"numberVoteWindow"`
	MatchAcrossNumbers      bool    `json:"matchAcrossNumbers"`

	// Orchestrator
	HealthFailureStreak int `json:"healthFailureStreak"`
}

// Default returns the configuration that is used for any field that is missing from the JSON file
func Default() *Config {
	return &Config{
		ModelDir:                       "models",
		ModelName:                      "jerseynum_320_320",
		HTTPAddr:                       ":8090",
		NumThreads:                     2,
		DetectionConfidenceThreshold:   0.15,
		NmsIoUThreshold:                0.3,
		TilePasses:                     true,
		RecognitionConfidenceThreshold: 0.3,
		CandidateMinSize:               10,
		CandidateMaxSize:               400,
		IdealDigitAspect:               1.2,
		AspectTolerance:                0.4,
		IdealTextHeight:                60,
		MaxRegions:                     5,
		MinOCRCrop:                     32,
		WholeFrameFallback:             false,
		MergeFragments:                 true,
		TrackMinIoU:                    0.12,
		TrackMaxCentreDistance:         1.0,
		TrackDisappearTolerance:        20,
		NumberVoteWindow:               10,
		MatchAcrossNumbers:             false,
		HealthFailureStreak:            30,
	}
}

// LoadConfig reads a JSON config file on top of Default().
// If filename is blank, then Default() is returned.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return cfg, nil
}

func inUnitRange(v float32) bool {
	return v >= 0 && v <= 1
}

// Validate checks that all values are within their legal ranges
func (c *Config) Validate() error {
	if !inUnitRange(c.DetectionConfidenceThreshold) {
		return fmt.Errorf("%w: detectionConfidenceThreshold %v must be in [0,1]", ErrInvalid, c.DetectionConfidenceThreshold)
	}
	if !inUnitRange(c.NmsIoUThreshold) {
		return fmt.Errorf("%w: nmsIoUThreshold %v must be in [0,1]", ErrInvalid, c.NmsIoUThreshold)
	}
	if !inUnitRange(c.RecognitionConfidenceThreshold) {
		return fmt.Errorf("%w: recognitionConfidenceThreshold %v must be in [0,1]", ErrInvalid, c.RecognitionConfidenceThreshold)
	}
	if !inUnitRange(c.TrackMinIoU) {
		return fmt.Errorf("%w: trackMinIoU %v must be in [0,1]", ErrInvalid, c.TrackMinIoU)
	}
	if c.TrackMaxCentreDistance < 0 {
		return fmt.Errorf("%w: trackMaxCentreDistance may not be negative", ErrInvalid)
	}
	if c.TrackDisappearTolerance < 0 {
		return fmt.Errorf("%w: trackDisappearTolerance may not be negative", ErrInvalid)
	}
	if c.CandidateMinSize < 1 || c.CandidateMaxSize < c.CandidateMinSize {
		return fmt.Errorf("%w: candidate size bounds [%v, %v] are invalid", ErrInvalid, c.CandidateMinSize, c.CandidateMaxSize)
	}
	if c.IdealDigitAspect <= 0 || c.AspectTolerance <= 0 {
		return fmt.Errorf("%w: idealDigitAspect and aspectTolerance must be positive", ErrInvalid)
	}
	if c.IdealTextHeight <= 0 {
		return fmt.Errorf("%w: idealTextHeight must be positive", ErrInvalid)
	}
	if c.MaxRegions < 1 {
		return fmt.Errorf("%w: maxRegions must be at least 1", ErrInvalid)
	}
	if c.MinOCRCrop < 1 {
		return fmt.Errorf("%w: minOCRCrop must be at least 1", ErrInvalid)
	}
	if c.NumberVoteWindow < 1 {
		return fmt.Errorf("%w: numberVoteWindow must be at least 1", ErrInvalid)
	}
	if c.HealthFailureStreak < 1 {
		return fmt.Errorf("%w: healthFailureStreak must be at least 1", ErrInvalid)
	}
	return nil
}
