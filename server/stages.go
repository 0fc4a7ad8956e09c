package server

import (
	"github.com/cyclopcam/jerseyid/pkg/jersey"
	"github.com/cyclopcam/jerseyid/pkg/locator"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/ocr"
	"github.com/cyclopcam/jerseyid/server/config"
	"github.com/cyclopcam/jerseyid/server/pipeline"
	"github.com/cyclopcam/jerseyid/server/tracker"
	"github.com/cyclopcam/logs"
)

func LocatorConfig(cfg *config.Config) locator.Config {
	return locator.Config{
		NmsIoUThreshold: cfg.NmsIoUThreshold,
		TilePasses:      cfg.TilePasses,
	}
}

func RecognizerConfig(cfg *config.Config) jersey.Config {
	c := jersey.DefaultConfig()
	c.MinSize = cfg.CandidateMinSize
	c.MaxSize = cfg.CandidateMaxSize
	c.IdealDigitAspect = cfg.IdealDigitAspect
	c.AspectTolerance = cfg.AspectTolerance
	c.IdealTextHeight = cfg.IdealTextHeight
	c.MaxRegions = cfg.MaxRegions
	c.MinOCRCrop = cfg.MinOCRCrop
	c.WholeFrameFallback = cfg.WholeFrameFallback
	c.MergeFragments = cfg.MergeFragments
	return c
}

func TrackerConfig(cfg *config.Config) tracker.Config {
	return tracker.Config{
		MinIoU:             cfg.TrackMinIoU,
		MaxCentreDistance:  cfg.TrackMaxCentreDistance,
		DisappearTolerance: cfg.TrackDisappearTolerance,
		VoteWindow:         cfg.NumberVoteWindow,
		MatchAcrossNumbers: cfg.MatchAcrossNumbers,
		Verbose:            cfg.Verbose,
	}
}

// BuildPipeline assembles the four stages around a detector and a text recognizer.
// The pipeline takes ownership of both.
func BuildPipeline(log logs.Log, cfg *config.Config, detector nn.ObjectDetector, text ocr.TextRecognizer, callbacks pipeline.Callbacks) *pipeline.Pipeline {
	loc := locator.New(log, detector, LocatorConfig(cfg))
	rec := jersey.NewRecognizer(log, text, RecognizerConfig(cfg))
	trk := tracker.New(log, TrackerConfig(cfg))
	pc := pipeline.Config{
		HealthFailureStreak: cfg.HealthFailureStreak,
		Verbose:             cfg.Verbose,
	}
	return pipeline.New(log, pc, loc, rec, trk, callbacks)
}
