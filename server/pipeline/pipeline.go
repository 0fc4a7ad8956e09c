// Package pipeline runs the stages of jersey identification over a single frame:
// locate regions, recognize numbers, filter by roster, and track identities.
package pipeline

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/jerseyid/pkg/jersey"
	"github.com/cyclopcam/jerseyid/pkg/locator"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/perfstats"
	"github.com/cyclopcam/jerseyid/pkg/roster"
	"github.com/cyclopcam/jerseyid/pkg/throttle"
	"github.com/cyclopcam/jerseyid/server/tracker"
	"github.com/cyclopcam/logs"
)

// Context is the per-frame input that the caller may change between frames
type Context struct {
	Roster                         *roster.Set          // Valid numbers. Nil means no constraint.
	Team                           string               // Active team, for profile lookup
	Lookup                         roster.ProfileLookup // May be nil
	DetectionConfidenceThreshold   float32
	RecognitionConfidenceThreshold float32
}

// Callbacks are invoked on the thread that calls ProcessFrame
type Callbacks struct {
	OnStarted  func()
	OnFinished func()
	// OnPublish receives the tracks of every processed frame, in frame order.
	// The slice belongs to the callee.
	OnPublish func(tracks []tracker.TrackedPlayer)
}

type Config struct {
	HealthFailureStreak int // Consecutive failures of one stage before health is Degraded
	Verbose             bool
}

func DefaultConfig() Config {
	return Config{
		HealthFailureStreak: 30,
	}
}

// Timing holds moving averages of how long each stage takes
type Timing struct {
	Locate    perfstats.MovingAverage
	Recognize perfstats.MovingAverage
	Filter    perfstats.MovingAverage
	Track     perfstats.MovingAverage
	Total     perfstats.MovingAverage
}

// TimingMS is a JSON friendly copy of Timing
type TimingMS struct {
	Locate    float64 `json:"locate"`
	Recognize float64 `json:"recognize"`
	Filter    float64 `json:"filter"`
	Track     float64 `json:"track"`
	Total     float64 `json:"total"`
}

// Pipeline owns the locator, recognizer, and tracker.
// ProcessFrame calls are serialized, so the tracker state is only ever touched by one frame at a time.
type Pipeline struct {
	log        logs.Log
	config     Config
	locator    *locator.Locator
	recognizer *jersey.Recognizer
	tracker    *tracker.Tracker
	callbacks  Callbacks
	filterErr  *throttle.Log
	panicLog   *throttle.Log

	runLock    sync.Mutex // Held for the duration of ProcessFrame
	processing atomic.Bool

	healthLock sync.Mutex
	health     Health

	Timing Timing
}

// New takes ownership of the locator and recognizer, and closes them in Close()
func New(log logs.Log, config Config, loc *locator.Locator, rec *jersey.Recognizer, trk *tracker.Tracker, callbacks Callbacks) *Pipeline {
	if config.HealthFailureStreak < 1 {
		config.HealthFailureStreak = 1
	}
	return &Pipeline{
		log:        log,
		config:     config,
		locator:    loc,
		recognizer: rec,
		tracker:    trk,
		callbacks:  callbacks,
		filterErr:  throttle.New(throttle.DefaultInterval),
		panicLog:   throttle.New(throttle.DefaultInterval),
		health:     Health{State: HealthOK},
	}
}

// Close releases the models. In-flight work is allowed to finish first.
func (p *Pipeline) Close() {
	p.runLock.Lock()
	defer p.runLock.Unlock()
	if p.locator != nil {
		p.locator.Close()
		p.locator = nil
	}
	if p.recognizer != nil {
		p.recognizer.Close()
		p.recognizer = nil
	}
	p.tracker.Reset()
}

// Reset discards all tracks, for example when the camera view changes
func (p *Pipeline) Reset() {
	p.runLock.Lock()
	defer p.runLock.Unlock()
	p.tracker.Reset()
}

// IsProcessing is true while a frame is inside ProcessFrame.
// A scheduler can use this to drop frames instead of queuing them.
func (p *Pipeline) IsProcessing() bool {
	return p.processing.Load()
}

func (p *Pipeline) TimingMS() TimingMS {
	return TimingMS{
		Locate:    p.Timing.Locate.Milliseconds(),
		Recognize: p.Timing.Recognize.Milliseconds(),
		Filter:    p.Timing.Filter.Milliseconds(),
		Track:     p.Timing.Track.Milliseconds(),
		Total:     p.Timing.Total.Milliseconds(),
	}
}

// Tracks returns a snapshot of the current tracks
func (p *Pipeline) Tracks() []tracker.TrackedPlayer {
	p.runLock.Lock()
	defer p.runLock.Unlock()
	return p.tracker.Tracks()
}

// ProcessFrame runs all stages over one frame, and returns a snapshot of the live tracks.
// Stage failures never escape. They reduce the number of detections of this frame,
// and are reported through Health().
func (p *Pipeline) ProcessFrame(frame *cimg.Image, ctx Context) []tracker.TrackedPlayer {
	p.runLock.Lock()
	defer p.runLock.Unlock()

	p.processing.Store(true)
	defer p.processing.Store(false)
	if p.callbacks.OnStarted != nil {
		p.callbacks.OnStarted()
	}
	if p.callbacks.OnFinished != nil {
		defer p.callbacks.OnFinished()
	}

	start := time.Now()
	p.recordFrame()
	players := p.detect(frame, ctx)

	t0 := time.Now()
	tracks := p.tracker.Update(players)
	p.Timing.Track.Update(time.Since(t0))
	p.Timing.Total.Update(time.Since(start))

	if p.config.Verbose {
		p.log.Debugf("Pipeline: %v players detected, %v tracks live", len(players), len(tracks))
	}

	if p.callbacks.OnPublish != nil {
		p.callbacks.OnPublish(slices.Clone(tracks))
	}
	return tracks
}

// Run the stateless stages: locate, recognize, filter
func (p *Pipeline) detect(frame *cimg.Image, ctx Context) []roster.DetectedPlayer {
	if p.locator == nil || p.recognizer == nil {
		// Closed
		return nil
	}

	t0 := time.Now()
	regions, err := runStage(p, "Detector", func() ([]locator.CandidateRegion, error) {
		return p.locator.Locate(frame, ctx.DetectionConfidenceThreshold)
	})
	p.Timing.Locate.Update(time.Since(t0))
	p.recordDetector(err)
	if err != nil {
		return nil
	}

	boxes := make([]nn.Rect, len(regions))
	for i, r := range regions {
		boxes[i] = r.Box
	}

	t0 = time.Now()
	numbers, err := runStage(p, "Recognizer", func() ([]jersey.RecognizedNumber, error) {
		return p.recognizer.Recognize(frame, boxes, ctx.RecognitionConfidenceThreshold)
	})
	p.Timing.Recognize.Update(time.Since(t0))
	p.recordRecognizer(err)
	if err != nil {
		return nil
	}

	t0 = time.Now()
	players, err := roster.Filter(numbers, ctx.Roster, ctx.Lookup, ctx.Team)
	p.Timing.Filter.Update(time.Since(t0))
	if err != nil {
		// Players are still returned, but without profiles
		p.filterErr.Warnf(p.log, "Roster profile lookup failed: %v", err)
	}
	return players
}

// runStage calls 'stage', and turns a panic inside it into an error
func runStage[T any](p *Pipeline, name string, stage func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicLog.Errorf(p.log, "%v panic: %v\n%s", name, r, debug.Stack())
			err = fmt.Errorf("Panic: %v", r)
		}
	}()
	return stage()
}
