// Package tracker gives jersey numbers an identity that persists across frames.
//
// Each frame's detections are matched to existing tracks by overlap, or failing that,
// by distance between box centres. A track's initial box is frozen when it is created,
// so that renderers can use it as a stable size anchor, while its current box follows
// the player. Tracks that go unseen for more than a configured number of frames are removed.
package tracker

import (
	"sort"

	"github.com/bmharper/flatbush-go"
	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/jerseyid/pkg/roster"
	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
)

type Config struct {
	MinIoU             float32 // Minimum IoU for an overlap match
	MaxCentreDistance  float32 // Maximum centre distance for a non-overlapping match, as a fraction of the track's box diagonal
	DisappearTolerance int     // A track is removed once it has been unseen for more than this many frames
	VoteWindow         int     // Number of recent sightings that vote on a track's jersey number
	MatchAcrossNumbers bool    // Allow a track to match a detection with a different number
	Verbose            bool
}

func DefaultConfig() Config {
	return Config{
		MinIoU:             0.12,
		MaxCentreDistance:  1.0,
		DisappearTolerance: 20,
		VoteWindow:         10,
	}
}

// Tracker owns the live set of tracks.
// It is not safe for concurrent use. The pipeline's single worker is its only caller.
type Tracker struct {
	log    logs.Log
	config Config
	tracks []*track
	newID  func() string
}

func New(log logs.Log, config Config) *Tracker {
	if config.VoteWindow < 1 {
		config.VoteWindow = 1
	}
	return &Tracker{
		log:    log,
		config: config,
		newID:  uuid.NewString,
	}
}

func (t *Tracker) Config() Config {
	return t.config
}

// Reset discards all tracks
func (t *Tracker) Reset() {
	t.tracks = nil
}

// A possible pairing of an existing track with a new detection
type matchCandidate struct {
	track      int
	detection  int
	iou        float32
	distance   float32
	confidence float32
}

// Return true if a is a better match than b
func (a *matchCandidate) betterThan(b *matchCandidate) bool {
	aOverlap := a.iou > 0
	bOverlap := b.iou > 0
	if aOverlap != bOverlap {
		return aOverlap
	}
	if aOverlap && a.iou != b.iou {
		return a.iou > b.iou
	}
	if !aOverlap && a.distance != b.distance {
		return a.distance < b.distance
	}
	if a.confidence != b.confidence {
		return a.confidence > b.confidence
	}
	// Older tracks win
	return a.track < b.track
}

// Update consumes the detections of one frame, and returns a snapshot of all live tracks,
// including those that were not seen in this frame.
func (t *Tracker) Update(detections []roster.DetectedPlayer) []TrackedPlayer {
	// Create spatial index on the detections of this frame
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(detections))
	maxDetSize := 0
	for i := range detections {
		b := &detections[i].Box
		fb.Add(int32(b.X), int32(b.Y), int32(b.X2()), int32(b.Y2()))
		maxDetSize = max(maxDetSize, b.Width, b.Height)
	}
	fb.Finish()

	// Gather every (track, detection) pair that passes the matching gate
	candidates := []matchCandidate{}
	nearby := []int{}
	for ti, tr := range t.tracks {
		box := tr.currentBox
		maxDistance := t.config.MaxCentreDistance * box.Diagonal()
		// A detection whose centre is within maxDistance of our centre cannot extend
		// further than this from our box.
		buffer := int32(maxDistance) + int32(maxDetSize) + 1
		nearby = fb.SearchFast(int32(box.X)-buffer, int32(box.Y)-buffer, int32(box.X2())+buffer, int32(box.Y2())+buffer, nearby)
		for _, di := range nearby {
			det := &detections[di]
			if !t.config.MatchAcrossNumbers && det.Number != tr.jerseyNumber {
				continue
			}
			iou := box.IOU(det.Box)
			distance := box.Center().Distance(det.Box.Center())
			if iou > 0 && iou >= t.config.MinIoU {
				candidates = append(candidates, matchCandidate{track: ti, detection: di, iou: iou, distance: distance, confidence: det.Confidence})
			} else if distance <= maxDistance {
				// Too little overlap, so this is a distance match
				candidates = append(candidates, matchCandidate{track: ti, detection: di, iou: 0, distance: distance, confidence: det.Confidence})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].betterThan(&candidates[j])
	})

	// Greedy assignment, best pairs first. Each track and each detection is used at most once.
	trackMatch := make([]int, len(t.tracks))
	for i := range trackMatch {
		trackMatch[i] = -1
	}
	detectionUsed := make([]bool, len(detections))
	for _, c := range candidates {
		if trackMatch[c.track] != -1 || detectionUsed[c.detection] {
			continue
		}
		trackMatch[c.track] = c.detection
		detectionUsed[c.detection] = true
	}

	// Update or age existing tracks
	live := t.tracks[:0]
	for ti, tr := range t.tracks {
		if di := trackMatch[ti]; di != -1 {
			t.updateTrack(tr, &detections[di])
			live = append(live, tr)
			continue
		}
		tr.disappearedFrames++
		if tr.disappearedFrames > t.config.DisappearTolerance {
			if t.config.Verbose {
				t.log.Debugf("Tracker: Track %v (#%v) removed after %v unseen frames", tr.id, tr.jerseyNumber, tr.disappearedFrames)
			}
			continue
		}
		live = append(live, tr)
	}
	// Clear the tail, so that removed tracks can be garbage collected
	for i := len(live); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = live

	// New tracks for unmatched detections
	for di := range detections {
		if detectionUsed[di] {
			continue
		}
		t.tracks = append(t.tracks, t.newTrack(&detections[di]))
	}

	return t.Tracks()
}

// Tracks returns a snapshot of all live tracks, in order of creation
func (t *Tracker) Tracks() []TrackedPlayer {
	all := make([]TrackedPlayer, len(t.tracks))
	for i, tr := range t.tracks {
		all[i] = tr.snapshot()
	}
	return all
}

func (t *Tracker) newTrack(det *roster.DetectedPlayer) *track {
	tr := &track{
		id:    t.newID(),
		votes: ringbuffer.NewRingP[numberVote](nextPowerOf2(t.config.VoteWindow)),
	}
	if err := tr.setInitialBox(det.Box); err != nil {
		t.log.Errorf("Tracker: %v", err)
	}
	tr.currentBox = det.Box
	tr.jerseyNumber = det.Number
	tr.confidence = det.Confidence
	tr.rosterMatch = det.RosterMatch
	tr.totalSightings = 1
	tr.votes.Add(numberVote{number: det.Number})
	if t.config.Verbose {
		t.log.Debugf("Tracker: New track %v (#%v) at %v,%v", tr.id, tr.jerseyNumber, det.Box.Center().X, det.Box.Center().Y)
	}
	return tr
}

func (t *Tracker) updateTrack(tr *track, det *roster.DetectedPlayer) {
	tr.currentBox = det.Box
	tr.confidence = det.Confidence
	tr.disappearedFrames = 0
	tr.totalSightings++
	tr.votes.Add(numberVote{number: det.Number})
	number := tr.majorityNumber(t.config.VoteWindow)
	if number != tr.jerseyNumber && t.config.Verbose {
		t.log.Debugf("Tracker: Track %v changed from #%v to #%v", tr.id, tr.jerseyNumber, number)
	}
	tr.jerseyNumber = number
	if number == det.Number {
		tr.rosterMatch = det.RosterMatch
	}
}
