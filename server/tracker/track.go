package tracker

import (
	"errors"
	"fmt"

	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/jerseyid/pkg/nn"
	"github.com/cyclopcam/jerseyid/pkg/roster"
)

// ErrInitialBoxFrozen is the result of trying to move a track's initial box
var ErrInitialBoxFrozen = errors.New("Initial box of a track may not change")

// TrackedPlayer is a snapshot of a track, handed out to consumers.
// Modifying it has no effect on the tracker.
type TrackedPlayer struct {
	ID                string          `json:"id"`
	InitialBox        nn.Rect         `json:"initialBox"`
	CurrentBox        nn.Rect         `json:"currentBox"`
	JerseyNumber      string          `json:"jerseyNumber"`
	Confidence        float32         `json:"confidence"`
	DisappearedFrames int             `json:"disappearedFrames"`
	TotalSightings    int             `json:"totalSightings"`
	RosterMatch       *roster.Profile `json:"rosterMatch,omitempty"`
}

// Label is the text that a renderer shows for this player
func (p *TrackedPlayer) Label() string {
	if p.RosterMatch != nil && p.RosterMatch.Name != "" {
		return fmt.Sprintf("#%v %v", p.JerseyNumber, p.RosterMatch.Name)
	}
	return "Unknown #" + p.JerseyNumber
}

type numberVote struct {
	number string
}

// track is the tracker's private state for one player
type track struct {
	id                string
	initialBox        nn.Rect
	hasInitialBox     bool
	currentBox        nn.Rect
	jerseyNumber      string
	confidence        float32
	disappearedFrames int
	totalSightings    int
	rosterMatch       *roster.Profile
	votes             ringbuffer.RingP[numberVote]
}

// setInitialBox may only be called once per track
func (t *track) setInitialBox(box nn.Rect) error {
	if t.hasInitialBox {
		err := fmt.Errorf("%w: track %v", ErrInitialBoxFrozen, t.id)
		if panicOnInvariant {
			panic(err)
		}
		return err
	}
	t.initialBox = box
	t.hasInitialBox = true
	return nil
}

func (t *track) snapshot() TrackedPlayer {
	return TrackedPlayer{
		ID:                t.id,
		InitialBox:        t.initialBox,
		CurrentBox:        t.currentBox,
		JerseyNumber:      t.jerseyNumber,
		Confidence:        t.confidence,
		DisappearedFrames: t.disappearedFrames,
		TotalSightings:    t.totalSightings,
		RosterMatch:       t.rosterMatch,
	}
}

// Return the most common number among the last 'window' votes.
// Ties go to the number that was seen most recently.
func (t *track) majorityNumber(window int) string {
	n := t.votes.Len()
	start := max(0, n-window)
	counts := map[string]int{}
	best := ""
	bestCount := 0
	for i := n - 1; i >= start; i-- {
		counts[t.votes.Peek(i).number]++
	}
	// Newest to oldest, so that ties go to the most recent number
	for i := n - 1; i >= start; i-- {
		num := t.votes.Peek(i).number
		if counts[num] > bestCount {
			best = num
			bestCount = counts[num]
		}
	}
	return best
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
