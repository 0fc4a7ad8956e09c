// Package roster restricts recognized numbers to the players of the active team,
// and attaches their profiles.
package roster

import (
	"fmt"
	"sort"

	"github.com/cyclopcam/jerseyid/pkg/jersey"
	"github.com/cyclopcam/jerseyid/pkg/nn"
)

// Set is the set of jersey numbers that are valid for the active team.
// A nil *Set means there is no roster constraint.
// A Set is immutable once created, so it can be shared between threads. To change
// the roster, build a new Set.
type Set struct {
	team    string
	numbers map[string]bool
}

func NewSet(team string, numbers []string) *Set {
	s := &Set{
		team:    team,
		numbers: map[string]bool{},
	}
	for _, n := range numbers {
		s.numbers[n] = true
	}
	return s
}

func (s *Set) Team() string {
	return s.team
}

func (s *Set) Len() int {
	return len(s.numbers)
}

// Numbers returns the numbers in the set, sorted
func (s *Set) Numbers() []string {
	all := make([]string, 0, len(s.numbers))
	for n := range s.numbers {
		all = append(all, n)
	}
	sort.Strings(all)
	return all
}

func (s *Set) Contains(number string) bool {
	return s.numbers[number]
}

// Resolve returns the roster's spelling of 'number', or false if it's not on the roster.
// "0" and "00" are different numbers, but if only one of them is on the roster, then
// a reading of the other is taken to mean the one that is.
func (s *Set) Resolve(number string) (string, bool) {
	if s.numbers[number] {
		return number, true
	}
	switch number {
	case "0":
		if s.numbers["00"] {
			return "00", true
		}
	case "00":
		if s.numbers["0"] {
			return "0", true
		}
	}
	return "", false
}

// Profile is a player on a team's roster
type Profile struct {
	ID       int64  `json:"id"`
	Team     string `json:"team"`
	Number   string `json:"number"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
}

// ProfileLookup resolves a jersey number on a team to a player profile.
// It returns nil, nil if there is no such player.
type ProfileLookup interface {
	LookupProfile(number, team string) (*Profile, error)
}

// DetectedPlayer is a recognized number that has passed the roster filter
type DetectedPlayer struct {
	Number      string   `json:"number"`
	Box         nn.Rect  `json:"box"`
	Confidence  float32  `json:"confidence"`
	RosterMatch *Profile `json:"rosterMatch,omitempty"`
}

// Label is the text that a renderer shows for this player
func (d *DetectedPlayer) Label() string {
	if d.RosterMatch != nil && d.RosterMatch.Name != "" {
		return fmt.Sprintf("#%v %v", d.Number, d.RosterMatch.Name)
	}
	return "Unknown #" + d.Number
}

// Filter drops numbers that are not in 'valid' (unless valid is nil), and resolves
// profiles through 'lookup' (which may be nil).
// A lookup failure does not drop the player. It leaves RosterMatch nil, and the first
// such error is returned.
func Filter(numbers []jersey.RecognizedNumber, valid *Set, lookup ProfileLookup, team string) ([]DetectedPlayer, error) {
	players := make([]DetectedPlayer, 0, len(numbers))
	var firstErr error
	for _, n := range numbers {
		number := n.Text
		if valid != nil {
			resolved, ok := valid.Resolve(number)
			if !ok {
				continue
			}
			number = resolved
		}
		p := DetectedPlayer{
			Number:     number,
			Box:        n.Box,
			Confidence: n.Confidence,
		}
		if lookup != nil {
			profile, err := lookup.LookupProfile(number, team)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("Profile lookup of #%v failed: %w", number, err)
				}
			} else {
				p.RosterMatch = profile
			}
		}
		players = append(players, p)
	}
	return players, firstErr
}
