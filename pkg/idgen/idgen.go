package idgen

import "sync/atomic"

// Sequence hands out frame sequence numbers 1,2,3...
// Zero is never generated, so it can be used to mean "no frame yet".
type Sequence struct {
	last atomic.Uint64
}

func (s *Sequence) Next() uint64 {
	return s.last.Add(1)
}

// Last returns the most recently generated value, or zero
func (s *Sequence) Last() uint64 {
	return s.last.Load()
}
