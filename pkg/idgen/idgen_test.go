package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	s := Sequence{}
	require.EqualValues(t, 0, s.Last())
	require.EqualValues(t, 1, s.Next())
	require.EqualValues(t, 2, s.Next())
	require.EqualValues(t, 2, s.Last())

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Next()
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 802, s.Last())
}
