package gen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeleteFromSliceUnordered(t *testing.T) {
	a := []int{1, 2, 3}
	a = DeleteFromSliceUnordered(a, 0)
	require.ElementsMatch(t, []int{2, 3}, a)

	a = []int{1, 2, 3}
	a = DeleteFromSliceUnordered(a, 2)
	require.Equal(t, []int{1, 2}, a)

	a = []int{1}
	a = DeleteFromSliceUnordered(a, 0)
	require.Empty(t, a)
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0, Clamp(-5, 0, 10))
	require.Equal(t, 10, Clamp(50, 0, 10))
	require.Equal(t, 7, Clamp(7, 0, 10))
	require.EqualValues(t, 1, Clamp(float32(1.3), 0, 1))
}
