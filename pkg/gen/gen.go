// Package gen contains a bunch of generic functions that will probably be in the Go std lib someday
package gen

type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type Float interface {
	~float32 | ~float64
}

type Ordered interface {
	Integer | Float | ~string
}

func Clamp[T Ordered](v, min, max T) T {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Delete element i from the slice by moving the last element into its place.
// Order of the slice is not preserved.
func DeleteFromSliceUnordered[T any](slice []T, i int) []T {
	last := len(slice) - 1
	slice[i] = slice[last]
	var zero T
	slice[last] = zero
	return slice[:last]
}
