//go:build debug

package tracker

// In debug builds, a broken tracker invariant is a programming error that must be fixed
const panicOnInvariant = true
