//go:build !debug

package tracker

const panicOnInvariant = false
