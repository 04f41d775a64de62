package internal

import (
	"golang.org/x/exp/constraints"
)

// AlignUp rounds v up to the nearest multiple of boundary (a power of two).
func AlignUp[T constraints.Integer](v, boundary T) T {
	return (v + boundary - 1) &^ (boundary - 1)
}
