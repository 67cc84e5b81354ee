// Package ordered provides binary-search primitives over slices kept sorted
// by a caller-supplied comparator.
//
// The comparator must describe a total order. Callers that sort records with
// an application comparator append a tie-break on a unique key so that two
// distinct elements never compare equal; Remove relies on that to land on the
// exact element.
package ordered

import "slices"

// Compare orders two elements: negative when a sorts before b, positive when
// after, zero when equal.
type Compare[T any] func(a, b T) int

// Locate returns the index of v in s and whether an element comparing equal
// to v is present there. When absent, the index is the insertion point.
func Locate[T any](s []T, v T, cmp Compare[T]) (int, bool) {
	return slices.BinarySearchFunc(s, v, cmp)
}

// Insert places v at its sorted position and returns the grown slice along
// with the index v now occupies.
func Insert[T any](s []T, v T, cmp Compare[T]) ([]T, int) {
	i, _ := Locate(s, v, cmp)
	return slices.Insert(s, i, v), i
}

// Remove deletes v from s and returns the shrunk slice and the index v held.
//
// The binary search must land on v itself. If the element found there is a
// different one (the order was disturbed by an in-place mutation), Remove
// falls back to a linear identity scan. It returns -1 when v is not present.
func Remove[T comparable](s []T, v T, cmp Compare[T]) ([]T, int) {
	i, found := Locate(s, v, cmp)
	if !found || s[i] != v {
		i = slices.Index(s, v)
		if i < 0 {
			return s, -1
		}
	}
	return slices.Delete(s, i, i+1), i
}

// IsSorted reports whether s is in non-decreasing order under cmp.
func IsSorted[T any](s []T, cmp Compare[T]) bool {
	return slices.IsSortedFunc(s, cmp)
}
