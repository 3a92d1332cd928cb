// SPDX-License-Identifier: AGPL-3.0-only

package heaparray

import (
	"slices"

	"github.com/grafana/heaparray/pkg/memblock"
)

// Ref is a read-only view of an array owned by someone else. Refs can be
// copied freely and used from any goroutine, as long as the owner doesn't
// free the array or modify it concurrently.
type Ref[L, E any] struct {
	b memblock.Block[L, E]
}

func (r Ref[L, E]) IsNil() bool {
	return r.b.IsNil()
}

func (r Ref[L, E]) Len() int {
	return r.b.Len()
}

// Label returns a copy of the label.
func (r Ref[L, E]) Label() L {
	return *r.b.Label()
}

// At returns a copy of the element at index i.
func (r Ref[L, E]) At(i int) E {
	checkIndex(i, r.b.Len())
	return *r.b.Elem(i)
}

// Values returns a copy of the elements.
func (r Ref[L, E]) Values() []E {
	return slices.Clone(r.b.Slice())
}
