// SPDX-License-Identifier: AGPL-3.0-only

package heaparray

import (
	"github.com/grafana/heaparray/pkg/memblock"
)

// ThinPtrArray is a single pointer to a block. Every bounds check reads the
// length stored in the block.
type ThinPtrArray[L, E any] struct {
	b memblock.Block[L, E]
}

// NewThin allocates an array of n elements, initialised in index order by init.
func NewThin[L, E any](label L, n int, init func(label *L, i int) E) ThinPtrArray[L, E] {
	return ThinPtrArray[L, E]{b: memblock.New(label, n, init)}
}

// NewThinFilled allocates an array of n copies of value.
func NewThinFilled[L, E any](label L, n int, value E) ThinPtrArray[L, E] {
	return ThinPtrArray[L, E]{b: memblock.NewFilled(label, n, value)}
}

// NewThinLazy allocates an array of n elements without initialising them.
// Every element must be written with Set or through Get before it's read.
func NewThinLazy[L, E any](label L, n int) ThinPtrArray[L, E] {
	return ThinPtrArray[L, E]{b: memblock.NewLazy[L, E](label, n)}
}

// Get returns a pointer to the element at index i.
func (a *ThinPtrArray[L, E]) Get(i int) *E {
	checkIndex(i, a.b.Len())
	return a.b.Elem(i)
}

// At returns a copy of the element at index i.
func (a *ThinPtrArray[L, E]) At(i int) E {
	return *a.Get(i)
}

// Set overwrites the element at index i.
func (a *ThinPtrArray[L, E]) Set(i int, v E) {
	*a.Get(i) = v
}

// Swap stores v at index i and returns the previous element.
func (a *ThinPtrArray[L, E]) Swap(i int, v E) E {
	p := a.Get(i)
	old := *p
	*p = v
	return old
}

func (a *ThinPtrArray[L, E]) Len() int {
	return a.b.Len()
}

func (a *ThinPtrArray[L, E]) Label() *L {
	return a.b.Label()
}

// Slice returns the elements. The slice is only valid until the array is freed.
func (a *ThinPtrArray[L, E]) Slice() []E {
	return a.b.Slice()
}

// Clone allocates a new array holding copies of the label and the elements.
func (a *ThinPtrArray[L, E]) Clone() ThinPtrArray[L, E] {
	return ThinPtrArray[L, E]{b: a.b.Clone()}
}

func (a *ThinPtrArray[L, E]) IsNil() bool {
	return a.b.IsNil()
}

// Free destructs the block. Freeing a nil array is a no-op.
func (a *ThinPtrArray[L, E]) Free() {
	if a.b.IsNil() {
		return
	}
	a.b.Destruct()
	a.b = memblock.Block[L, E]{}
}

// IntoFat moves the block into a FatPtrArray.
func (a *ThinPtrArray[L, E]) IntoFat() FatPtrArray[L, E] {
	b := a.take()
	return FatPtrArray[L, E]{b: b, n: b.Len()}
}

// IntoBase moves the block into a BaseArray.
func (a *ThinPtrArray[L, E]) IntoBase() BaseArray[L, E] {
	return BaseArray[L, E]{b: a.take()}
}

func (a *ThinPtrArray[L, E]) take() memblock.Block[L, E] {
	b := a.b
	a.b = memblock.Block[L, E]{}
	return b
}
