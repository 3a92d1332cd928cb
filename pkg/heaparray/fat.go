// SPDX-License-Identifier: AGPL-3.0-only

package heaparray

import (
	"github.com/grafana/heaparray/pkg/memblock"
)

// FatPtrArray is a pointer to a block together with a copy of its length, so
// that bounds checks don't need to touch the block.
type FatPtrArray[L, E any] struct {
	b memblock.Block[L, E]
	n int
}

// NewFat allocates an array of n elements, initialised in index order by init.
func NewFat[L, E any](label L, n int, init func(label *L, i int) E) FatPtrArray[L, E] {
	return FatPtrArray[L, E]{b: memblock.New(label, n, init), n: n}
}

// NewFatFilled allocates an array of n copies of value.
func NewFatFilled[L, E any](label L, n int, value E) FatPtrArray[L, E] {
	return FatPtrArray[L, E]{b: memblock.NewFilled(label, n, value), n: n}
}

// NewFatLazy allocates an array of n elements without initialising them.
// Every element must be written with Set or through Get before it's read.
func NewFatLazy[L, E any](label L, n int) FatPtrArray[L, E] {
	return FatPtrArray[L, E]{b: memblock.NewLazy[L, E](label, n), n: n}
}

// Get returns a pointer to the element at index i.
func (a *FatPtrArray[L, E]) Get(i int) *E {
	checkIndex(i, a.n)
	return a.b.Elem(i)
}

// At returns a copy of the element at index i.
func (a *FatPtrArray[L, E]) At(i int) E {
	return *a.Get(i)
}

// Set overwrites the element at index i.
func (a *FatPtrArray[L, E]) Set(i int, v E) {
	*a.Get(i) = v
}

// Swap stores v at index i and returns the previous element.
func (a *FatPtrArray[L, E]) Swap(i int, v E) E {
	p := a.Get(i)
	old := *p
	*p = v
	return old
}

// Len returns the cached length.
func (a *FatPtrArray[L, E]) Len() int {
	return a.n
}

func (a *FatPtrArray[L, E]) Label() *L {
	return a.b.Label()
}

// Slice returns the elements. The slice is only valid until the array is freed.
func (a *FatPtrArray[L, E]) Slice() []E {
	return a.b.Slice()
}

// Clone allocates a new array holding copies of the label and the elements.
func (a *FatPtrArray[L, E]) Clone() FatPtrArray[L, E] {
	return FatPtrArray[L, E]{b: a.b.Clone(), n: a.n}
}

func (a *FatPtrArray[L, E]) IsNil() bool {
	return a.b.IsNil()
}

// Free destructs the block. Freeing a nil array is a no-op.
func (a *FatPtrArray[L, E]) Free() {
	if a.b.IsNil() {
		return
	}
	a.b.Destruct()
	a.b, a.n = memblock.Block[L, E]{}, 0
}

// IntoThin moves the block into a ThinPtrArray.
func (a *FatPtrArray[L, E]) IntoThin() ThinPtrArray[L, E] {
	return ThinPtrArray[L, E]{b: a.take()}
}

// IntoBase moves the block into a BaseArray.
func (a *FatPtrArray[L, E]) IntoBase() BaseArray[L, E] {
	return BaseArray[L, E]{b: a.take()}
}

func (a *FatPtrArray[L, E]) take() memblock.Block[L, E] {
	b := a.b
	a.b, a.n = memblock.Block[L, E]{}, 0
	return b
}
