// SPDX-License-Identifier: AGPL-3.0-only

// Package heaparray provides arrays that keep a label and their elements in
// a single allocation, behind pointer types with different tradeoffs:
//
//   - BaseArray is the minimal owner of a block, without bounds checks.
//   - ThinPtrArray is one word wide and reads the length from the block.
//   - FatPtrArray is two words wide and keeps a copy of the length.
//   - AtomicPtrArray starts empty and is initialised at most once, even when
//     several goroutines race to initialise it.
//
// BaseArray, ThinPtrArray and FatPtrArray exclusively own their block and
// must not be used by more than one goroutine at a time. Copying one of them
// does not copy the block: only one of the copies may be freed, and none may
// be used afterwards. The Into methods move a block from one type to another.
package heaparray

import (
	"github.com/grafana/heaparray/pkg/memblock"
)

// BaseArray owns a block and gives raw access to it. Element accesses are
// not bounds checked.
type BaseArray[L, E any] struct {
	b memblock.Block[L, E]
}

// NewBase allocates an array of n elements, initialised in index order by init.
func NewBase[L, E any](label L, n int, init func(label *L, i int) E) BaseArray[L, E] {
	return BaseArray[L, E]{b: memblock.New(label, n, init)}
}

// NewBaseFilled allocates an array of n copies of value.
func NewBaseFilled[L, E any](label L, n int, value E) BaseArray[L, E] {
	return BaseArray[L, E]{b: memblock.NewFilled(label, n, value)}
}

// NewBaseLazy allocates an array of n elements without initialising them.
// Every element must be written through Get before it's read.
func NewBaseLazy[L, E any](label L, n int) BaseArray[L, E] {
	return BaseArray[L, E]{b: memblock.NewLazy[L, E](label, n)}
}

// Get returns a pointer to the element at index i, which must be lower than Len.
func (a *BaseArray[L, E]) Get(i int) *E {
	return a.b.Elem(i)
}

func (a *BaseArray[L, E]) Len() int {
	return a.b.Len()
}

func (a *BaseArray[L, E]) Label() *L {
	return a.b.Label()
}

// Slice returns the elements. The slice is only valid until the array is freed.
func (a *BaseArray[L, E]) Slice() []E {
	return a.b.Slice()
}

// IsNil reports whether the array has been freed or moved.
func (a *BaseArray[L, E]) IsNil() bool {
	return a.b.IsNil()
}

// Free destructs the block. Freeing a nil array is a no-op.
func (a *BaseArray[L, E]) Free() {
	if a.b.IsNil() {
		return
	}
	a.b.Destruct()
	a.b = memblock.Block[L, E]{}
}

// IntoThin moves the block into a ThinPtrArray.
func (a *BaseArray[L, E]) IntoThin() ThinPtrArray[L, E] {
	b := a.take()
	return ThinPtrArray[L, E]{b: b}
}

// IntoFat moves the block into a FatPtrArray.
func (a *BaseArray[L, E]) IntoFat() FatPtrArray[L, E] {
	b := a.take()
	return FatPtrArray[L, E]{b: b, n: b.Len()}
}

func (a *BaseArray[L, E]) take() memblock.Block[L, E] {
	b := a.b
	a.b = memblock.Block[L, E]{}
	return b
}
