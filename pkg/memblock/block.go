// SPDX-License-Identifier: AGPL-3.0-only

package memblock

import (
	"reflect"
	"unsafe"

	"github.com/pkg/errors"
)

// Releaser is implemented by labels and elements that need to run teardown
// code when the block holding them is destructed.
type Releaser interface {
	Release()
}

// Block is a handle to one allocation holding a label of type L, the number
// of elements, and that many contiguous elements of type E.
//
// The handle points at the start of the block, where the label lives. Block
// does not track ownership: copying a handle copies the pointer, and it is up
// to the wrapping pointer-array types to make sure a block is destructed
// exactly once and never accessed afterwards.
type Block[L, E any] struct {
	p unsafe.Pointer
}

// New allocates a block, stores label and length in it and initialises every
// element in index order with init. init receives the label already stored in
// the block.
//
// If init panics, the block is leaked.
func New[L, E any](label L, length int, init func(label *L, i int) E) Block[L, E] {
	b := NewLazy[L, E](label, length)
	lp := b.Label()
	for i := 0; i < length; i++ {
		*b.elem(i) = init(lp, i)
	}
	return b
}

// NewFilled allocates a block whose elements are all copies of value.
func NewFilled[L, E any](label L, length int, value E) Block[L, E] {
	b := NewLazy[L, E](label, length)
	elems := b.Slice()
	for i := range elems {
		elems[i] = value
	}
	return b
}

// NewLazy allocates a block and stores label and length in it, leaving the
// elements uninitialised. The caller must write every element before reading
// it: the content of unwritten elements depends on the allocator. A block
// that never had all its elements written must be freed with DestructLazy.
func NewLazy[L, E any](label L, length int) Block[L, E] {
	l := ComputeLayout[L, E](length)
	alloc := CurrentAllocator()
	if Profile.Enabled(SkipPointerCheck) && IsOffHeap(alloc) {
		if hasPointers(l.Label) || hasPointers(l.Elem) {
			panic(errors.Wrapf(ErrPointerfulType, "label %s, element %s", l.Label, l.Elem))
		}
	}

	inUse.Store(true)
	p, err := alloc.Allocate(l)
	if err != nil {
		panic(errors.Wrapf(err, "allocating block %s", l))
	}
	if Profile.Enabled(SkipPointerCheck) && p == nil {
		panic(errors.Wrapf(ErrNilBlock, "allocator returned nil for block %s; out of memory?", l))
	}

	b := Block[L, E]{p: p}
	*(*L)(p) = label
	*(*uintptr)(unsafe.Add(p, l.LenOffset)) = uintptr(length)
	return b
}

// FromPointer turns a pointer obtained from Block.Pointer back into a handle.
// p must come from a block of the same L and E.
func FromPointer[L, E any](p unsafe.Pointer) Block[L, E] {
	return Block[L, E]{p: p}
}

// Pointer returns the address of the block.
func (b Block[L, E]) Pointer() unsafe.Pointer {
	return b.p
}

// IsNil reports whether b is the zero handle.
func (b Block[L, E]) IsNil() bool {
	return b.p == nil
}

// Label returns a pointer to the label stored in the block.
func (b Block[L, E]) Label() *L {
	b.checkPointer()
	return (*L)(b.p)
}

// SetLabel overwrites the label stored in the block.
func (b Block[L, E]) SetLabel(label L) {
	*b.Label() = label
}

// Len returns the number of elements of the block.
func (b Block[L, E]) Len() int {
	b.checkPointer()
	return int(*(*uintptr)(unsafe.Add(b.p, lenOffset[L]())))
}

// Elem returns a pointer to the element at index i. It only checks that i is
// an index a block of L and E can have, not that it's below the length of
// this block.
func (b Block[L, E]) Elem(i int) *E {
	b.checkPointer()
	if Profile.Enabled(SkipSizeCheck) {
		if limit := MaxLen[L, E](); i < 0 || i >= limit {
			panic(errors.Wrapf(ErrSizeOverflow, "index %d is invalid, blocks can't hold more than %d elements", i, limit))
		}
	}
	return b.elem(i)
}

// Slice returns the elements of the block. The slice aliases the block and
// must not be used after it's destructed.
func (b Block[L, E]) Slice() []E {
	n := b.Len()
	if n == 0 {
		return nil
	}
	return unsafe.Slice(b.elem(0), n)
}

// Clone allocates a new block holding copies of the label and every element of b.
func (b Block[L, E]) Clone() Block[L, E] {
	elems := b.Slice()
	return New(*b.Label(), len(elems), func(_ *L, i int) E {
		return elems[i]
	})
}

// Destruct releases every element in index order, then the label, and
// deallocates the block with a layout recomputed from its stored length.
func (b Block[L, E]) Destruct() {
	elems := b.Slice()
	if releasable[E]() {
		for i := range elems {
			any(&elems[i]).(Releaser).Release()
		}
	}
	if releasable[L]() {
		any(b.Label()).(Releaser).Release()
	}
	b.DestructLazy()
}

// DestructLazy deallocates the block without running any teardown.
func (b Block[L, E]) DestructLazy() {
	n := b.Len()
	l := ComputeLayout[L, E](n)

	// Drop every reference held by the block so that the garbage collector
	// can reclaim what it pointed to even if the memory outlives the block.
	var zero L
	*b.Label() = zero
	clear(b.Slice())
	*(*uintptr)(unsafe.Add(b.p, l.LenOffset)) = 0

	CurrentAllocator().Deallocate(b.p, l)
}

func (b Block[L, E]) elem(i int) *E {
	es, _ := sizeAlign[E]()
	return (*E)(unsafe.Add(b.p, elemOffset[L, E]()+uintptr(i)*es))
}

func (b Block[L, E]) checkPointer() {
	if Profile.Enabled(SkipPointerCheck) && b.p == nil {
		panic(ErrNilBlock)
	}
}

func lenOffset[L any]() uintptr {
	ls, _ := sizeAlign[L]()
	off, _ := alignUp(ls, lenAlign)
	return off
}

func elemOffset[L, E any]() uintptr {
	_, ea := sizeAlign[E]()
	off, _ := alignUp(lenOffset[L]()+lenSize, ea)
	return off
}

func releasable[T any]() bool {
	return reflect.PointerTo(reflect.TypeFor[T]()).Implements(reflect.TypeFor[Releaser]())
}
