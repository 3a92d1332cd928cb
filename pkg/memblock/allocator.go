// SPDX-License-Identifier: AGPL-3.0-only

package memblock

import (
	"math/bits"
	"reflect"
	"unsafe"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Allocator provides the memory blocks are placed in.
//
// Allocate is called exactly once per block and its failure is fatal to the
// construction. Deallocate receives the pointer returned by Allocate together
// with a layout recomputed from the block's length, which is identical to the
// one passed to Allocate.
type Allocator interface {
	Allocate(l Layout) (unsafe.Pointer, error)
	Deallocate(p unsafe.Pointer, l Layout)
}

// OffHeapAllocator is implemented by allocators returning memory that the
// garbage collector does not scan. Only label and element types without Go
// pointers can be placed in such memory.
type OffHeapAllocator interface {
	Allocator
	OffHeap() bool
}

// IsOffHeap reports whether a hands out memory the garbage collector does not scan.
func IsOffHeap(a Allocator) bool {
	o, ok := a.(OffHeapAllocator)
	return ok && o.OffHeap()
}

type installedAllocator struct {
	Allocator
}

var (
	current = atomic.NewPointer(&installedAllocator{Allocator: heapAllocator{}})
	inUse   atomic.Bool
)

// SetAllocator installs the allocator used by every block constructed from
// now on. It must be called before the first block is constructed: blocks are
// always deallocated with the allocator that is installed when they are
// destructed, so it returns ErrAllocatorInUse afterwards.
func SetAllocator(a Allocator) error {
	if a == nil {
		return errors.New("nil allocator")
	}
	if inUse.Load() {
		return ErrAllocatorInUse
	}
	current.Store(&installedAllocator{Allocator: a})
	return nil
}

// CurrentAllocator returns the installed allocator.
func CurrentAllocator() Allocator {
	return current.Load().Allocator
}

// HeapAllocator returns the default allocator. It places blocks in the Go
// heap, typed so that the garbage collector scans labels and elements.
func HeapAllocator() Allocator {
	return heapAllocator{}
}

type heapAllocator struct{}

type blockTypeKey struct {
	label, elem reflect.Type
	capacity    int
}

// maxBlockTypes is the number of struct types kept in blockTypes.
const maxBlockTypes = 4096

// blockTypes caches struct types built for blocks. Types created through
// reflect are never freed, so capacities are rounded up to size classes to
// bound how many are created per label and element type. reflect.StructOf
// returns the same type for the same fields, so an evicted entry only costs
// rebuilding it.
var blockTypes = func() *lru.Cache[blockTypeKey, reflect.Type] {
	c, err := lru.New[blockTypeKey, reflect.Type](maxBlockTypes)
	if err != nil {
		panic(err)
	}
	return c
}()

func (heapAllocator) Allocate(l Layout) (unsafe.Pointer, error) {
	if l.Label == nil || l.Elem == nil {
		return nil, errors.New("heap allocator requires a layout computed from Go types")
	}

	t := blockType(l)
	if Profile.Enabled(SkipLayoutCheck) {
		if t.Field(1).Offset != l.LenOffset || t.Field(2).Offset != l.ElemOffset || t.Size() < l.Size {
			return nil, errors.Wrapf(ErrLayoutMismatch, "computed %s, runtime len_offset %d, elem_offset %d, size %d",
				l, t.Field(1).Offset, t.Field(2).Offset, t.Size())
		}
	}
	return reflect.New(t).UnsafePointer(), nil
}

// Deallocate leaves the memory to the garbage collector. Destruct has already
// cleared every reference held by the block.
func (heapAllocator) Deallocate(unsafe.Pointer, Layout) {}

func blockType(l Layout) reflect.Type {
	capacity := l.Length
	if c := sizeClass(l.Length); l.ElemSize == 0 || c <= maxLen(l.LabelSize, uintptr(l.Label.Align()), l.ElemSize, uintptr(l.Elem.Align())) {
		capacity = c
	}

	key := blockTypeKey{label: l.Label, elem: l.Elem, capacity: capacity}
	if t, ok := blockTypes.Get(key); ok {
		return t
	}
	t := reflect.StructOf([]reflect.StructField{
		{Name: "Label", Type: l.Label},
		{Name: "Len", Type: reflect.TypeFor[uintptr]()},
		{Name: "Elems", Type: reflect.ArrayOf(capacity, l.Elem)},
	})
	blockTypes.Add(key, t)
	return t
}

// sizeClass rounds n up so that there are eight classes per power of two.
// Lengths whose class doesn't fit in an int are their own class.
func sizeClass(n int) int {
	if n <= 16 {
		return n
	}
	shift := bits.Len(uint(n-1)) - 4
	c := ((n-1)>>shift + 1) << shift
	if c < n {
		return n
	}
	return c
}

// hasPointers reports whether values of t contain pointers the garbage
// collector must know about.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func,
		reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
