// SPDX-License-Identifier: AGPL-3.0-only

package memblock

import (
	"math"
	"math/bits"
	"reflect"
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLayout_TooLarge(t *testing.T) {
	// Without the size check, only the layout check stands between a huge
	// length and a block larger than the address space allows.
	_, err := computeLayout(8, 8, 1, 1, math.MaxInt-8, SkipSizeCheck)
	require.ErrorIs(t, err, ErrLayoutTooLarge)

	_, err = computeLayout(8, 8, 1, 1, math.MaxInt-8, SkipSizeCheck|SkipLayoutCheck)
	require.NoError(t, err)

	_, err = computeLayout(8, 6, 1, 1, 1, SkipLayoutCheck)
	require.NoError(t, err)
}

func TestAlignUp(t *testing.T) {
	for _, tc := range []struct {
		x, align, expected uintptr
		overflow           bool
	}{
		{x: 0, align: 8, expected: 0},
		{x: 1, align: 8, expected: 8},
		{x: 8, align: 8, expected: 8},
		{x: 9, align: 4, expected: 12},
		{x: 13, align: 1, expected: 13},
		{x: ^uintptr(0) - 2, align: 8, overflow: true},
	} {
		actual, overflow := alignUp(tc.x, tc.align)
		assert.Equal(t, tc.overflow, overflow, "alignUp(%d, %d)", tc.x, tc.align)
		if !tc.overflow {
			assert.Equal(t, tc.expected, actual, "alignUp(%d, %d)", tc.x, tc.align)
		}
	}
}

func TestSizeClass(t *testing.T) {
	// The largest size class that fits in an int.
	const top = 15 << (bits.UintSize - 5)

	for _, tc := range []struct{ n, expected int }{
		{0, 0},
		{1, 1},
		{16, 16},
		{17, 18},
		{18, 18},
		{19, 20},
		{33, 36},
		{1000, 1024},
		{1025, 1152},
		{top, top},
		{top/15*14 + 1, top},
		{top + 1, top + 1},
		{math.MaxInt - 1, math.MaxInt - 1},
		{math.MaxInt, math.MaxInt},
	} {
		assert.Equal(t, tc.expected, sizeClass(tc.n), "sizeClass(%d)", tc.n)
	}

	for n := 0; n < 5000; n++ {
		c := sizeClass(n)
		require.GreaterOrEqual(t, c, n)
		require.LessOrEqual(t, c, n+n/8+1)
	}

	for shift := 4; shift < bits.UintSize-1; shift++ {
		for _, n := range []int{1<<shift - 1, 1 << shift, 1<<shift + 1, math.MaxInt >> (bits.UintSize - 2 - shift)} {
			require.GreaterOrEqual(t, sizeClass(n), n, "sizeClass(%d)", n)
		}
	}
}

type pointerful struct {
	a int
	b []byte
}

func TestHasPointers(t *testing.T) {
	for _, tc := range []struct {
		typ      reflect.Type
		expected bool
	}{
		{reflect.TypeFor[int](), false},
		{reflect.TypeFor[[4]float64](), false},
		{reflect.TypeFor[struct{ a, b uint8 }](), false},
		{reflect.TypeFor[[0]*int](), false},
		{reflect.TypeFor[string](), true},
		{reflect.TypeFor[*int](), true},
		{reflect.TypeFor[unsafe.Pointer](), true},
		{reflect.TypeFor[any](), true},
		{reflect.TypeFor[map[int]int](), true},
		{reflect.TypeFor[[2]pointerful](), true},
	} {
		assert.Equal(t, tc.expected, hasPointers(tc.typ), tc.typ.String())
	}
}

func TestBlockType_MatchesComputedLayout(t *testing.T) {
	check := func(l Layout) {
		t.Helper()
		bt := blockType(l)
		require.Equal(t, l.LenOffset, bt.Field(1).Offset, "%s", l)
		require.Equal(t, l.ElemOffset, bt.Field(2).Offset, "%s", l)
		require.GreaterOrEqual(t, bt.Size(), l.Size, "%s", l)
		require.GreaterOrEqual(t, bt.Field(2).Type.Len(), l.Length, "%s", l)
	}

	for _, n := range []int{0, 1, 3, 17, 100, 4097} {
		check(ComputeLayout[uint8, uint32](n))
		check(ComputeLayout[string, uint16](n))
		check(ComputeLayout[struct{}, [3]byte](n))
		check(ComputeLayout[[5]byte, pointerful](n))
		check(ComputeLayout[complex128, struct{}](n))
	}

	// Zero-sized elements allow any length, up to the largest int.
	for _, n := range []int{15<<(bits.UintSize-5) + 1, math.MaxInt - 1, math.MaxInt} {
		check(ComputeLayout[uint64, struct{}](n))
	}

	// Lengths in the same size class share a type.
	require.Equal(t, blockType(ComputeLayout[uint8, uint32](1001)), blockType(ComputeLayout[uint8, uint32](1020)))
}

func TestBlockType_RebuiltAfterEviction(t *testing.T) {
	l := ComputeLayout[uint16, [3]byte](77)
	before := blockType(l)

	blockTypes.Purge()
	require.Equal(t, 0, blockTypes.Len())
	require.Equal(t, before, blockType(l))
	require.Equal(t, 1, blockTypes.Len())

	// Size classes keep lengths from filling the cache, distinct label types
	// don't.
	elem := reflect.TypeFor[byte]()
	for i := 0; i < maxBlockTypes+16; i++ {
		blockType(Layout{Label: reflect.ArrayOf(i, elem), Elem: elem, LabelSize: uintptr(i), ElemSize: 1})
	}
	require.Equal(t, maxBlockTypes, blockTypes.Len())
}

// offHeap hands out pointer-free memory from a slice of words, like the
// off-heap backends do from memory the garbage collector doesn't know about.
type offHeap struct {
	blocks map[unsafe.Pointer][]uint64
}

func (o *offHeap) OffHeap() bool { return true }

func (o *offHeap) Allocate(l Layout) (unsafe.Pointer, error) {
	buf := make([]uint64, (l.Size+7)/8)
	p := unsafe.Pointer(unsafe.SliceData(buf))
	o.blocks[p] = buf
	return p, nil
}

func (o *offHeap) Deallocate(p unsafe.Pointer, _ Layout) {
	if _, ok := o.blocks[p]; !ok {
		panic("unknown block")
	}
	delete(o.blocks, p)
}

func withAllocator(t *testing.T, a Allocator) {
	prev := current.Swap(&installedAllocator{Allocator: a})
	t.Cleanup(func() { current.Store(prev) })
}

func TestNewLazy_OffHeapRejectsPointers(t *testing.T) {
	a := &offHeap{blocks: map[unsafe.Pointer][]uint64{}}
	withAllocator(t, a)

	b := NewFilled[[2]int32, float64]([2]int32{1, 2}, 3, 0.5)
	require.Len(t, a.blocks, 1)
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, b.Slice())
	b.Destruct()
	require.Empty(t, a.blocks)

	requirePanicsWith(t, ErrPointerfulType, func() { NewFilled[string, int]("label", 1, 0) })
	requirePanicsWith(t, ErrPointerfulType, func() { NewFilled[int, pointerful](0, 1, pointerful{}) })
	require.Empty(t, a.blocks)
}

type failing struct{ err error }

func (f failing) Allocate(Layout) (unsafe.Pointer, error) { return nil, f.err }
func (f failing) Deallocate(unsafe.Pointer, Layout)       {}

func TestNewLazy_AllocationFailure(t *testing.T) {
	withAllocator(t, failing{err: errors.New("out of memory")})
	requirePanicsWith(t, nil, func() { NewLazy[int, int](0, 10) })

	withAllocator(t, failing{})
	requirePanicsWith(t, ErrNilBlock, func() { NewLazy[int, int](0, 10) })
}

func requirePanicsWith(t *testing.T, target error, f func()) {
	t.Helper()
	var recovered any
	func() {
		defer func() {
			recovered = recover()
		}()
		f()
	}()
	require.NotNil(t, recovered)
	if target != nil {
		err, ok := recovered.(error)
		require.True(t, ok)
		require.ErrorIs(t, err, target)
	}
}
