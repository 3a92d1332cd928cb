// SPDX-License-Identifier: AGPL-3.0-only

package memblock

import (
	"fmt"
	"math"
	"math/bits"
	"reflect"
	"unsafe"

	"github.com/pkg/errors"
)

const (
	lenSize  = unsafe.Sizeof(uintptr(0))
	lenAlign = unsafe.Alignof(uintptr(0))
)

// Layout describes where the label, the length field and the elements of a
// block live, relative to the start of the block.
//
// The label is always at offset 0. The length field follows at the first
// offset aligned for a uintptr, and the elements follow at the first offset
// aligned for the element type. Size is rounded up to Align.
type Layout struct {
	Length int

	Size       uintptr
	Align      uintptr
	LenOffset  uintptr
	ElemOffset uintptr

	LabelSize uintptr
	ElemSize  uintptr

	// Label and Elem are only set for layouts computed from Go types. The
	// heap allocator needs them to build a block the garbage collector can
	// scan.
	Label reflect.Type
	Elem  reflect.Type
}

func (l Layout) String() string {
	return fmt.Sprintf("{length: %d, size: %d, align: %d, len_offset: %d, elem_offset: %d}", l.Length, l.Size, l.Align, l.LenOffset, l.ElemOffset)
}

// ComputeLayout returns the layout of a block holding one L and length
// values of E. It panics if the layout is invalid, unless the corresponding
// checks are disabled by the build profile.
//
// The result only depends on L, E and length, so destruction always recomputes
// the layout used at construction.
func ComputeLayout[L, E any](length int) Layout {
	ls, la := sizeAlign[L]()
	es, ea := sizeAlign[E]()
	l, err := computeLayout(ls, la, es, ea, length, Profile)
	if err != nil {
		panic(err)
	}
	l.Label = reflect.TypeFor[L]()
	l.Elem = reflect.TypeFor[E]()
	return l
}

// ComputeRawLayout is ComputeLayout for types only known by their size and
// alignment. Every check is performed regardless of the build profile.
func ComputeRawLayout(labelSize, labelAlign, elemSize, elemAlign uintptr, length int) (Layout, error) {
	return computeLayout(labelSize, labelAlign, elemSize, elemAlign, length, Checked)
}

// MaxLen returns the largest length of a block of L and E.
func MaxLen[L, E any]() int {
	ls, la := sizeAlign[L]()
	es, ea := sizeAlign[E]()
	return maxLen(ls, la, es, ea)
}

// MaxRawLen is MaxLen for types only known by their size and alignment.
func MaxRawLen(labelSize, labelAlign, elemSize, elemAlign uintptr) int {
	return maxLen(labelSize, labelAlign, elemSize, elemAlign)
}

func maxLen(ls, la, es, ea uintptr) int {
	if es == 0 {
		return math.MaxInt
	}
	// Offsets of an empty block can't overflow for any type Go can express.
	lenOffset, _ := alignUp(ls, lenAlign)
	elemOffset, _ := alignUp(lenOffset+lenSize, ea)
	slack := max(la, lenAlign, ea) - 1
	if elemOffset+slack > math.MaxInt {
		return 0
	}
	return int((math.MaxInt - elemOffset - slack) / es)
}

func computeLayout(ls, la, es, ea uintptr, length int, checks Checks) (Layout, error) {
	if checks.Enabled(SkipLayoutCheck) && (!isPowerOfTwo(la) || !isPowerOfTwo(ea)) {
		return Layout{}, errors.Wrapf(ErrInvalidAlignment, "label alignment %d, element alignment %d", la, ea)
	}
	if checks.Enabled(SkipSizeCheck) {
		if length < 0 {
			return Layout{}, errors.Wrapf(ErrSizeOverflow, "negative length %d", length)
		}
		if limit := maxLen(ls, la, es, ea); length > limit {
			return Layout{}, errors.Wrapf(ErrSizeOverflow, "length %d exceeds the maximum of %d elements", length, limit)
		}
	}

	l := Layout{
		Length:    length,
		Align:     max(la, lenAlign, ea),
		LabelSize: ls,
		ElemSize:  es,
	}

	var o1, o2, o3, o4, o5 bool
	l.LenOffset, o1 = alignUp(ls, lenAlign)
	afterLen, o2 := addOverflows(l.LenOffset, lenSize)
	l.ElemOffset, o3 = alignUp(afterLen, ea)
	hi, elems := bits.Mul(uint(es), uint(length))
	end, o4 := addOverflows(l.ElemOffset, uintptr(elems))
	l.Size, o5 = alignUp(end, l.Align)

	if checks.Enabled(SkipSizeCheck) && (hi != 0 || o1 || o2 || o3 || o4 || o5) {
		return Layout{}, errors.Wrapf(ErrSizeOverflow, "length %d of %d byte elements", length, es)
	}
	if checks.Enabled(SkipLayoutCheck) && l.Size > math.MaxInt {
		return Layout{}, errors.Wrapf(ErrLayoutTooLarge, "size %d, align %d", l.Size, l.Align)
	}
	return l, nil
}

func sizeAlign[T any]() (uintptr, uintptr) {
	var zero T
	return unsafe.Sizeof(zero), unsafe.Alignof(zero)
}

// alignUp rounds x up to a multiple of align, which must be a power of two.
func alignUp(x, align uintptr) (uintptr, bool) {
	sum, carry := bits.Add(uint(x), uint(align-1), 0)
	return uintptr(sum) &^ (align - 1), carry != 0
}

func addOverflows(a, b uintptr) (uintptr, bool) {
	sum, carry := bits.Add(uint(a), uint(b), 0)
	return uintptr(sum), carry != 0
}

func isPowerOfTwo(x uintptr) bool {
	return x != 0 && x&(x-1) == 0
}
