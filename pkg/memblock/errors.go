// SPDX-License-Identifier: AGPL-3.0-only

package memblock

import "github.com/pkg/errors"

var (
	// ErrSizeOverflow is reported when the length or size arithmetic of a
	// block overflows, or a length exceeds MaxLen.
	ErrSizeOverflow = errors.New("block size overflows")
	// ErrInvalidAlignment is reported for alignments that are not a power of two.
	ErrInvalidAlignment = errors.New("invalid alignment")
	// ErrLayoutTooLarge is reported when a block would be larger than math.MaxInt bytes.
	ErrLayoutTooLarge = errors.New("block layout too large for this platform")
	// ErrLayoutMismatch is reported when an allocator lays out a block
	// differently from the computed layout.
	ErrLayoutMismatch = errors.New("allocated layout does not match computed layout")
	// ErrNilBlock is reported when a nil block handle is dereferenced, or an
	// allocator returns a nil pointer.
	ErrNilBlock = errors.New("nil block")
	// ErrPointerfulType is reported when a type containing Go pointers is
	// placed in memory the garbage collector does not scan.
	ErrPointerfulType = errors.New("type contains Go pointers and cannot be allocated off-heap")
	// ErrAllocatorInUse is returned when replacing the allocator after blocks
	// have been allocated with it.
	ErrAllocatorInUse = errors.New("allocator already in use")
)
