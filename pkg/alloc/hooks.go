// SPDX-License-Identifier: AGPL-3.0-only

package alloc

import (
	"unsafe"

	"github.com/grafana/heaparray/pkg/memblock"
)

// Hooks adapts a caller-supplied pair of allocation functions into an
// allocator, for environments that manage memory themselves. The memory
// returned by Alloc is treated as off-heap.
//
// A nil pointer returned by Alloc is reported as an allocation failure,
// unless pointer checks are disabled.
type Hooks struct {
	Alloc func(size, align uintptr) unsafe.Pointer
	Free  func(p unsafe.Pointer, size, align uintptr)
}

func (h Hooks) OffHeap() bool { return true }

func (h Hooks) Allocate(l memblock.Layout) (unsafe.Pointer, error) {
	return h.Alloc(l.Size, l.Align), nil
}

func (h Hooks) Deallocate(p unsafe.Pointer, l memblock.Layout) {
	h.Free(p, l.Size, l.Align)
}
