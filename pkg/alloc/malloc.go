// SPDX-License-Identifier: AGPL-3.0-only

package alloc

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"modernc.org/memory"

	"github.com/grafana/heaparray/pkg/memblock"
)

// mallocAlign is the alignment memory.Allocator guarantees.
const mallocAlign = 2 * unsafe.Sizeof(uintptr(0))

// Malloc places blocks in memory obtained from a malloc-style allocator
// outside the Go heap. Memory is zeroed before it's handed out. Blocks whose
// alignment exceeds what the allocator guarantees are over-allocated.
//
// Malloc memory is not scanned by the garbage collector.
type Malloc struct {
	logger log.Logger

	mtx    sync.Mutex
	a      memory.Allocator
	chunks map[unsafe.Pointer][]byte
}

// NewMalloc returns a malloc allocator.
func NewMalloc(logger log.Logger) *Malloc {
	return &Malloc{
		logger: logger,
		chunks: map[unsafe.Pointer][]byte{},
	}
}

func (m *Malloc) OffHeap() bool { return true }

func (m *Malloc) Allocate(l memblock.Layout) (unsafe.Pointer, error) {
	size := int(l.Size)
	var pad uintptr
	if l.Align > mallocAlign {
		pad = l.Align - 1
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	chunk, err := m.a.Calloc(size + int(pad))
	if err != nil {
		return nil, errors.Wrapf(err, "calloc %d bytes", size+int(pad))
	}

	p := unsafe.Pointer(unsafe.SliceData(chunk))
	if pad > 0 {
		misalignment := uintptr(p) & (l.Align - 1)
		if misalignment != 0 {
			p = unsafe.Add(p, l.Align-misalignment)
		}
	}
	m.chunks[p] = chunk
	return p, nil
}

func (m *Malloc) Deallocate(p unsafe.Pointer, l memblock.Layout) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	chunk, ok := m.chunks[p]
	if !ok {
		panic(fmt.Sprintf("deallocating a block of length %d that was not allocated by this allocator", l.Length))
	}
	delete(m.chunks, p)
	if err := m.a.Free(chunk); err != nil {
		level.Warn(m.logger).Log("msg", "failed to free block", "length", l.Length, "err", err)
	}
}

// Close releases all the memory held by the allocator, including blocks that
// were never deallocated.
func (m *Malloc) Close() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if n := len(m.chunks); n > 0 {
		level.Warn(m.logger).Log("msg", "closing malloc allocator with live blocks", "blocks", n)
	}
	clear(m.chunks)
	return m.a.Close()
}
