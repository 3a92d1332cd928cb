// SPDX-License-Identifier: AGPL-3.0-only

package alloc_test

import (
	"os"
	"testing"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grafana/heaparray/pkg/alloc"
	"github.com/grafana/heaparray/pkg/memblock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type header struct {
	id    uint32
	flags uint16
}

func writeBlock(t *testing.T, p unsafe.Pointer, l memblock.Layout) {
	t.Helper()
	buf := unsafe.Slice((*byte)(p), l.Size)
	for i := range buf {
		require.Zero(t, buf[i], "offset %d", i)
		buf[i] = byte(i)
	}
}

func TestMmap(t *testing.T) {
	m := alloc.NewMmap(alloc.MmapConfig{}, log.NewNopLogger())
	assert.True(t, m.OffHeap())

	for _, length := range []int{0, 1, 100, 10_000} {
		l := memblock.ComputeLayout[header, uint64](length)
		p, err := m.Allocate(l)
		require.NoError(t, err)
		require.NotNil(t, p)
		require.Zero(t, uintptr(p)%uintptr(os.Getpagesize()), "blocks are page aligned")

		writeBlock(t, p, l)
		m.Deallocate(p, l)
	}

	require.NoError(t, m.Close())
}

func TestMmap_CloseUnmapsLiveBlocks(t *testing.T) {
	m := alloc.NewMmap(alloc.MmapConfig{QuarantineFreed: true}, log.NewNopLogger())

	l := memblock.ComputeLayout[header, uint64](10)
	live, err := m.Allocate(l)
	require.NoError(t, err)
	writeBlock(t, live, l)

	freed, err := m.Allocate(l)
	require.NoError(t, err)
	m.Deallocate(freed, l)

	require.NoError(t, m.Close())
}

func TestMmap_DeallocateUnknownBlock(t *testing.T) {
	m := alloc.NewMmap(alloc.MmapConfig{}, log.NewNopLogger())
	t.Cleanup(func() { require.NoError(t, m.Close()) })

	var x uint64
	require.Panics(t, func() {
		m.Deallocate(unsafe.Pointer(&x), memblock.ComputeLayout[header, uint64](0))
	})
}

func TestMmap_AlignmentLargerThanPage(t *testing.T) {
	m := alloc.NewMmap(alloc.MmapConfig{}, log.NewNopLogger())
	t.Cleanup(func() { require.NoError(t, m.Close()) })

	l, err := memblock.ComputeRawLayout(8, uintptr(os.Getpagesize())*2, 8, 8, 1)
	require.NoError(t, err)
	_, err = m.Allocate(l)
	require.Error(t, err)
}

func TestMalloc(t *testing.T) {
	m := alloc.NewMalloc(log.NewNopLogger())
	assert.True(t, m.OffHeap())

	tests := map[string]struct {
		labelSize, labelAlign, elemSize, elemAlign uintptr
		length                                     int
	}{
		"small block": {
			labelSize: 8, labelAlign: 8, elemSize: 4, elemAlign: 4, length: 3,
		},
		"empty block": {
			labelSize: 0, labelAlign: 1, elemSize: 1, elemAlign: 1, length: 0,
		},
		"large block": {
			labelSize: 24, labelAlign: 8, elemSize: 16, elemAlign: 8, length: 100_000,
		},
		"over-aligned label": {
			labelSize: 64, labelAlign: 64, elemSize: 8, elemAlign: 8, length: 5,
		},
		"over-aligned elements": {
			labelSize: 1, labelAlign: 1, elemSize: 256, elemAlign: 256, length: 2,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			l, err := memblock.ComputeRawLayout(tc.labelSize, tc.labelAlign, tc.elemSize, tc.elemAlign, tc.length)
			require.NoError(t, err)

			// Allocate a few blocks so that they aren't all placed at the start of a page.
			var ptrs []unsafe.Pointer
			for i := 0; i < 3; i++ {
				p, err := m.Allocate(l)
				require.NoError(t, err)
				require.Zero(t, uintptr(p)%l.Align, "block is not aligned to %d", l.Align)
				writeBlock(t, p, l)
				ptrs = append(ptrs, p)
			}
			for _, p := range ptrs {
				m.Deallocate(p, l)
			}
		})
	}

	require.NoError(t, m.Close())
}

func TestMalloc_DeallocateUnknownBlock(t *testing.T) {
	m := alloc.NewMalloc(log.NewNopLogger())
	t.Cleanup(func() { require.NoError(t, m.Close()) })

	var x uint64
	require.Panics(t, func() {
		m.Deallocate(unsafe.Pointer(&x), memblock.ComputeLayout[header, uint64](0))
	})
}

func TestHooks(t *testing.T) {
	type call struct {
		size, align uintptr
	}
	var (
		allocs, frees []call
		backing       = map[unsafe.Pointer][]uint64{}
	)

	h := alloc.Hooks{
		Alloc: func(size, align uintptr) unsafe.Pointer {
			allocs = append(allocs, call{size, align})
			buf := make([]uint64, (size+7)/8)
			p := unsafe.Pointer(unsafe.SliceData(buf))
			backing[p] = buf
			return p
		},
		Free: func(p unsafe.Pointer, size, align uintptr) {
			frees = append(frees, call{size, align})
			delete(backing, p)
		},
	}
	assert.True(t, h.OffHeap())

	l := memblock.ComputeLayout[header, uint32](7)
	p, err := h.Allocate(l)
	require.NoError(t, err)
	require.NotNil(t, p)
	h.Deallocate(p, l)

	require.Equal(t, []call{{l.Size, l.Align}}, allocs)
	require.Equal(t, allocs, frees)
	require.Empty(t, backing)
}
