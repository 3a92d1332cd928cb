// SPDX-License-Identifier: AGPL-3.0-only

package alloc_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/heaparray/pkg/alloc"
	"github.com/grafana/heaparray/pkg/memblock"
)

func TestInstrumented(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	a := alloc.NewInstrumented(memblock.HeapAllocator(), reg)
	assert.False(t, a.OffHeap())

	small := memblock.ComputeLayout[header, uint64](2)
	large := memblock.ComputeLayout[header, uint64](1000)

	p1, err := a.Allocate(small)
	require.NoError(t, err)
	p2, err := a.Allocate(large)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), a.Allocations())
	assert.Equal(t, int64(2), a.LiveBlocks())
	assert.Equal(t, int64(small.Size+large.Size), a.LiveBytes())

	a.Deallocate(p2, large)

	assert.Equal(t, uint64(1), a.Deallocations())
	assert.Equal(t, int64(1), a.LiveBlocks())
	assert.Equal(t, int64(small.Size), a.LiveBytes())

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(fmt.Sprintf(`
		# HELP heaparray_allocations_total Total number of blocks allocated.
		# TYPE heaparray_allocations_total counter
		heaparray_allocations_total 2
		# HELP heaparray_deallocations_total Total number of blocks deallocated.
		# TYPE heaparray_deallocations_total counter
		heaparray_deallocations_total 1
		# HELP heaparray_live_blocks Number of blocks currently allocated.
		# TYPE heaparray_live_blocks gauge
		heaparray_live_blocks 1
		# HELP heaparray_live_bytes Size in bytes of the blocks currently allocated, as computed from their layout.
		# TYPE heaparray_live_bytes gauge
		heaparray_live_bytes %d
	`, small.Size))))

	a.Deallocate(p1, small)
	assert.Zero(t, a.LiveBlocks())
	assert.Zero(t, a.LiveBytes())

	require.Panics(t, func() { a.Deallocate(p1, small) })
}

func TestInstrumented_OffHeap(t *testing.T) {
	m := alloc.NewMalloc(log.NewNopLogger())
	t.Cleanup(func() { require.NoError(t, m.Close()) })

	a := alloc.NewInstrumented(m, nil)
	assert.True(t, a.OffHeap())
	assert.True(t, memblock.IsOffHeap(a))
}
