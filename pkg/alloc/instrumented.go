// SPDX-License-Identifier: AGPL-3.0-only

package alloc

import (
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"

	"github.com/grafana/heaparray/pkg/memblock"
)

// Instrumented wraps an allocator and keeps track of the blocks it has
// handed out and taken back.
type Instrumented struct {
	next memblock.Allocator

	allocations   atomic.Uint64
	deallocations atomic.Uint64
	liveBlocks    atomic.Int64
	liveBytes     atomic.Int64

	allocationsTotal   prometheus.Counter
	deallocationsTotal prometheus.Counter
	liveBlocksGauge    prometheus.Gauge
	liveBytesGauge     prometheus.Gauge
}

// NewInstrumented wraps next. Metrics are registered with reg, if not nil.
func NewInstrumented(next memblock.Allocator, reg prometheus.Registerer) *Instrumented {
	return &Instrumented{
		next: next,
		allocationsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "heaparray_allocations_total",
			Help: "Total number of blocks allocated.",
		}),
		deallocationsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "heaparray_deallocations_total",
			Help: "Total number of blocks deallocated.",
		}),
		liveBlocksGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "heaparray_live_blocks",
			Help: "Number of blocks currently allocated.",
		}),
		liveBytesGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "heaparray_live_bytes",
			Help: "Size in bytes of the blocks currently allocated, as computed from their layout.",
		}),
	}
}

func (i *Instrumented) OffHeap() bool {
	return memblock.IsOffHeap(i.next)
}

func (i *Instrumented) Allocate(l memblock.Layout) (unsafe.Pointer, error) {
	p, err := i.next.Allocate(l)
	if err != nil || p == nil {
		return p, err
	}

	i.allocations.Inc()
	i.allocationsTotal.Inc()
	i.liveBlocksGauge.Set(float64(i.liveBlocks.Inc()))
	i.liveBytesGauge.Set(float64(i.liveBytes.Add(int64(l.Size))))
	return p, nil
}

func (i *Instrumented) Deallocate(p unsafe.Pointer, l memblock.Layout) {
	live := i.liveBlocks.Dec()
	if live < 0 {
		panic("more blocks deallocated than allocated. This indicates a block has been destructed more than once, which is a bug.")
	}
	i.deallocations.Inc()
	i.deallocationsTotal.Inc()
	i.liveBlocksGauge.Set(float64(live))
	i.liveBytesGauge.Set(float64(i.liveBytes.Sub(int64(l.Size))))

	i.next.Deallocate(p, l)
}

// Allocations returns the number of blocks allocated so far.
func (i *Instrumented) Allocations() uint64 { return i.allocations.Load() }

// Deallocations returns the number of blocks deallocated so far.
func (i *Instrumented) Deallocations() uint64 { return i.deallocations.Load() }

// LiveBlocks returns the number of blocks allocated and not yet deallocated.
func (i *Instrumented) LiveBlocks() int64 { return i.liveBlocks.Load() }

// LiveBytes returns the total size of the live blocks.
func (i *Instrumented) LiveBytes() int64 { return i.liveBytes.Load() }
