// SPDX-License-Identifier: AGPL-3.0-only

package alloc

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/multierror"
	"github.com/pkg/errors"

	"github.com/grafana/heaparray/pkg/memblock"
)

var pageSize = os.Getpagesize()

// Mmap places every block in its own anonymous private mapping. Blocks are
// page-aligned and occupy a whole number of pages, so it's only suited to
// large blocks, or to catching accesses after destruction: an unmapped or
// quarantined block faults when touched.
//
// Mmap memory is not scanned by the garbage collector.
type Mmap struct {
	logger     log.Logger
	quarantine bool

	mtx         sync.Mutex
	regions     map[unsafe.Pointer]mmap.MMap
	quarantined []mmap.MMap
}

// NewMmap returns an mmap allocator.
func NewMmap(cfg MmapConfig, logger log.Logger) *Mmap {
	return &Mmap{
		logger:     logger,
		quarantine: cfg.QuarantineFreed,
		regions:    map[unsafe.Pointer]mmap.MMap{},
	}
}

func (m *Mmap) OffHeap() bool { return true }

func (m *Mmap) Allocate(l memblock.Layout) (unsafe.Pointer, error) {
	if l.Align > uintptr(pageSize) {
		return nil, errors.Errorf("alignment %d is larger than the page size %d", l.Align, pageSize)
	}

	size := roundUpToMultiple(int(l.Size), pageSize)
	region, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %d bytes", size)
	}
	// The region is restricted to the block size, without the page-aligning padding.
	region = region[:l.Size:size]
	p := unsafe.Pointer(unsafe.SliceData(region))

	m.mtx.Lock()
	m.regions[p] = region
	m.mtx.Unlock()

	level.Debug(m.logger).Log("msg", "mapped block", "length", l.Length, "size", humanize.IBytes(uint64(size)))
	return p, nil
}

func (m *Mmap) Deallocate(p unsafe.Pointer, l memblock.Layout) {
	m.mtx.Lock()
	region, ok := m.regions[p]
	delete(m.regions, p)
	m.mtx.Unlock()

	if !ok {
		panic(fmt.Sprintf("deallocating a block of length %d that was not allocated by this allocator", l.Length))
	}
	region = region[:cap(region)]

	if m.quarantine {
		err := protectNone(region)
		if err == nil {
			m.mtx.Lock()
			m.quarantined = append(m.quarantined, region)
			m.mtx.Unlock()
			return
		}
		level.Warn(m.logger).Log("msg", "failed to quarantine freed block, unmapping it", "err", err)
	}

	if err := region.Unmap(); err != nil {
		level.Warn(m.logger).Log("msg", "failed to unmap block", "length", l.Length, "err", err)
	}
}

// Close unmaps quarantined blocks, and any block that is still allocated.
func (m *Mmap) Close() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	merr := multierror.New()
	for p, region := range m.regions {
		region = region[:cap(region)]
		merr.Add(region.Unmap())
		delete(m.regions, p)
	}
	for _, region := range m.quarantined {
		merr.Add(region.Unmap())
	}
	m.quarantined = nil
	return merr.Err()
}

func roundUpToMultiple(n, of int) int {
	return ((n + of - 1) / of) * of
}
