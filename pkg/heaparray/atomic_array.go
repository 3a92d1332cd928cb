// SPDX-License-Identifier: AGPL-3.0-only

package heaparray

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/grafana/heaparray/pkg/memblock"
)

// State of an AtomicPtrArray.
type State int

const (
	Uninitialized State = iota
	Initialized
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	}
	return "unknown"
}

// AtomicPtrArray is a slot that starts empty and can be filled with an array
// exactly once. It's safe to use from multiple goroutines: when several race
// to initialise it, one of them wins and the others get the winner's array.
//
// Once initialised, the array is read-only and is shared through Ref values.
// The zero value is an empty slot.
type AtomicPtrArray[L, E any] struct {
	slot   atomic.UnsafePointer
	logger log.Logger
}

// NewAtomic returns an empty slot. Lost initialisation races are logged to logger.
func NewAtomic[L, E any](logger log.Logger) *AtomicPtrArray[L, E] {
	return &AtomicPtrArray[L, E]{logger: logger}
}

// TryInit fills the slot with an array of n elements initialised by init,
// unless it's already filled. It returns the array in the slot, and whether
// this call is the one that filled it.
//
// The array is built before trying to install it, so a goroutine losing a race
// builds an array and then destructs it. init must not call back into this slot.
func (a *AtomicPtrArray[L, E]) TryInit(label L, n int, init func(label *L, i int) E) (Ref[L, E], bool) {
	if r, ok := a.Load(); ok {
		return r, false
	}
	return a.install(memblock.New(label, n, init))
}

// TryInitFilled is TryInit with n copies of value.
func (a *AtomicPtrArray[L, E]) TryInitFilled(label L, n int, value E) (Ref[L, E], bool) {
	if r, ok := a.Load(); ok {
		return r, false
	}
	return a.install(memblock.NewFilled(label, n, value))
}

func (a *AtomicPtrArray[L, E]) install(b memblock.Block[L, E]) (Ref[L, E], bool) {
	if a.slot.CompareAndSwap(nil, b.Pointer()) {
		return Ref[L, E]{b: b}, true
	}

	n := b.Len()
	b.Destruct()
	if a.logger != nil {
		level.Debug(a.logger).Log("msg", "lost race to initialise atomic array, discarded the array built for it", "length", n)
	}

	r, _ := a.Load()
	return r, false
}

// Load returns the array in the slot, if it has been initialised.
func (a *AtomicPtrArray[L, E]) Load() (Ref[L, E], bool) {
	p := a.slot.Load()
	if p == nil {
		return Ref[L, E]{}, false
	}
	return Ref[L, E]{b: memblock.FromPointer[L, E](p)}, true
}

func (a *AtomicPtrArray[L, E]) State() State {
	if a.slot.Load() == nil {
		return Uninitialized
	}
	return Initialized
}

// Free empties the slot and destructs its array. It must only be called once
// no goroutine uses the slot, nor any Ref obtained from it, anymore.
func (a *AtomicPtrArray[L, E]) Free() {
	if p := a.slot.Swap(nil); p != nil {
		memblock.FromPointer[L, E](p).Destruct()
	}
}
