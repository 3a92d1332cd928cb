// SPDX-License-Identifier: AGPL-3.0-only

// Package naiverc shares arrays between several owners by counting strong
// references in the label of the block. There are no weak references: the
// block is destructed as soon as the last owner releases it.
//
// ThinRc and FatRc keep a plain count and must only be used by one goroutine.
// ThinArc and FatArc update their count atomically, so that clones can be
// handed to other goroutines.
//
// Every handle must be released exactly once. Handles obtained by copying a
// value instead of calling Clone are not counted.
package naiverc

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/grafana/heaparray/pkg/memblock"
)

var (
	// ErrCountOverflow is the panic value, wrapped, of Clone when the count
	// can't be incremented anymore.
	ErrCountOverflow = errors.New("reference count overflow")
	// ErrCountUnderflow is the panic value, wrapped, of Release when the
	// count is already zero.
	ErrCountUnderflow = errors.New("reference count below zero")
)

// counted is the label of a block shared by Rc handles.
type counted[L any] struct {
	refs  uint64
	label L
}

// Release tears down the wrapped label when the block is destructed.
func (c *counted[L]) Release() {
	releaseLabel(&c.label)
}

func (c *counted[L]) inc() {
	if memblock.Profile.Enabled(memblock.SkipCountOverflowCheck) && c.refs == math.MaxUint64 {
		panic(errors.Wrapf(ErrCountOverflow, "count %d", c.refs))
	}
	c.refs++
}

// dec decrements the count and reports whether it dropped to zero.
func (c *counted[L]) dec() bool {
	if c.refs == 0 {
		panic(errors.Wrap(ErrCountUnderflow, "this indicates a block has been released more times than it was cloned, which is a bug"))
	}
	c.refs--
	return c.refs == 0
}

// atomicCounted is the label of a block shared by Arc handles.
type atomicCounted[L any] struct {
	refs  atomic.Uint64
	label L
}

func (c *atomicCounted[L]) Release() {
	releaseLabel(&c.label)
}

func (c *atomicCounted[L]) inc() {
	for {
		n := c.refs.Load()
		if n == 0 {
			panic(errors.Wrap(ErrCountUnderflow, "cloning a handle to a block that has already been destructed"))
		}
		if memblock.Profile.Enabled(memblock.SkipCountOverflowCheck) && n == math.MaxUint64 {
			panic(errors.Wrapf(ErrCountOverflow, "count %d", n))
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return
		}
	}
}

func (c *atomicCounted[L]) dec() bool {
	for {
		n := c.refs.Load()
		if n == 0 {
			panic(errors.Wrap(ErrCountUnderflow, "this indicates a block has been released more times than it was cloned, which is a bug"))
		}
		if c.refs.CompareAndSwap(n, n-1) {
			return n == 1
		}
	}
}

func releaseLabel[L any](label *L) {
	if r, ok := any(label).(memblock.Releaser); ok {
		r.Release()
	}
}

func newCounted[L any](label L) counted[L] {
	return counted[L]{refs: 1, label: label}
}

func newAtomicCounted[L any](label L) atomicCounted[L] {
	c := atomicCounted[L]{label: label}
	c.refs.Store(1)
	return c
}

// labelInit adapts an element initialiser to a block whose label wraps L.
func labelInit[C, L, E any](labelOf func(*C) *L, init func(label *L, i int) E) func(*C, int) E {
	return func(c *C, i int) E {
		return init(labelOf(c), i)
	}
}

func countedLabel[L any](c *counted[L]) *L {
	return &c.label
}

func atomicCountedLabel[L any](c *atomicCounted[L]) *L {
	return &c.label
}
