// SPDX-License-Identifier: AGPL-3.0-only

package naiverc

import (
	"slices"

	"github.com/grafana/heaparray/pkg/heaparray"
)

// ThinArc is a counted handle to an array, one word wide, whose clones can be
// used by other goroutines. A single handle must not be used concurrently:
// each goroutine clones its own.
//
// The label and the elements are read-only while the array is shared.
type ThinArc[L, E any] struct {
	a heaparray.ThinPtrArray[atomicCounted[L], E]
}

// NewThinArc allocates an array of n elements initialised by init, and
// returns the first handle to it.
func NewThinArc[L, E any](label L, n int, init func(label *L, i int) E) ThinArc[L, E] {
	return ThinArc[L, E]{a: heaparray.NewThin(newAtomicCounted(label), n, labelInit(atomicCountedLabel[L], init))}
}

// NewThinArcFilled allocates an array of n copies of value.
func NewThinArcFilled[L, E any](label L, n int, value E) ThinArc[L, E] {
	return ThinArc[L, E]{a: heaparray.NewThinFilled(newAtomicCounted(label), n, value)}
}

// Clone returns a new handle to the same array. Cloning a released handle
// returns a released handle.
func (r *ThinArc[L, E]) Clone() ThinArc[L, E] {
	if r.a.IsNil() {
		return ThinArc[L, E]{}
	}
	r.a.Label().inc()
	return ThinArc[L, E]{a: r.a}
}

// Release gives up this handle. The goroutine releasing the last handle
// destructs the array. Releasing a handle more than once is a no-op.
func (r *ThinArc[L, E]) Release() {
	if r.a.IsNil() {
		return
	}
	if r.a.Label().dec() {
		r.a.Free()
		return
	}
	r.a = heaparray.ThinPtrArray[atomicCounted[L], E]{}
}

// Mutate calls fn with the label and the elements if this is the only handle
// to the array, and reports whether it did.
func (r *ThinArc[L, E]) Mutate(fn func(label *L, elems []E)) bool {
	c := r.a.Label()
	if c.refs.Load() != 1 {
		return false
	}
	fn(&c.label, r.a.Slice())
	return true
}

func (r *ThinArc[L, E]) IsNil() bool { return r.a.IsNil() }

func (r *ThinArc[L, E]) Len() int { return r.a.Len() }

// Label returns a copy of the label.
func (r *ThinArc[L, E]) Label() L { return r.a.Label().label }

// At returns a copy of the element at index i.
func (r *ThinArc[L, E]) At(i int) E { return r.a.At(i) }

// Values returns a copy of the elements.
func (r *ThinArc[L, E]) Values() []E { return slices.Clone(r.a.Slice()) }

// StrongCount returns the number of handles to the array. Other goroutines
// may change it as soon as it's returned.
func (r *ThinArc[L, E]) StrongCount() uint64 { return r.a.Label().refs.Load() }

// FatArc is a ThinArc that keeps a copy of the length of the array.
type FatArc[L, E any] struct {
	a heaparray.FatPtrArray[atomicCounted[L], E]
}

// NewFatArc allocates an array of n elements initialised by init, and returns
// the first handle to it.
func NewFatArc[L, E any](label L, n int, init func(label *L, i int) E) FatArc[L, E] {
	return FatArc[L, E]{a: heaparray.NewFat(newAtomicCounted(label), n, labelInit(atomicCountedLabel[L], init))}
}

// NewFatArcFilled allocates an array of n copies of value.
func NewFatArcFilled[L, E any](label L, n int, value E) FatArc[L, E] {
	return FatArc[L, E]{a: heaparray.NewFatFilled(newAtomicCounted(label), n, value)}
}

func (r *FatArc[L, E]) Clone() FatArc[L, E] {
	if r.a.IsNil() {
		return FatArc[L, E]{}
	}
	r.a.Label().inc()
	return FatArc[L, E]{a: r.a}
}

func (r *FatArc[L, E]) Release() {
	if r.a.IsNil() {
		return
	}
	if r.a.Label().dec() {
		r.a.Free()
		return
	}
	r.a = heaparray.FatPtrArray[atomicCounted[L], E]{}
}

func (r *FatArc[L, E]) Mutate(fn func(label *L, elems []E)) bool {
	c := r.a.Label()
	if c.refs.Load() != 1 {
		return false
	}
	fn(&c.label, r.a.Slice())
	return true
}

func (r *FatArc[L, E]) IsNil() bool { return r.a.IsNil() }

func (r *FatArc[L, E]) Len() int { return r.a.Len() }

func (r *FatArc[L, E]) Label() L { return r.a.Label().label }

func (r *FatArc[L, E]) At(i int) E { return r.a.At(i) }

func (r *FatArc[L, E]) Values() []E { return slices.Clone(r.a.Slice()) }

func (r *FatArc[L, E]) StrongCount() uint64 { return r.a.Label().refs.Load() }
