// SPDX-License-Identifier: AGPL-3.0-only

package naiverc

import (
	"slices"

	"github.com/grafana/heaparray/pkg/heaparray"
)

// ThinRc is a counted handle to an array, one word wide.
type ThinRc[L, E any] struct {
	a heaparray.ThinPtrArray[counted[L], E]
}

// NewThinRc allocates an array of n elements initialised by init, and returns
// the first handle to it.
func NewThinRc[L, E any](label L, n int, init func(label *L, i int) E) ThinRc[L, E] {
	return ThinRc[L, E]{a: heaparray.NewThin(newCounted(label), n, labelInit(countedLabel[L], init))}
}

// NewThinRcFilled allocates an array of n copies of value.
func NewThinRcFilled[L, E any](label L, n int, value E) ThinRc[L, E] {
	return ThinRc[L, E]{a: heaparray.NewThinFilled(newCounted(label), n, value)}
}

// Clone returns a new handle to the same array. Cloning a released handle
// returns a released handle.
func (r *ThinRc[L, E]) Clone() ThinRc[L, E] {
	if r.a.IsNil() {
		return ThinRc[L, E]{}
	}
	r.a.Label().inc()
	return ThinRc[L, E]{a: r.a}
}

// Release gives up this handle. The array is destructed when the last handle
// is released. Releasing a handle more than once is a no-op.
func (r *ThinRc[L, E]) Release() {
	if r.a.IsNil() {
		return
	}
	if r.a.Label().dec() {
		r.a.Free()
		return
	}
	r.a = heaparray.ThinPtrArray[counted[L], E]{}
}

// Mutate calls fn with the label and the elements if this is the only handle
// to the array, and reports whether it did.
func (r *ThinRc[L, E]) Mutate(fn func(label *L, elems []E)) bool {
	c := r.a.Label()
	if c.refs != 1 {
		return false
	}
	fn(&c.label, r.a.Slice())
	return true
}

func (r *ThinRc[L, E]) IsNil() bool { return r.a.IsNil() }

func (r *ThinRc[L, E]) Len() int { return r.a.Len() }

// Label returns a copy of the label.
func (r *ThinRc[L, E]) Label() L { return r.a.Label().label }

// At returns a copy of the element at index i.
func (r *ThinRc[L, E]) At(i int) E { return r.a.At(i) }

// Values returns a copy of the elements.
func (r *ThinRc[L, E]) Values() []E { return slices.Clone(r.a.Slice()) }

// StrongCount returns the number of handles to the array.
func (r *ThinRc[L, E]) StrongCount() uint64 { return r.a.Label().refs }

// FatRc is a counted handle to an array that keeps a copy of its length.
type FatRc[L, E any] struct {
	a heaparray.FatPtrArray[counted[L], E]
}

// NewFatRc allocates an array of n elements initialised by init, and returns
// the first handle to it.
func NewFatRc[L, E any](label L, n int, init func(label *L, i int) E) FatRc[L, E] {
	return FatRc[L, E]{a: heaparray.NewFat(newCounted(label), n, labelInit(countedLabel[L], init))}
}

// NewFatRcFilled allocates an array of n copies of value.
func NewFatRcFilled[L, E any](label L, n int, value E) FatRc[L, E] {
	return FatRc[L, E]{a: heaparray.NewFatFilled(newCounted(label), n, value)}
}

// Clone returns a new handle to the same array. Cloning a released handle
// returns a released handle.
func (r *FatRc[L, E]) Clone() FatRc[L, E] {
	if r.a.IsNil() {
		return FatRc[L, E]{}
	}
	r.a.Label().inc()
	return FatRc[L, E]{a: r.a}
}

// Release gives up this handle. The array is destructed when the last handle
// is released. Releasing a handle more than once is a no-op.
func (r *FatRc[L, E]) Release() {
	if r.a.IsNil() {
		return
	}
	if r.a.Label().dec() {
		r.a.Free()
		return
	}
	r.a = heaparray.FatPtrArray[counted[L], E]{}
}

// Mutate calls fn with the label and the elements if this is the only handle
// to the array, and reports whether it did.
func (r *FatRc[L, E]) Mutate(fn func(label *L, elems []E)) bool {
	c := r.a.Label()
	if c.refs != 1 {
		return false
	}
	fn(&c.label, r.a.Slice())
	return true
}

func (r *FatRc[L, E]) IsNil() bool { return r.a.IsNil() }

func (r *FatRc[L, E]) Len() int { return r.a.Len() }

func (r *FatRc[L, E]) Label() L { return r.a.Label().label }

func (r *FatRc[L, E]) At(i int) E { return r.a.At(i) }

func (r *FatRc[L, E]) Values() []E { return slices.Clone(r.a.Slice()) }

func (r *FatRc[L, E]) StrongCount() uint64 { return r.a.Label().refs }
