// SPDX-License-Identifier: AGPL-3.0-only

package test

import (
	"fmt"
	"os"
	"testing"

	"go.uber.org/goleak"

	"github.com/grafana/heaparray/pkg/alloc"
	"github.com/grafana/heaparray/pkg/memblock"
)

func VerifyNoLeak(t testing.TB) {
	// Run it as a cleanup function so that "last added, first called" ordering execution is guaranteed.
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})
}

// Allocator is the allocator installed by InstallInstrumentedAllocator. It is
// nil until then.
var Allocator *alloc.Instrumented

// InstallInstrumentedAllocator installs an instrumented heap allocator, so
// that tests can check the number of live blocks. It must be called before
// any block is allocated, typically from TestMain.
func InstallInstrumentedAllocator() *alloc.Instrumented {
	a := alloc.NewInstrumented(memblock.HeapAllocator(), nil)
	if err := memblock.SetAllocator(a); err != nil {
		panic(err)
	}
	Allocator = a
	return a
}

// VerifyTestMain runs the tests of a package with the instrumented allocator
// installed. It fails the run if blocks are still live or goroutines are
// still running once every test has completed.
func VerifyTestMain(m *testing.M) {
	a := InstallInstrumentedAllocator()
	code := m.Run()
	if code == 0 {
		if live := a.LiveBlocks(); live != 0 {
			fmt.Fprintf(os.Stderr, "%d blocks are still allocated after all tests ran (%d bytes)\n", live, a.LiveBytes())
			code = 1
		}
	}
	if code == 0 {
		if err := goleak.Find(); err != nil {
			fmt.Fprintf(os.Stderr, "found unexpected goroutines: %v\n", err)
			code = 1
		}
	}
	os.Exit(code)
}

// RequireNoLiveBlocks checks that every block allocated while the test ran
// has been deallocated by the time the test ends.
func RequireNoLiveBlocks(t testing.TB) {
	if Allocator == nil {
		t.Fatal("instrumented allocator not installed")
	}
	before := Allocator.LiveBlocks()
	t.Cleanup(func() {
		if after := Allocator.LiveBlocks(); after != before {
			t.Errorf("live blocks changed from %d to %d", before, after)
		}
	})
}
