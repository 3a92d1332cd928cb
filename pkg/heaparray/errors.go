// SPDX-License-Identifier: AGPL-3.0-only

package heaparray

import (
	"github.com/pkg/errors"

	"github.com/grafana/heaparray/pkg/memblock"
)

// ErrIndexOutOfRange is the panic value, wrapped, of element accesses beyond
// the length of an array.
var ErrIndexOutOfRange = errors.New("index out of range")

func checkIndex(i, length int) {
	if memblock.Profile.Enabled(memblock.SkipIndexCheck) && uint(i) >= uint(length) {
		panic(errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", i, length))
	}
}
