// SPDX-License-Identifier: AGPL-3.0-only

//go:build heaparray_unchecked

package memblock

// Profile is the check profile this binary was compiled with.
const Profile = Unchecked
