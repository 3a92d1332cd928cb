// SPDX-License-Identifier: AGPL-3.0-only

//go:build !heaparray_unchecked

package memblock

// Profile is the check profile this binary was compiled with. Build with
// -tags heaparray_unchecked to remove every check.
const Profile = Checked
