// SPDX-License-Identifier: AGPL-3.0-only

//go:build unix

package alloc

import "golang.org/x/sys/unix"

// protectNone makes every access to region fault.
func protectNone(region []byte) error {
	return unix.Mprotect(region, unix.PROT_NONE)
}
