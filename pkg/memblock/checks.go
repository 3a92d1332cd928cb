// SPDX-License-Identifier: AGPL-3.0-only

package memblock

import "strings"

// Checks is a set of internal consistency checks that have been switched off.
// The zero value keeps every check enabled.
type Checks uint8

const (
	// SkipLayoutCheck disables validation of the computed block layout:
	// power of two alignments, the maximum block size and, for the heap
	// allocator, agreement between the computed and the runtime field offsets.
	SkipLayoutCheck Checks = 1 << iota
	// SkipPointerCheck disables validation that block handles are non-nil
	// before they are dereferenced, and that off-heap allocators are only
	// handed pointer-free types.
	SkipPointerCheck
	// SkipSizeCheck disables overflow detection in the length and size
	// arithmetic of the layout computation and element addressing.
	SkipSizeCheck
	// SkipIndexCheck disables bounds checks on pointer-array element access.
	SkipIndexCheck
	// SkipCountOverflowCheck disables the overflow check on strong count increments.
	SkipCountOverflowCheck

	// Checked is the default profile.
	Checked Checks = 0
	// Unchecked removes every check. Conditions that would have been
	// reported become undefined behaviour.
	Unchecked = SkipLayoutCheck | SkipPointerCheck | SkipSizeCheck | SkipIndexCheck | SkipCountOverflowCheck
)

// Enabled reports whether check is still performed under c.
func (c Checks) Enabled(check Checks) bool {
	return c&check == 0
}

func (c Checks) String() string {
	switch c {
	case Checked:
		return "checked"
	case Unchecked:
		return "unchecked"
	}

	var skipped []string
	for _, s := range []struct {
		check Checks
		name  string
	}{
		{SkipLayoutCheck, "layout"},
		{SkipPointerCheck, "pointer"},
		{SkipSizeCheck, "size"},
		{SkipIndexCheck, "index"},
		{SkipCountOverflowCheck, "count-overflow"},
	} {
		if !c.Enabled(s.check) {
			skipped = append(skipped, s.name)
		}
	}
	return "skip(" + strings.Join(skipped, ",") + ")"
}
