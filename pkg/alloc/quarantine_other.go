// SPDX-License-Identifier: AGPL-3.0-only

//go:build !unix

package alloc

import "github.com/pkg/errors"

func protectNone([]byte) error {
	return errors.New("quarantining freed blocks is not supported on this platform")
}
