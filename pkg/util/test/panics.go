// SPDX-License-Identifier: AGPL-3.0-only

package test

import (
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// RequirePanicsWithErrorIs requires f to panic with an error matching target.
func RequirePanicsWithErrorIs(t require.TestingT, target error, f func()) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}

	var recovered interface{}
	func() {
		defer func() {
			recovered = recover()
		}()
		f()
	}()

	require.NotNilf(t, recovered, "expected a panic with %v", target)
	err, ok := recovered.(error)
	require.Truef(t, ok, "expected the panic value to be an error, got %T: %v", recovered, recovered)
	require.Truef(t, errors.Is(err, target), "expected panic with %v, got %v", target, err)
}
