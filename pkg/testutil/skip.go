// Package testutil provides small helpers shared across test suites.
package testutil

import "testing"

// SkipIfShort skips the test if running in short mode. Property-based tests
// use it so `go test -short` stays fast.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping slow test in short mode")
	}
}
