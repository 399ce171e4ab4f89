//go:build !devoverride

package orchestrate

// skipPinningAllowed always reports false outside a devoverride build: a
// production binary has no code path that reads ALLOW_SKIP_PINNING.
func skipPinningAllowed() bool {
	return false
}
