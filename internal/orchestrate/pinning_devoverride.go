//go:build devoverride

package orchestrate

// skipPinningAllowed reads ALLOW_SKIP_PINNING. Only compiled into builds
// that explicitly opt into the devoverride build tag — a production
// binary built without it never contains this code path.
func skipPinningAllowed() bool {
	return skipPinningAllowedFromEnv()
}
