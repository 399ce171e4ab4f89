package orchestrate

import (
	"fmt"
	"os"
)

// skipPinningEnvVar is the development override gate named in spec.md
// §4.8. Reading it is only compiled into devoverride builds (see
// pinning_devoverride.go / pinning_prod.go) so a production binary has no
// code path that can read it at all.
const skipPinningEnvVar = "ALLOW_SKIP_PINNING"

// PinnedArtifact is the taxonomy adapter's resolved identity for the
// artifact a run actually loaded.
type PinnedArtifact struct {
	Version string
	Commit  string
	DirHash string
}

// ExpectedArtifact is the compiled-in pin a run must match.
type ExpectedArtifact struct {
	Version string
	Commit  string
	DirHash string
}

// ErrPinMismatch is returned by EnforcePinning when the resolved taxonomy
// artifact does not match the compiled-in pin and no override is active.
type ErrPinMismatch struct {
	Resolved PinnedArtifact
	Expected ExpectedArtifact
}

func (e *ErrPinMismatch) Error() string {
	return fmt.Sprintf("taxonomy artifact pin mismatch: resolved %+v, expected %+v", e.Resolved, e.Expected)
}

// EnforcePinning compares the resolved taxonomy artifact against the
// compiled-in expectation. A mismatch is fatal unless skipPinningAllowed
// reports the development override is active — which is hard-wired to
// false in production builds (pinning_prod.go) and only reads the
// environment variable in devoverride builds (pinning_devoverride.go).
func EnforcePinning(resolved PinnedArtifact, expected ExpectedArtifact) error {
	if resolved.Version == expected.Version && resolved.Commit == expected.Commit && resolved.DirHash == expected.DirHash {
		return nil
	}
	if skipPinningAllowed() {
		return nil
	}
	return &ErrPinMismatch{Resolved: resolved, Expected: expected}
}

// skipPinningAllowedFromEnv is the override check shared by the
// devoverride build; factored out so the build-tagged files stay a
// one-line dispatch.
func skipPinningAllowedFromEnv() bool {
	return os.Getenv(skipPinningEnvVar) != ""
}
