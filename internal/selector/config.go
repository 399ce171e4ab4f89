package selector

import "time"

// Config holds the tunable A/B/C thresholds. Operators override these via
// the run's CUE config document; DefaultConfig supplies the spec defaults.
type Config struct {
	// VolumeThreshold (T_A) is the upload size, in bytes, at or above which
	// a single event flags its signature A.
	VolumeThreshold int64

	// BurstWindow is the sliding window width for the B burst check.
	BurstWindow time.Duration

	// BurstWriteThreshold is the minimum write-event count within a
	// BurstWindow, keyed by (user, domain), to qualify for B.
	BurstWriteThreshold int

	// DailyCumulativeThreshold is the minimum summed upload bytes within a
	// single UTC day, keyed by (user, domain), to qualify for B.
	DailyCumulativeThreshold int64

	// RiskCategoryHints are destination category hints that qualify a
	// signature for B when paired with at least one write event.
	RiskCategoryHints []string

	// CoverageSampleRate is the uniform sampling probability applied to
	// events that are not flagged A or B and whose bytes_sent is below
	// VolumeThreshold. Zero is a valid configuration: no signature is
	// silently dropped, every exclusion is counted.
	CoverageSampleRate float64
}

// DefaultConfig returns the spec's default thresholds.
func DefaultConfig() Config {
	return Config{
		VolumeThreshold:          1 << 20, // 1 MiB
		BurstWindow:              5 * time.Minute,
		BurstWriteThreshold:      20,
		DailyCumulativeThreshold: 20 * (1 << 20), // 20 MiB
		RiskCategoryHints:        []string{"AI", "GenAI", "Unknown"},
		CoverageSampleRate:       0.02,
	}
}

func (c Config) isRiskyCategory(hint string) bool {
	for _, h := range c.RiskCategoryHints {
		if h == hint {
			return true
		}
	}
	return false
}
