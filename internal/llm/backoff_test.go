package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffFor_GrowsWithAttempt(t *testing.T) {
	d0 := backoffFor(0, "")
	d3 := backoffFor(3, "")
	assert.Greater(t, d3, d0)
}

func TestBackoffFor_HonorsRetryAfterHintWhenLarger(t *testing.T) {
	d := backoffFor(0, "10m")
	assert.GreaterOrEqual(t, d, 10*time.Minute)
}

func TestBackoffFor_IgnoresHintSmallerThanComputedBackoff(t *testing.T) {
	d := backoffFor(5, "1ms")
	assert.Greater(t, d, time.Millisecond)
}

func TestParseRetryAfter_Formats(t *testing.T) {
	d, ok := parseRetryAfter("30s")
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	d, ok = parseRetryAfter("45")
	assert.True(t, ok)
	assert.Equal(t, 45*time.Second, d)

	_, ok = parseRetryAfter("")
	assert.False(t, ok)

	_, ok = parseRetryAfter("garbage")
	assert.False(t, ok)
}
