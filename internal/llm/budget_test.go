package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBudget_ReserveWithinBurstSucceeds(t *testing.T) {
	b := NewBudget(100, 1) // plenty of burst capacity
	ok := b.Reserve(context.Background(), 10, time.Second)
	assert.True(t, ok)
}

func TestBudget_ReserveBeyondBurstFails(t *testing.T) {
	b := NewBudget(0.001, 1) // tiny bucket
	ok := b.Reserve(context.Background(), 1_000_000_000, time.Millisecond)
	assert.False(t, ok)
}

func TestBudget_ReserveRespectsContextCancellation(t *testing.T) {
	b := NewBudget(0.001, 1)
	// Drain the bucket first so any further reservation must wait.
	b.Reserve(context.Background(), int(b.limiter.Burst()), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := b.Reserve(ctx, 1, time.Minute)
	assert.False(t, ok)
}
