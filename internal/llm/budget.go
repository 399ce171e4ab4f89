package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Budget is the daily token-bucket spend guard (§4.6/§5): a batch reserves
// its estimated token cost before dispatch; if the bucket cannot absorb it,
// the caller reduces the batch (dropping C candidates first, see
// BuildBatches) or defers to the next run rather than blocking other
// workers.
type Budget struct {
	limiter *rate.Limiter
}

// NewBudget builds a Budget from a daily USD allowance and a $/1K-token
// rate, converted to an estimated token-per-second refill rate so the
// bucket drains evenly across a 24h run window.
func NewBudget(dailyBudgetUSD, usdPer1KTokens float64) *Budget {
	if usdPer1KTokens <= 0 {
		usdPer1KTokens = 1
	}
	totalTokens := (dailyBudgetUSD / usdPer1KTokens) * 1000
	perSecond := totalTokens / (24 * 60 * 60)
	burst := int(totalTokens)
	if burst < 1 {
		burst = 1
	}
	return &Budget{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Reserve charges estimatedTokens against the budget. It returns ok=false
// without mutating the bucket when the charge cannot be satisfied at all
// (estimatedTokens exceeds burst capacity) or would require waiting past
// maxWait — in either case the caller should shrink the batch and retry
// with a smaller estimate, or defer.
func (b *Budget) Reserve(ctx context.Context, estimatedTokens int, maxWait time.Duration) (ok bool) {
	r := b.limiter.ReserveN(time.Now(), estimatedTokens)
	if !r.OK() {
		return false
	}
	delay := r.Delay()
	if delay > maxWait {
		r.Cancel()
		return false
	}
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		r.Cancel()
		return false
	}
}
