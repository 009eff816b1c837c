package model

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimited paces calls to an underlying Model. Waiting counts against the
// caller's deadline, so a participant starved by its limiter times out like
// any other slow call.
type rateLimited struct {
	next    Model
	limiter *rate.Limiter
}

// NewRateLimited wraps m so every Generate waits on limiter first.
// A nil limiter returns m unchanged.
func NewRateLimited(m Model, limiter *rate.Limiter) Model {
	if limiter == nil {
		return m
	}
	return &rateLimited{next: m, limiter: limiter}
}

// PerMinute builds a limiter allowing n requests per minute with a burst of 1.
// n <= 0 yields nil (unlimited).
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
}

func (r *rateLimited) Generate(ctx context.Context, req CompletionRequest) (Completion, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return Completion{}, Wrap(r.next.Info().Provider, ctx.Err())
		}
		return Completion{}, &Error{Provider: r.next.Info().Provider, Kind: KindRateLimit, Err: err}
	}
	return r.next.Generate(ctx, req)
}

func (r *rateLimited) Info() Info { return r.next.Info() }
