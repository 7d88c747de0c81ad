// ABOUTME: Token-bucket rate limiting for capabilities
// ABOUTME: Keeps N concurrent slots from bursting past a provider's request rate

package capability

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited wraps a capability with a rate limiter.
type Limited struct {
	next    Capability
	limiter *rate.Limiter
}

// NewLimited limits next to perSecond calls with the given burst.
// A non-positive rate returns next unchanged.
func NewLimited(next Capability, perSecond float64, burst int) Capability {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Generate waits for a token and then calls the wrapped capability.
func (l *Limited) Generate(ctx context.Context, prompt string, p Params) ([]string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if _, ok := ctx.Deadline(); ok {
			return nil, fmt.Errorf("rate limit wait: %w", context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return l.next.Generate(ctx, prompt, p)
}
