// Package retry wraps fallible storage operations with bounded retry.
//
// This policy covers transient I/O failure on a single persistence step.
// It is deliberately distinct from the orchestrator's per-intent processing
// counter: one policy never satisfies the other's contract.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy bounds a retried operation.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy matches the storage retry budget: three attempts with a
// fixed 200ms pause between them.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: 200 * time.Millisecond}
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Do invokes op, retrying on error up to policy.Attempts with policy.Delay
// between attempts. Each retry is logged with the attempt number and the
// failure cause. After the final attempt fails the error is propagated
// unchanged to the caller. Context cancellation aborts the inter-attempt
// wait and returns the context error.
func Do(ctx context.Context, log *zap.Logger, label string, policy Policy, op func() error) error {
	policy = policy.normalized()

	var err error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == policy.Attempts {
			break
		}
		log.Warn("retrying storage action",
			zap.String("stage", label),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-time.After(policy.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
