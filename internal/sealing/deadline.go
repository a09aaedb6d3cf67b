package sealing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Await runs fn with a deadline of d and always returns by then, even if fn
// ignores its context. A missed deadline is reported as ErrOperationTimeout;
// cancellation of the parent ctx is reported as ctx.Err().
// A non-positive d runs fn directly.
func Await[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		ch <- result{v, err}
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %s after %s", ErrOperationTimeout, op, d)
		}
		return r.v, r.err
	case <-cctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %s after %s", ErrOperationTimeout, op, d)
	}
}

// WithDeadline bounds every call on p to d.
func WithDeadline(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &deadlineProvider{inner: p, d: d}
}

type deadlineProvider struct {
	inner Provider
	d     time.Duration
}

func (p *deadlineProvider) Seal(ctx context.Context, v uint32) (Handle, error) {
	return Await(ctx, p.d, "seal", func(ctx context.Context) (Handle, error) {
		return p.inner.Seal(ctx, v)
	})
}

func (p *deadlineProvider) Unseal(ctx context.Context, h Handle) (uint32, error) {
	return Await(ctx, p.d, "unseal", func(ctx context.Context) (uint32, error) {
		return p.inner.Unseal(ctx, h)
	})
}

func (p *deadlineProvider) Authorize(ctx context.Context, identity string, opts AuthOptions) (Permit, error) {
	return Await(ctx, p.d, "authorize", func(ctx context.Context) (Permit, error) {
		return p.inner.Authorize(ctx, identity, opts)
	})
}
