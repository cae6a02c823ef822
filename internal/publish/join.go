package publish

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// JoinPolicy decides how a batch of concurrent release writes is joined.
type JoinPolicy int

const (
	// JoinAbortOnFirst fails the batch with the first error and cancels the
	// context of the writes still running. Writes that already succeeded
	// stay done.
	JoinAbortOnFirst JoinPolicy = iota
	// JoinCollectAll lets every write finish and returns all failures joined.
	JoinCollectAll
)

// String returns the policy name.
func (p JoinPolicy) String() string {
	switch p {
	case JoinAbortOnFirst:
		return "abort-on-first"
	case JoinCollectAll:
		return "collect-all"
	default:
		return "unknown"
	}
}

// fanOut runs fn for 0..n-1 concurrently and joins the results per policy.
func fanOut(ctx context.Context, policy JoinPolicy, n int, fn func(ctx context.Context, i int) error) error {
	if policy == JoinCollectAll {
		errs := make([]error, n)
		var g errgroup.Group
		for i := range n {
			g.Go(func() error {
				errs[i] = fn(ctx, i)
				return nil
			})
		}
		_ = g.Wait()
		return errors.Join(errs...)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error { return fn(gctx, i) })
	}
	return g.Wait()
}
