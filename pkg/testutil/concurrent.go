// Package testutil holds helpers shared by store and service tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"keystone/internal/sentinel"
)

// ConcurrentResult counts outcomes of parallel calls by store sentinel.
type ConcurrentResult struct {
	Successes  int32
	Duplicates int32
	NotFounds  int32
	Errors     int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Duplicates + r.NotFounds + r.Errors
}

// RunConcurrent calls fn from n goroutines released at the same moment.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	return RunConcurrentCtx(context.Background(), n, func(_ context.Context, idx int) error { return fn(idx) })
}

func RunConcurrentCtx(ctx context.Context, n int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	var (
		wg                               sync.WaitGroup
		successes, dups, notFounds, errs atomic.Int32
		start                            = make(chan struct{})
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := fn(ctx, i)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyExists):
				dups.Add(1)
			case errors.Is(err, sentinel.ErrNotFound):
				notFounds.Add(1)
			default:
				errs.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes:  successes.Load(),
		Duplicates: dups.Load(),
		NotFounds:  notFounds.Load(),
		Errors:     errs.Load(),
	}
}
