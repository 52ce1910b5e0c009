package pverify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windlass-engine/propeller/internal/ptest"
	"github.com/windlass-engine/propeller/internal/pverify"
)

func TestPool_runsSubmittedJobs(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pverify.NewPool(ctx, 2)

	results := make(chan int, 4)
	for i := range 4 {
		require.NoError(t, p.Submit(ctx, func() {
			results <- i
		}))
	}

	seen := make(map[int]bool)
	for range 4 {
		seen[ptest.ReceiveSoon(t, results)] = true
	}
	require.Len(t, seen, 4)

	cancel()
	p.Wait()
}

func TestPool_submitFailsAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	p := pverify.NewPool(ctx, 1)
	cancel()
	p.Wait()

	err := p.Submit(ctx, func() {})
	require.Error(t, err)
}
