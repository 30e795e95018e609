// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package task_test

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sigil-dev/lineage/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchGatherCollectsAllResults(t *testing.T) {
	var b task.Batch[int]
	for i := 1; i <= 4; i++ {
		b.Add(func(ctx context.Context) (int, error) { return i * 10, nil })
	}

	got, err := b.Gather(context.Background())
	require.NoError(t, err)

	sort.Ints(got)
	assert.Equal(t, []int{10, 20, 30, 40}, got)
}

func TestBatchEmptyGatherReturnsImmediately(t *testing.T) {
	var b task.Batch[string]
	got, err := b.Gather(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBatchSingleFailurePropagatesUnwrapped(t *testing.T) {
	boom := errors.New("boom")

	var b task.Batch[int]
	b.Add(func(ctx context.Context) (int, error) { return 1, nil })
	b.Add(func(ctx context.Context) (int, error) { return 0, boom })

	_, err := b.Gather(context.Background())
	// Exactly one failure surfaces as-is, not wrapped in an aggregate.
	assert.Equal(t, boom, err)
}

func TestBatchMultipleFailuresAggregate(t *testing.T) {
	e1 := errors.New("first")
	e2 := errors.New("second")

	var b task.Batch[int]
	b.Add(func(ctx context.Context) (int, error) { return 0, e1 })
	b.Add(func(ctx context.Context) (int, error) { return 0, e2 })

	_, err := b.Gather(context.Background())
	require.Error(t, err)
	assert.NotEqual(t, e1, err)
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
}

func TestBatchFailureCancelsSlowTask(t *testing.T) {
	boom := errors.New("fast failure")
	var sawCancel atomic.Bool

	var b task.Batch[int]
	b.Add(func(ctx context.Context) (int, error) {
		select {
		case <-ctx.Done():
			sawCancel.Store(true)
			return 0, nil
		case <-time.After(30 * time.Second):
			return 0, errors.New("slow task was never cancelled")
		}
	})
	b.Add(func(ctx context.Context) (int, error) { return 0, boom })

	start := time.Now()
	_, err := b.Gather(context.Background())
	assert.Equal(t, boom, err)
	assert.True(t, sawCancel.Load(), "slow task must observe cancellation before Gather returns")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGoReturnsAwaitableHandle(t *testing.T) {
	f := task.Go(context.Background(), func(ctx context.Context) (string, error) {
		return "done", nil
	})

	v, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	// Await is idempotent once resolved.
	v, err = f.Await()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestGoPropagatesError(t *testing.T) {
	boom := errors.New("async boom")
	f := task.Go(context.Background(), func(ctx context.Context) (int, error) {
		return 0, boom
	})

	<-f.Done()
	_, err := f.Await()
	assert.Equal(t, boom, err)
}
