package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPoolRunsEveryItemInOrder(t *testing.T) {
	t.Parallel()

	pool := New(3, func(_ context.Context, n int) int { return n * n }, zap.NewNop())
	results, err := pool.Run(context.Background(), []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, res := range results {
		require.True(t, res.Started)
		require.Equal(t, i+1, res.Item)
		require.Equal(t, (i+1)*(i+1), res.Value)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var active, peak int32
	task := func(_ context.Context, _ int) struct{} {
		cur := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return struct{}{}
	}
	pool := New(2, task, nil)
	_, err := pool.Run(context.Background(), make([]int, 8))
	require.NoError(t, err)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPoolIsolatesPanics(t *testing.T) {
	t.Parallel()

	pool := New(2, func(_ context.Context, s string) string {
		if s == "boom" {
			panic("exploded")
		}
		return "ok:" + s
	}, zap.NewNop())
	results, err := pool.Run(context.Background(), []string{"sedan", "boom", "suv"})
	require.NoError(t, err)
	require.Equal(t, "ok:sedan", results[0].Value)
	require.True(t, results[1].Started)
	require.Equal(t, "", results[1].Value)
	require.Equal(t, "ok:suv", results[2].Value)
}

func TestPoolStopsHandingOutWorkAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	pool := New(1, func(ctx context.Context, n int) int {
		once.Do(cancel)
		<-ctx.Done()
		return n
	}, zap.NewNop())

	done := make(chan []Result[int, int], 1)
	go func() {
		results, _ := pool.Run(ctx, []int{1, 2, 3})
		done <- results
	}()

	select {
	case results := <-done:
		require.True(t, results[0].Started)
		require.False(t, results[1].Started)
		require.False(t, results[2].Started)
	case <-time.After(time.Second):
		t.Fatal("pool did not return after cancellation")
	}
}

func TestPoolEmptyInput(t *testing.T) {
	t.Parallel()

	pool := New(0, func(_ context.Context, n int) int { return n }, nil)
	results, err := pool.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, results)
}
