package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/queue"
)

func TestMoveToDLQAfterMaxAttempts(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	enq := queue.Enqueuer{R: client, Prefix: "dlq"}
	dlq := queue.DLQ{R: client, Prefix: "dlq"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := queue.Worker{
		R:                 client,
		Prefix:            "dlq",
		Kind:              "webhook",
		Concurrency:       1,
		VisibilityTimeout: 120 * time.Millisecond,
		RetryBase:         20 * time.Millisecond,
		Handler: func(context.Context, queue.Task) error {
			return errors.New("fail")
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{Kind: "webhook", Payload: []byte("body"), IdempotencyKey: "dlq1", MaxAttempts: 2}))

	require.Eventually(t, func() bool {
		n, err := dlq.Size(context.Background(), "webhook")
		return err == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)

	items, err := dlq.List(context.Background(), "webhook", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "webhook", items[0].Kind)
	require.Equal(t, "dlq1", items[0].IdempotencyKey)
	require.Equal(t, 2, items[0].Attempts)
	require.NotEmpty(t, items[0].Payload)

	cancel()
	<-done
}

func TestDLQReplayRequeuesTasks(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	enq := queue.Enqueuer{R: client, Prefix: "rp"}
	dlq := queue.DLQ{R: client, Prefix: "rp"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var failing atomic.Bool
	failing.Store(true)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "rp",
		Kind:              "webhook",
		Concurrency:       1,
		VisibilityTimeout: 120 * time.Millisecond,
		RetryBase:         10 * time.Millisecond,
		Handler: func(context.Context, queue.Task) error {
			if failing.Load() {
				return errors.New("down")
			}
			cancel()
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{Kind: "webhook", Payload: []byte("x"), MaxAttempts: 1}))
	require.Eventually(t, func() bool {
		n, _ := dlq.Size(context.Background(), "webhook")
		return n == 1
	}, 2*time.Second, 20*time.Millisecond)

	failing.Store(false)
	n, err := dlq.Replay(context.Background(), enq, "webhook", 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replayed task was never processed")
	}
	<-done

	n2, err := dlq.Size(context.Background(), "webhook")
	require.NoError(t, err)
	require.EqualValues(t, 0, n2)
}
