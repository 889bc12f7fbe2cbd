package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/queue"
)

// A task left in the processing set past its visibility deadline must
// come back to the ready queue for another worker to claim.
func TestVisibilityTimeoutRequeue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()

	// simulate a crashed worker: a claimed task whose deadline passed
	msg := map[string]any{
		"kind":         "webhook",
		"payload":      []byte("payload"),
		"attempt":      1,
		"max_attempts": 3,
		"available_at": time.Now().Add(-time.Minute).UnixNano(),
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	deadline := float64(time.Now().Add(-time.Second).UnixNano())
	require.NoError(t, client.ZAdd(ctx, "vis:webhook:processing", redis.Z{Score: deadline, Member: raw}).Err())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	processed := make(chan []byte, 1)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "vis",
		Kind:              "webhook",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         10 * time.Millisecond,
		Handler: func(_ context.Context, task queue.Task) error {
			processed <- task.Payload
			cancel()
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(runCtx)
		close(done)
	}()

	select {
	case payload := <-processed:
		require.Equal(t, []byte("payload"), payload)
	case <-time.After(3 * time.Second):
		t.Fatal("expired task was never redelivered")
	}
	<-done

	depth, err := client.ZCard(ctx, "vis:webhook:processing").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), depth)
}
