package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DLQ inspects and drains a kind's dead-letter list.
type DLQ struct {
	R      *redis.Client
	Prefix string
}

// DLQItem is a decoded dead-letter entry.
type DLQItem struct {
	Kind           string `json:"kind"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Payload        []byte `json:"payload"`
	Attempts       int    `json:"attempts"`
}

func (d DLQ) key(kind string) string {
	return Worker{Prefix: d.Prefix}.dlqKey(kind)
}

// List returns up to limit dead letters for the kind, newest first.
func (d DLQ) List(ctx context.Context, kind string, limit int) ([]DLQItem, error) {
	if d.R == nil {
		return nil, errors.New("queue: redis client not configured")
	}
	kind = sanitizeKind(kind)
	if kind == "" {
		return nil, errors.New("queue: kind is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	raws, err := d.R.LRange(ctx, d.key(kind), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	items := make([]DLQItem, 0, len(raws))
	for _, raw := range raws {
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		items = append(items, DLQItem{
			Kind:           msg.Kind,
			IdempotencyKey: msg.Key,
			Payload:        msg.Payload,
			Attempts:       msg.Attempt,
		})
	}
	return items, nil
}

// Size reports the number of dead letters for the kind.
func (d DLQ) Size(ctx context.Context, kind string) (int64, error) {
	if d.R == nil {
		return 0, errors.New("queue: redis client not configured")
	}
	kind = sanitizeKind(kind)
	if kind == "" {
		return 0, errors.New("queue: kind is required")
	}
	return d.R.LLen(ctx, d.key(kind)).Result()
}

// Replay pops up to limit dead letters and re-enqueues them with a
// fresh attempt budget. It returns how many were replayed.
func (d DLQ) Replay(ctx context.Context, enq Enqueuer, kind string, limit int) (int, error) {
	if d.R == nil {
		return 0, errors.New("queue: redis client not configured")
	}
	kind = sanitizeKind(kind)
	if kind == "" {
		return 0, errors.New("queue: kind is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	replayed := 0
	for replayed < limit {
		raw, err := d.R.RPop(ctx, d.key(kind)).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return replayed, err
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		task := Task{
			Kind:           msg.Kind,
			Payload:        msg.Payload,
			IdempotencyKey: msg.Key,
			MaxAttempts:    msg.MaxAttempts,
			Delay:          time.Second,
		}
		if err := enq.Enqueue(ctx, task); err != nil {
			// put it back so nothing is lost
			_ = d.R.RPush(ctx, d.key(kind), raw).Err()
			return replayed, err
		}
		replayed++
	}
	if size, err := d.R.LLen(ctx, d.key(kind)).Result(); err == nil {
		QueueDLQSize.WithLabelValues(kind).Set(float64(size))
	}
	return replayed, nil
}

// Purge discards all dead letters for the kind.
func (d DLQ) Purge(ctx context.Context, kind string) error {
	if d.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind = sanitizeKind(kind)
	if kind == "" {
		return errors.New("queue: kind is required")
	}
	if err := d.R.Del(ctx, d.key(kind)).Err(); err != nil {
		return err
	}
	QueueDLQSize.WithLabelValues(kind).Set(0)
	return nil
}
