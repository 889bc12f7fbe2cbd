package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	streamKey = "pos:events"

	// keep a bounded window of recent events; consumers needing the
	// full history should tail deliveries instead
	maxStreamLen = 10000
)

// RedisStore appends events to a capped Redis list, newest first.
type RedisStore struct {
	R   *redis.Client
	Now func() time.Time
}

// InsertEvent assigns identity and appends the event.
func (s *RedisStore) InsertEvent(ctx context.Context, topic, aggregateID string, payload []byte) (Event, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ev := Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return Event{}, err
	}
	pipe := s.R.TxPipeline()
	pipe.LPush(ctx, streamKey, data)
	pipe.LTrim(ctx, streamKey, 0, maxStreamLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Recent returns up to limit most recent events, newest first.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := s.R.LRange(ctx, streamKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raws))
	for _, raw := range raws {
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
