package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/queue"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

func init() {
	obs.MustRegisterDomainMetrics("notify_test", prometheus.NewRegistry())
}

func testEvent() events.Event {
	return events.Event{
		ID:          "ev-1",
		Topic:       events.TopicSaleCompleted,
		AggregateID: "TXN1",
		Payload:     json.RawMessage(`{"transactionId":"TXN1"}`),
		OccurredAt:  time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestScheduleEnqueuesPerEndpoint(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := &Dispatcher{
		Enabled: true,
		Endpoints: []Endpoint{
			{URL: "http://localhost/hook-a", Secret: "sa"},
			{URL: "http://localhost/hook-b", Secret: "sb"},
		},
		Queue: queue.Enqueuer{R: client, Prefix: "wh"},
	}
	ctx := context.Background()
	require.NoError(t, d.Schedule(ctx, testEvent()))

	depth, err := client.ZCard(ctx, "wh:queue:"+WebhookDeliveryTask).Result()
	require.NoError(t, err)
	require.EqualValues(t, 2, depth)

	// rescheduling the same event dedupes on the idempotency key
	require.NoError(t, d.Schedule(ctx, testEvent()))
	depth, err = client.ZCard(ctx, "wh:queue:"+WebhookDeliveryTask).Result()
	require.NoError(t, err)
	require.EqualValues(t, 2, depth)
}

func TestScheduleDisabledIsNoop(t *testing.T) {
	d := &Dispatcher{Enabled: false, Endpoints: []Endpoint{{URL: "http://localhost/x"}}}
	require.NoError(t, d.Schedule(context.Background(), testEvent()))
}

func TestDeliverSignsAndPosts(t *testing.T) {
	var gotSig, gotEventID, gotTS string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotEventID = r.Header.Get("X-Event-ID")
		gotTS = r.Header.Get("X-Timestamp")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d := &Dispatcher{Enabled: true, HTTP: &resilience.HTTPClient{Client: srv.Client()}}
	job, err := json.Marshal(deliveryJob{URL: srv.URL, Secret: "topsecret", Event: testEvent()})
	require.NoError(t, err)

	require.NoError(t, d.Deliver(context.Background(), job))
	require.Equal(t, "ev-1", gotEventID)
	require.NotEmpty(t, gotSig)

	ts, err := strconv.ParseInt(gotTS, 10, 64)
	require.NoError(t, err)
	require.Equal(t, ComputeSignature("topsecret", ts, "ev-1", gotBody), gotSig)
}

func TestDeliverFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	d := &Dispatcher{Enabled: true, HTTP: &resilience.HTTPClient{Client: srv.Client()}}
	job, err := json.Marshal(deliveryJob{URL: srv.URL, Secret: "s", Event: testEvent()})
	require.NoError(t, err)
	require.Error(t, d.Deliver(context.Background(), job))
}

func TestDeliverDropsMalformedPayload(t *testing.T) {
	d := &Dispatcher{Enabled: true}
	require.NoError(t, d.Deliver(context.Background(), []byte("not-json")))
}

func TestReplayProtectorSuppressesDuplicates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := &Dispatcher{
		Enabled:   true,
		HTTP:      &resilience.HTTPClient{Client: srv.Client()},
		Replay:    RedisReplayProtector{Client: client},
		ReplayTTL: time.Minute,
	}
	job, err := json.Marshal(deliveryJob{URL: srv.URL, Secret: "s", Event: testEvent()})
	require.NoError(t, err)

	require.NoError(t, d.Deliver(context.Background(), job))
	require.NoError(t, d.Deliver(context.Background(), job))
	require.Equal(t, 1, calls)
}

type denyAllReplay struct{}

func (denyAllReplay) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}

func (denyAllReplay) Release(ctx context.Context, key string) error { return nil }

var _ ReplayProtector = denyAllReplay{}

func TestDispatcherAcceptsCustomReplayProtector(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d := &Dispatcher{
		Enabled:   true,
		HTTP:      &resilience.HTTPClient{Client: srv.Client()},
		Replay:    denyAllReplay{},
		ReplayTTL: time.Minute,
	}
	job, err := json.Marshal(deliveryJob{URL: srv.URL, Secret: "s", Event: testEvent()})
	require.NoError(t, err)

	require.NoError(t, d.Deliver(context.Background(), job))
	require.Zero(t, calls)
}

func TestValidateURL(t *testing.T) {
	require.NoError(t, validateURL("https://example.com/hook"))
	require.NoError(t, validateURL("http://localhost:9999/hook"))
	require.Error(t, validateURL("http://example.com/hook"))
	require.Error(t, validateURL("ftp://example.com/hook"))
	require.Error(t, validateURL("https://"))
}
