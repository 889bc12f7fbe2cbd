package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/queue"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

// WebhookDeliveryTask is the queue kind used for webhook deliveries.
const WebhookDeliveryTask = "webhook-delivery"

// Endpoint is a webhook destination. All endpoints share the topics the
// register emits; the secret signs every payload.
type Endpoint struct {
	URL    string
	Secret string
}

// deliveryJob is the queued unit of work: one event to one endpoint.
type deliveryJob struct {
	URL     string       `json:"url"`
	Secret  string       `json:"secret"`
	Event   events.Event `json:"event"`
	EventID string       `json:"eventId"`
}

// Dispatcher fans emitted events out to webhook endpoints through the
// task queue. Scheduling enqueues; the queue worker calls Deliver, so
// retry, backoff and dead-lettering are the queue's concern.
type Dispatcher struct {
	Endpoints   []Endpoint
	Queue       queue.Enqueuer
	HTTP        *resilience.HTTPClient
	MaxAttempts int
	Enabled     bool
	Replay      ReplayProtector
	ReplayTTL   time.Duration
}

// Schedule enqueues one delivery per configured endpoint.
func (d *Dispatcher) Schedule(ctx context.Context, event events.Event) error {
	if d == nil || !d.Enabled || len(d.Endpoints) == 0 {
		return nil
	}
	if strings.TrimSpace(event.Topic) == "" {
		return nil
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	var joined error
	for i, ep := range d.Endpoints {
		job := deliveryJob{URL: ep.URL, Secret: ep.Secret, Event: event, EventID: event.ID}
		payload, err := json.Marshal(job)
		if err != nil {
			joined = errors.Join(joined, fmt.Errorf("encode delivery for %s: %w", ep.URL, err))
			continue
		}
		task := queue.Task{
			Kind:           WebhookDeliveryTask,
			Payload:        payload,
			IdempotencyKey: fmt.Sprintf("%s:%d", event.ID, i),
			MaxAttempts:    maxAttempts,
		}
		if err := d.Queue.Enqueue(ctx, task); err != nil {
			joined = errors.Join(joined, fmt.Errorf("enqueue delivery for %s: %w", ep.URL, err))
		}
	}
	return joined
}

// Deliver executes one queued delivery. A non-2xx response or transport
// error returns an error so the queue retries with backoff and
// eventually dead-letters.
func (d *Dispatcher) Deliver(ctx context.Context, payload []byte) error {
	var job deliveryJob
	if err := json.Unmarshal(payload, &job); err != nil {
		// malformed payloads can never succeed, drop without retry
		return nil
	}

	if obs.WebhookDispatchAttempts != nil {
		obs.WebhookDispatchAttempts.Inc()
	}
	start := time.Now()
	status, err := d.post(ctx, job)
	result := "delivered"
	if err != nil || status < 200 || status >= 300 {
		result = "failed"
		if err == nil {
			err = fmt.Errorf("webhook: endpoint returned status %d", status)
		}
	}
	if obs.WebhookDeliveriesTotal != nil {
		obs.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
	if obs.WebhookAttemptLatency != nil {
		obs.WebhookAttemptLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}
	return err
}

func (d *Dispatcher) post(ctx context.Context, job deliveryJob) (int, error) {
	if d.HTTP == nil {
		d.HTTP = &resilience.HTTPClient{Client: HttpClient(5000, false)}
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.url", job.URL),
		attribute.String("webhook.topic", job.Event.Topic),
	)

	if err := validateURL(job.URL); err != nil {
		span.RecordError(err)
		return 0, err
	}

	if d.Replay != nil && d.ReplayTTL > 0 {
		ok, err := d.Replay.Acquire(ctx, replayKey(job.URL, job.Event.ID), d.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, nil
		}
	}

	body, err := json.Marshal(struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{
		EventID:    job.Event.ID,
		Topic:      job.Event.Topic,
		Data:       job.Event.Payload,
		OccurredAt: job.Event.OccurredAt,
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	ts := time.Now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pos-webhooks/1.0")
	req.Header.Set("X-Event-ID", job.Event.ID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", ComputeSignature(job.Secret, ts, job.Event.ID, body))

	resp, err := d.HTTP.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

// ComputeSignature calculates the webhook signature for the provided payload. The
// format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the endpoint secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HttpClient returns an HTTP client configured for webhook delivery.
func HttpClient(timeoutMs int, insecure bool) *http.Client {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = insecureTLSConfig
	}
	return &http.Client{
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Transport: otelhttp.NewTransport(transport),
	}
}

var insecureTLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec

func replayKey(endpointURL, eventID string) string {
	sum := sha256.Sum256([]byte(endpointURL))
	return fmt.Sprintf("wh:%s:%s", hex.EncodeToString(sum[:8]), eventID)
}
