package notify

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/backend-pos/internal/queue"
)

// DeliveryWorker bridges the task queue to the dispatcher.
type DeliveryWorker struct {
	Dispatcher *Dispatcher
}

// Handle executes the queued delivery.
func (w DeliveryWorker) Handle(ctx context.Context, task queue.Task) error {
	if w.Dispatcher == nil {
		return errors.New("webhook worker: dispatcher not configured")
	}
	return w.Dispatcher.Deliver(ctx, task.Payload)
}

// Worker builds a queue worker consuming webhook deliveries.
func (w DeliveryWorker) Worker(r queue.Worker) queue.Worker {
	r.Kind = WebhookDeliveryTask
	r.Handler = w.Handle
	if r.VisibilityTimeout <= 0 {
		r.VisibilityTimeout = 30 * time.Second
	}
	return r
}
