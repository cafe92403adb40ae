// Package outbox implements a durable mutation queue: writes that cannot
// be attempted immediately are persisted locally and replayed against the
// remote API on the next drain. Delivery is at-least-once; callers keep
// remote writes idempotent by resource path.
package outbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavemetrics/overwatch/pkg/models"
)

// Deliverer attempts to deliver one queued operation to the remote system.
// Any returned error means "retain and retry later"; the queue does not
// distinguish why delivery failed.
type Deliverer interface {
	Deliver(ctx context.Context, op models.QueuedOperation) error
}

// DrainResult reports the outcome of one drain pass.
type DrainResult struct {
	Delivered int `json:"delivered"`
	Remaining int `json:"remaining"`
}

// Queue is the durable mutation queue. Enqueue never fails due to network
// state; Drain attempts each pending item once, in insertion order.
type Queue struct {
	store     *Store
	deliverer Deliverer

	// Serializes drain passes so two concurrent drains can't both
	// deliver the same item.
	drainMu sync.Mutex
}

// NewQueue creates a queue over the given store and deliverer.
func NewQueue(store *Store, deliverer Deliverer) *Queue {
	return &Queue{store: store, deliverer: deliverer}
}

// Enqueue persists a pending write and returns the stored operation.
// The id and timestamp are assigned here; the rest is immutable caller input.
func (q *Queue) Enqueue(ctx context.Context, pending models.PendingOperation) (models.QueuedOperation, error) {
	op := models.QueuedOperation{
		ID:        uuid.New().String(),
		Method:    pending.Method,
		Target:    pending.Target,
		Body:      pending.Body,
		CreatedAt: time.Now().UTC(),
	}

	if err := q.store.Append(ctx, op); err != nil {
		return models.QueuedOperation{}, err
	}
	return op, nil
}

// Drain attempts delivery of every pending operation in insertion order.
// Items that deliver successfully are removed permanently; items that fail
// are retained in their original relative order for the next pass. A
// failure of one item never blocks later items. Only storage faults
// abort the pass.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	ops, err := q.store.All(ctx)
	if err != nil {
		return DrainResult{}, err
	}

	var result DrainResult
	for _, op := range ops {
		if err := q.deliverer.Deliver(ctx, op); err != nil {
			result.Remaining++
			continue
		}
		if err := q.store.Remove(ctx, op.ID); err != nil {
			return result, err
		}
		result.Delivered++
	}

	return result, nil
}

// List returns a read-only snapshot of pending operations for diagnostics.
func (q *Queue) List(ctx context.Context) ([]models.QueuedOperation, error) {
	return q.store.All(ctx)
}

// Len returns the number of pending operations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.Count(ctx)
}

// HTTPDeliverer delivers operations against a remote REST endpoint,
// resolving each target path against a base URL.
type HTTPDeliverer struct {
	base   string
	client *http.Client
}

// NewHTTPDeliverer creates a deliverer with the given base URL and
// per-attempt timeout.
func NewHTTPDeliverer(baseURL string, timeout time.Duration) *HTTPDeliverer {
	return &HTTPDeliverer{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver performs one HTTP attempt. Any transport error or non-2xx
// response counts as failure.
func (d *HTTPDeliverer) Deliver(ctx context.Context, op models.QueuedOperation) error {
	url := d.base + "/" + strings.TrimLeft(op.Target, "/")

	var body io.Reader
	if len(op.Body) > 0 {
		body = bytes.NewReader(op.Body)
	}

	req, err := http.NewRequestWithContext(ctx, string(op.Method), url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if len(op.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s %s: %w", op.Method, op.Target, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deliver %s %s: status %d", op.Method, op.Target, resp.StatusCode)
	}
	return nil
}
