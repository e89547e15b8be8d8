// Package webhooks pushes selected ledger events to an external endpoint.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"credo/core/events"
	"credo/observability"
)

const (
	HeaderEvent     = "X-Credo-Event"
	HeaderSignature = "X-Credo-Signature"
	HeaderDelivery  = "X-Credo-Delivery"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 128
)

// Payload is the JSON body POSTed for every delivery.
type Payload struct {
	Type       string            `json:"type"`
	DeliveryID string            `json:"deliveryId"`
	SentAt     time.Time         `json:"sentAt"`
	Attributes map[string]string `json:"attributes"`
}

// Dispatcher delivers events with retry and exponential backoff. It
// implements events.Emitter; by default only liquidations are forwarded.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	queueSize   int
	topics      map[string]struct{}
	logger      *slog.Logger
	metrics     *observability.LendingMetrics
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	id        string
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithEventTypes replaces the set of forwarded event types.
func WithEventTypes(types ...string) Option {
	return func(d *Dispatcher) {
		topics := make(map[string]struct{}, len(types))
		for _, t := range types {
			if t = strings.TrimSpace(t); t != "" {
				topics[t] = struct{}{}
			}
		}
		if len(topics) > 0 {
			d.topics = topics
		}
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(m *observability.LendingMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		queueSize:   defaultQueueSize,
		topics:      map[string]struct{}{events.TypeLendingLiquidation: {}},
		logger:      slog.Default(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.queue = make(chan delivery, dispatcher.queueSize)
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for the inflight delivery to finish.
// Queued deliveries are dropped.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Emit implements events.Emitter. It never blocks the ledger: when the queue
// is full the delivery is dropped and counted as a failure.
func (d *Dispatcher) Emit(evt events.Event) {
	if d == nil || evt == nil {
		return
	}
	if _, ok := d.topics[evt.EventType()]; !ok {
		return
	}
	wire := events.Flatten(evt)
	if wire == nil {
		return
	}
	payload := Payload{
		Type:       wire.Type,
		DeliveryID: uuid.NewString(),
		SentAt:     d.now().UTC(),
		Attributes: wire.Attributes,
	}
	if err := d.Enqueue(payload); err != nil {
		d.logger.Warn("webhook delivery dropped",
			slog.String("event", payload.Type),
			slog.String("delivery", payload.DeliveryID),
			slog.Any("error", err))
		d.metrics.RecordWebhookFailure("dropped")
	}
}

// Enqueue schedules payload for delivery without blocking.
func (d *Dispatcher) Enqueue(payload Payload) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	if payload.DeliveryID == "" {
		payload.DeliveryID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if d.ctx.Err() != nil {
		return errors.New("webhook: dispatcher closed")
	}
	select {
	case d.queue <- delivery{id: payload.DeliveryID, eventType: payload.Type, body: data}:
		return nil
	default:
		return errors.New("webhook: queue full")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts || d.ctx.Err() != nil {
			d.logger.Error("webhook delivery failed",
				slog.String("event", job.eventType),
				slog.String("delivery", job.id),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			d.metrics.RecordWebhookFailure("exhausted")
			return
		}
		d.logger.Debug("webhook delivery retry",
			slog.String("delivery", job.id),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", err))
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-d.ctx.Done():
			timer.Stop()
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, job.eventType)
	req.Header.Set(HeaderDelivery, job.id)
	req.Header.Set(HeaderSignature, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(signature)))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
