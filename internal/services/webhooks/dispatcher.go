// -----
// Webhook Dispatcher - bounded delivery queue with signing, retries, and a
// JSONL dead-letter log
// -----

package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/metrics"
)

const (
	initialBackoff = 2 * time.Second
	jitterFraction = 0.2
)

// Dispatcher delivers webhook events from a bounded priority queue. When
// the queue is full the lowest-priority oldest event is evicted into the
// recovery log so new enqueues never block the producer. Events that
// exhaust their retry budget land in the JSONL dead-letter file.
type Dispatcher struct {
	client      *http.Client
	signer      *Signer
	storage     interfaces.WebhookStorage
	queue       *eventQueue
	maxAttempts int
	dlqPath     string
	logger      arbor.ILogger
	metrics     *metrics.Metrics

	seqMu sync.Mutex
	seq   map[string]uint64 // per-target monotonic sequence

	dlqMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates the dispatcher and starts its delivery loop.
func NewDispatcher(config *common.Config, storage interfaces.WebhookStorage, m *metrics.Metrics, logger arbor.ILogger) (*Dispatcher, error) {
	dlqDir := filepath.Join(config.Storage.Root, "webhooks")
	if err := os.MkdirAll(dlqDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create webhook directory: %w", err)
	}

	timeout := time.Duration(config.Webhook.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		client:      &http.Client{Timeout: timeout},
		signer:      NewSigner(config.Webhook.SigningSecret),
		storage:     storage,
		queue:       newEventQueue(config.Webhook.QueueSize),
		maxAttempts: config.Webhook.MaxAttempts,
		dlqPath:     filepath.Join(dlqDir, "deadletter.jsonl"),
		logger:      logger,
		metrics:     m,
		seq:         make(map[string]uint64),
		ctx:         ctx,
		cancel:      cancel,
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = 3
	}

	d.wg.Add(1)
	go d.deliveryLoop()

	logger.Info().
		Int("queue_size", config.Webhook.QueueSize).
		Int("max_attempts", d.maxAttempts).
		Bool("signing", d.signer != nil).
		Msg("Webhook dispatcher started")
	return d, nil
}

// Enqueue accepts an event for delivery. The payload is marshalled now so a
// later mutation by the caller cannot change what gets delivered.
func (d *Dispatcher) Enqueue(kind string, payload interface{}, targetURL string, priority models.JobPriority) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", models.WrapError(models.KindInternal, err, "cannot encode webhook payload")
	}

	d.seqMu.Lock()
	d.seq[targetURL]++
	seq := d.seq[targetURL]
	d.seqMu.Unlock()

	event := &models.WebhookEvent{
		EventID:    common.NewEventID(),
		Kind:       kind,
		Payload:    body,
		TargetURL:  targetURL,
		Priority:   priority,
		EnqueuedAt: time.Now(),
		Seq:        seq,
	}

	d.push(event)
	d.metrics.SetQueueDepth("webhooks", float64(d.queue.Depth()))
	return event.EventID, nil
}

// push offers the event to the bounded queue, recording any evicted event
// in the recovery log.
func (d *Dispatcher) push(event *models.WebhookEvent) {
	evicted := d.queue.Push(event)
	if evicted == nil {
		return
	}

	d.metrics.RecordOverflow()
	dropped := &models.DroppedEvent{
		EventID:   evicted.EventID,
		Kind:      evicted.Kind,
		TargetURL: evicted.TargetURL,
		DroppedAt: time.Now(),
	}
	if err := d.storage.SaveDropped(context.Background(), dropped); err != nil {
		d.logger.Error().Err(err).Str("event_id", evicted.EventID).Msg("Recovery log write failed")
	}
	d.logger.Warn().
		Str("event_id", evicted.EventID).
		Str("kind", evicted.Kind).
		Msg("Webhook queue overflow, oldest low-priority event dropped")
}

func (d *Dispatcher) deliveryLoop() {
	defer d.wg.Done()
	for {
		event, ok := d.queue.Pop()
		if !ok {
			return
		}
		d.metrics.SetQueueDepth("webhooks", float64(d.queue.Depth()))
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event *models.WebhookEvent) {
	event.Attempt++
	now := time.Now()

	status, err := d.post(event)
	result := models.WebhookResult{Attempt: event.Attempt, StatusCode: status, At: now}
	if err != nil {
		result.Error = err.Error()
	}
	event.Delivery = append(event.Delivery, result)

	if err == nil && status >= 200 && status < 300 {
		d.metrics.RecordWebhook(true)
		d.logger.Debug().
			Str("event_id", event.EventID).
			Str("kind", event.Kind).
			Int("attempt", event.Attempt).
			Msg("Webhook delivered")
		return
	}

	if event.Attempt >= d.maxAttempts {
		d.deadLetter(event, result)
		return
	}

	backoff := d.backoff(event.Attempt)
	event.NextAttemptAt = now.Add(backoff)
	d.logger.Debug().
		Str("event_id", event.EventID).
		Int("attempt", event.Attempt).
		Dur("backoff", backoff).
		Msg("Webhook delivery failed, retrying")

	time.AfterFunc(backoff, func() {
		select {
		case <-d.ctx.Done():
		default:
			d.push(event)
		}
	})
}

// backoff doubles per attempt from the 2s base with ±20% jitter.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	backoff := initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	jitter := 1 + jitterFraction*(2*rand.Float64()-1)
	return time.Duration(float64(backoff) * jitter)
}

func (d *Dispatcher) post(event *models.WebhookEvent) (int, error) {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodPost, event.TargetURL, bytes.NewReader(event.Payload))
	if err != nil {
		return 0, models.WrapError(models.KindInvalidArgument, err, "cannot build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", event.EventID)
	req.Header.Set("X-Event-Kind", event.Kind)
	req.Header.Set("X-Event-Seq", fmt.Sprintf("%d", event.Seq))
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if d.signer != nil {
		req.Header.Set("X-Signature", d.signer.Sign(event.Payload))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)
	return resp.StatusCode, nil
}

// deadLetter appends the exhausted event to the JSONL log.
func (d *Dispatcher) deadLetter(event *models.WebhookEvent, last models.WebhookResult) {
	d.metrics.RecordWebhook(false)

	reason := last.Error
	if reason == "" {
		reason = fmt.Sprintf("http status %d", last.StatusCode)
	}
	entry := models.DeadLetter{
		EventID:   event.EventID,
		Kind:      event.Kind,
		TargetURL: event.TargetURL,
		Attempts:  event.Attempt,
		Reason:    reason,
		FailedAt:  time.Now(),
	}

	line, err := json.Marshal(entry)
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", event.EventID).Msg("Dead letter encode failed")
		return
	}

	d.dlqMu.Lock()
	defer d.dlqMu.Unlock()
	f, err := os.OpenFile(d.dlqPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		d.logger.Error().Err(err).Msg("Dead letter log open failed")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		d.logger.Error().Err(err).Msg("Dead letter log write failed")
	}

	d.logger.Warn().
		Str("event_id", event.EventID).
		Str("kind", event.Kind).
		Int("attempts", event.Attempt).
		Msg("Webhook dead-lettered")
}

// QueueDepth reports the number of events awaiting delivery.
func (d *Dispatcher) QueueDepth() int {
	return d.queue.Depth()
}

// Close stops delivery. Pending retry timers are waited out only if already
// firing; undelivered events are lost, which the bounded-queue contract
// permits.
func (d *Dispatcher) Close() {
	d.cancel()
	d.queue.Close()
	d.wg.Wait()
}
