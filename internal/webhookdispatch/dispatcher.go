// Package webhookdispatch implements an in-process, best-effort fan-out
// from reputation events to subscriber URLs, signed with HMAC-SHA256 and
// retried with a bounded backoff. A Start/Stop worker with its own
// context, wg, and ObservationHooks wiring; the queue is push-based (a
// channel) rather than polled, since deliveries are event-driven instead
// of watching a pending-row table.
package webhookdispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/garl-network/trust-ledger/internal/core"
	"github.com/garl-network/trust-ledger/internal/domain/reputation"
	"github.com/garl-network/trust-ledger/internal/domain/webhook"
	"github.com/garl-network/trust-ledger/internal/storage"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

// QueueCapacity bounds the number of pending deliveries held in memory; a
// Publish call against a full queue drops the event rather than blocking
// the caller, since dispatch is best-effort and must never slow down
// trace submission.
const QueueCapacity = 4096

// MaxAttempts is the total number of delivery attempts per event per
// subscriber before it is dropped: 1 initial attempt plus up to 3 retries.
const MaxAttempts = 4

// RequestTimeout bounds a single HTTP POST attempt.
const RequestTimeout = 5 * time.Second

// backoff is the fixed delay schedule between retry attempts.
var backoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// job is one queued delivery: one subscriber, one event.
type job struct {
	webhook webhook.Webhook
	event   reputation.EventType
	agentID string
	detail  map[string]interface{}
	ts      time.Time
}

// envelope is the JSON body POSTed to the subscriber URL.
type envelope struct {
	Event     reputation.EventType   `json:"event"`
	AgentID   string                 `json:"agent_id"`
	Detail    map[string]interface{} `json:"detail"`
	Timestamp time.Time              `json:"timestamp"`
}

// Dispatcher fans out reputation events to subscribed webhooks.
type Dispatcher struct {
	webhooks storage.WebhookStore
	client   *http.Client
	log      *logger.Logger
	tracer   core.Tracer
	hooks    core.ObservationHooks

	queue chan job

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Descriptor advertises this component's placement.
var Descriptor = core.Descriptor{
	Name:         "webhook-dispatcher",
	Layer:        core.LayerDispatch,
	Capabilities: []string{"publish", "deliver"},
}

// New constructs a Dispatcher; Start launches its delivery workers.
func New(webhooks storage.WebhookStore, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("webhook-dispatcher")
	}
	return &Dispatcher{
		webhooks: webhooks,
		client:   &http.Client{Timeout: RequestTimeout},
		log:      log,
		tracer:   core.NoopTracer,
		hooks:    core.NoopObservationHooks,
		queue:    make(chan job, QueueCapacity),
	}
}

// WithTracer configures span emission for delivery attempts.
func (d *Dispatcher) WithTracer(tracer core.Tracer) {
	d.mu.Lock()
	if tracer == nil {
		d.tracer = core.NoopTracer
	} else {
		d.tracer = tracer
	}
	d.mu.Unlock()
}

// WithObservationHooks configures callbacks for delivery attempts.
func (d *Dispatcher) WithObservationHooks(hooks core.ObservationHooks) {
	d.mu.Lock()
	d.hooks = hooks
	d.mu.Unlock()
}

func (d *Dispatcher) Name() string { return "webhook-dispatcher" }

// Start launches workerCount delivery workers; each pulls jobs off the
// shared queue independently, so ordering is best-effort per subscriber
// only.
func (d *Dispatcher) Start(ctx context.Context, workerCount int) error {
	if workerCount <= 0 {
		workerCount = 4
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true

	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go d.worker(runCtx)
	}

	d.log.Info("webhook dispatcher started")
	return nil
}

// Stop cancels the workers' context, which aborts in-flight deliveries and
// their pending retries, then waits for the workers to exit or for ctx to
// expire. Publish keeps enqueueing after Stop; queued jobs are delivered
// only once Start runs again.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Publish implements pipeline.EventPublisher: it looks up every active
// webhook subscribed to evt and enqueues one delivery job per subscriber.
// A full queue drops the event for that subscriber with a warning log --
// delivery is best-effort and must never block the caller.
func (d *Dispatcher) Publish(ctx context.Context, evt reputation.EventType, agentID string, detail map[string]interface{}) {
	subs, err := d.webhooks.ListActiveWebhooksFor(ctx, webhook.EventType(evt))
	if err != nil {
		d.log.WithError(err).Warn("list active webhooks failed")
		return
	}

	now := time.Now().UTC()
	for _, w := range subs {
		j := job{webhook: w, event: evt, agentID: agentID, detail: detail, ts: now}
		select {
		case d.queue <- j:
		default:
			d.log.WithField("webhook_id", w.ID).WithField("event", string(evt)).
				Warn("webhook delivery queue full, dropping event")
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			d.deliver(ctx, j)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	d.mu.Lock()
	tracer := d.tracer
	hooks := d.hooks
	d.mu.Unlock()

	attrs := map[string]string{"webhook_id": j.webhook.ID, "event": string(j.event)}
	spanCtx, finishSpan := tracer.StartSpan(ctx, "webhook.deliver", attrs)
	finishObs := core.StartObservation(spanCtx, hooks, attrs)

	body, err := json.Marshal(envelope{Event: j.event, AgentID: j.agentID, Detail: j.detail, Timestamp: j.ts})
	if err != nil {
		d.log.WithError(err).WithField("webhook_id", j.webhook.ID).Warn("marshal webhook body failed")
		finishObs(err)
		finishSpan(err)
		return
	}
	signature := sign(j.webhook.Secret, body)

	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				finishObs(ctx.Err())
				finishSpan(ctx.Err())
				return
			case <-time.After(backoff[attempt-1]):
			}
		}

		if err := d.attempt(spanCtx, j.webhook, body, signature, string(j.event)); err != nil {
			lastErr = err
			d.log.WithError(err).
				WithField("webhook_id", j.webhook.ID).
				WithField("attempt", attempt+1).
				Warn("webhook delivery attempt failed")
			continue
		}

		lastErr = nil
		if err := d.webhooks.MarkTriggered(spanCtx, j.webhook.ID, time.Now().UTC()); err != nil {
			d.log.WithError(err).WithField("webhook_id", j.webhook.ID).Warn("mark webhook triggered failed")
		}
		break
	}

	if lastErr != nil {
		d.log.WithField("webhook_id", j.webhook.ID).
			WithField("event", string(j.event)).
			Warn("webhook delivery exhausted retries, dropping")
	}
	finishObs(lastErr)
	finishSpan(lastErr)
}

func (d *Dispatcher) attempt(ctx context.Context, w webhook.Webhook, body []byte, signature, eventName string) error {
	reqCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Garl-Event", eventName)
	req.Header.Set("X-Garl-Signature", signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("subscriber responded with status %d", resp.StatusCode)
	}
	return nil
}

// sign computes the hex-encoded HMAC-SHA256 of body under secret, used as
// the X-Garl-Signature header so a subscriber can verify the payload
// actually came from this ledger.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
