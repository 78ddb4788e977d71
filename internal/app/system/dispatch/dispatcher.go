// internal/app/system/dispatch/dispatcher.go

// Package dispatch fans notifications out to donors across two channels: a
// best-effort real-time push and a durable email with retry. Delivery is
// at-least-once and fully decoupled from the state write that triggered it;
// a channel failure is logged and counted, never surfaced to the caller of
// the triggering operation.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/app/system/mailer"
	"github.com/bloodbridge/bloodbridge/internal/app/system/realtime"
	"github.com/bloodbridge/bloodbridge/internal/app/system/timeouts"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	// maxEmailRetries is the number of retries after the initial email
	// attempt (3 attempts total).
	maxEmailRetries = 2
	// defaultEmailBackoffBase is the first retry delay; it doubles per
	// attempt.
	defaultEmailBackoffBase = 1 * time.Second

	defaultWorkers   = 8
	defaultQueueSize = 1024
)

// Sender delivers one email synchronously. *mailer.Mailer satisfies it.
type Sender interface {
	Send(mailer.Email) error
}

// ReceiptStore records delivered notifications for later retrieval.
type ReceiptStore interface {
	Record(ctx context.Context, n *models.Notification) error
}

// Job is one ephemeral unit of notification work for one recipient. Jobs
// live only in the queue; they are never persisted.
type Job struct {
	ID          uuid.UUID
	RecipientID primitive.ObjectID
	RequestID   primitive.ObjectID

	// Email is the fully built message, To already set. Empty To is a
	// permanent failure for the email channel.
	Email mailer.Email

	// RealtimeTopic/RealtimePayload drive the push channel; empty topic
	// skips it.
	RealtimeTopic   string
	RealtimePayload []byte
}

// NewJob builds a Job with a fresh correlation id.
func NewJob(recipientID, requestID primitive.ObjectID) Job {
	return Job{ID: uuid.New(), RecipientID: recipientID, RequestID: requestID}
}

// Outcome is the result of one channel's delivery attempt(s).
type Outcome struct {
	Channel   string
	Delivered bool
	Attempts  int
	Err       error
}

// Dispatcher owns the notification queue and worker pool. It is an injected
// capability with an explicit lifecycle: construct it in bootstrap, Start it
// before the handler goes live, Stop it on shutdown.
type Dispatcher struct {
	sender   Sender             // nil means email channel not configured
	pub      realtime.Publisher // nil means real-time channel not configured
	receipts ReceiptStore
	log      *zap.Logger

	queue   chan Job
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex

	workers     int
	backoffBase time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the job queue capacity.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Job, n)
		}
	}
}

// WithBackoffBase overrides the first email retry delay. Tests use this to
// avoid real one-second sleeps.
func WithBackoffBase(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.backoffBase = t
		}
	}
}

// New creates a Dispatcher. Either channel may be nil-configured; receipts
// may be nil when no read-receipt store is wired (tests).
func New(sender Sender, pub realtime.Publisher, receipts ReceiptStore, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:      sender,
		pub:         pub,
		receipts:    receipts,
		log:         logger,
		queue:       make(chan Job, defaultQueueSize),
		stopCh:      make(chan struct{}),
		workers:     defaultWorkers,
		backoffBase: defaultEmailBackoffBase,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	d.log.Info("notification dispatcher started", zap.Int("workers", d.workers))
}

// Stop signals the workers and waits for in-flight jobs to finish. Queued
// but unstarted jobs are dropped; delivery is best effort across restarts.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
	d.log.Info("notification dispatcher stopped")
}

// Enqueue queues one job. It never blocks: when the queue is full the job is
// dropped with a warning, keeping submit/respond latency bounded no matter
// how far behind delivery is.
func (d *Dispatcher) Enqueue(job Job) {
	select {
	case d.queue <- job:
	default:
		d.log.Warn("notification queue full, dropping job",
			zap.String("job_id", job.ID.String()),
			zap.String("recipient_id", job.RecipientID.Hex()))
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case job := <-d.queue:
			d.Dispatch(context.Background(), job)
		}
	}
}

// Dispatch delivers one job across its configured channels and returns the
// per-channel outcomes. Workers call it off the queue; tests call it
// directly for synchronous behavior.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) []Outcome {
	var outcomes []Outcome

	if d.pub != nil && job.RealtimeTopic != "" {
		outcomes = append(outcomes, d.publishRealtime(ctx, job))
	}
	if d.sender != nil && (job.Email.TextBody != "" || job.Email.HTMLBody != "") {
		outcomes = append(outcomes, d.sendEmail(ctx, job))
	}
	return outcomes
}

// publishRealtime is single attempt: a recipient who is not connected just
// misses the push.
func (d *Dispatcher) publishRealtime(ctx context.Context, job Job) Outcome {
	out := Outcome{Channel: models.ChannelRealtime, Attempts: 1}
	if err := d.pub.Publish(ctx, job.RealtimeTopic, job.RealtimePayload); err != nil {
		out.Err = err
		d.log.Debug("realtime publish failed",
			zap.String("job_id", job.ID.String()),
			zap.String("topic", job.RealtimeTopic),
			zap.Error(err))
		return out
	}
	out.Delivered = true
	d.recordReceipt(ctx, job, models.ChannelRealtime)
	return out
}

// sendEmail retries with exponential backoff (base doubling) up to
// maxEmailRetries after the initial attempt. A missing recipient address is
// permanent and never retried.
func (d *Dispatcher) sendEmail(_ context.Context, job Job) Outcome {
	out := Outcome{Channel: models.ChannelEmail}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.backoffBase
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	op := func() error {
		out.Attempts++
		err := d.sender.Send(job.Email)
		if errors.Is(err, mailer.ErrMissingRecipient) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithMaxRetries(policy, maxEmailRetries)); err != nil {
		out.Err = err
		d.log.Error("email delivery failed permanently",
			zap.String("job_id", job.ID.String()),
			zap.String("recipient_id", job.RecipientID.Hex()),
			zap.Int("attempts", out.Attempts),
			zap.Error(err))
		return out
	}

	out.Delivered = true
	d.recordReceipt(context.Background(), job, models.ChannelEmail)
	return out
}

// recordReceipt writes the durable delivered-notification record. Best
// effort: a receipt write failure does not undo the delivery. Broadcast jobs
// carry no recipient and leave no receipt.
func (d *Dispatcher) recordReceipt(ctx context.Context, job Job, channel string) {
	if d.receipts == nil || job.RecipientID.IsZero() {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	body := job.Email.TextBody
	if channel == models.ChannelRealtime {
		body = string(job.RealtimePayload)
	}
	n := &models.Notification{
		RecipientID: job.RecipientID,
		RequestID:   job.RequestID,
		Channel:     channel,
		Subject:     job.Email.Subject,
		Body:        body,
	}
	if err := d.receipts.Record(rctx, n); err != nil {
		d.log.Warn("failed to record notification receipt",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
}
