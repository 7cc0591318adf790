// Package notify turns completed intake records into durable owner
// notifications. The Dispatcher enqueues a summary into the outbox on
// every completion; the Sender drains the outbox with retries and
// dead-letters notifications that exhaust their attempts.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/store"
)

// Default sender configuration constants
const (
	// DefaultPollInterval is how often the sender polls for due notifications.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxAttempts is the delivery attempt budget before a
	// notification is dead-lettered.
	DefaultMaxAttempts = 5
	// DefaultAttemptTimeout bounds a single delivery attempt.
	DefaultAttemptTimeout = 30 * time.Second
	// DefaultClaimLimit caps notifications claimed per poll.
	DefaultClaimLimit = 10
	// DefaultStaleThreshold is how long a notification may sit in the
	// sending state before startup recovery requeues it.
	DefaultStaleThreshold = 5 * time.Minute
	// maxSummaryMessageLen truncates customer message text inside a
	// notification summary.
	maxSummaryMessageLen = 200
)

// Dispatcher enqueues owner notifications for completed records. It
// never blocks the completing flow: enqueue failures are logged and the
// record stays persisted.
type Dispatcher struct {
	outbox store.OutboxRepo
	target string
}

// NewDispatcher creates a dispatcher that addresses notifications to
// the given owner contact.
func NewDispatcher(outbox store.OutboxRepo, target string) *Dispatcher {
	return &Dispatcher{outbox: outbox, target: target}
}

// RecordCompleted enqueues a notification summarizing the record. The
// dedupe key ties the notification to the record so a retried
// completion never produces a second queue entry.
func (d *Dispatcher) RecordCompleted(_ context.Context, rec models.Record) {
	kind := rec.RecordKind()
	dedupeKey := fmt.Sprintf("%s:%d", kind, rec.RecordID())
	id, err := d.outbox.EnqueueNotification(string(kind), rec.RecordID(), d.target, Summarize(rec), dedupeKey)
	if err != nil {
		slog.Error("Dispatcher.RecordCompleted: enqueue failed", "kind", kind, "recordID", rec.RecordID(), "error", err)
		return
	}
	slog.Debug("Dispatcher.RecordCompleted: notification queued", "id", id, "kind", kind, "recordID", rec.RecordID())
}

// Summarize renders the owner-facing summary for a completed record.
func Summarize(rec models.Record) string {
	switch r := rec.(type) {
	case *models.Order:
		company := ""
		if r.CompanyName != "" {
			company = " (" + r.CompanyName + ")"
		}
		return fmt.Sprintf(
			"NEW ORDER RECEIVED!\n\nOrder ID: #%d\nCustomer: %s%s\nProduct: %s\nQuantity: %d\nDelivery Date: %s\nContact: %s\n\nPlease review and process this order promptly.",
			r.ID, r.CustomerName, company, r.ProductType, r.Quantity, r.DeliveryDate, r.ContactInfo)
	case *models.Schedule:
		return fmt.Sprintf(
			"NEW CONSULTATION SCHEDULED!\n\nSchedule ID: #%d\nCustomer: %s\nPreferred Time: %s\nContact: %s\n\nPlease confirm the appointment with the customer.",
			r.ID, r.CustomerName, r.PreferredDatetime, r.ContactInfo)
	case *models.Message:
		text := r.MessageText
		if len(text) > maxSummaryMessageLen {
			text = text[:maxSummaryMessageLen] + "..."
		}
		return fmt.Sprintf(
			"NEW DIRECT MESSAGE!\n\nMessage ID: #%d\nFrom: %s\nContact: %s\n\nMessage:\n%s\n\nPlease respond to the customer promptly.",
			r.ID, r.CustomerName, r.ContactInfo, text)
	default:
		return fmt.Sprintf("New %s record #%d", rec.RecordKind(), rec.RecordID())
	}
}

// AlertSender delivers one notification body to a contact. Implemented
// by the Twilio alert client; tests supply fakes.
type AlertSender interface {
	SendAlert(ctx context.Context, to, body string) error
}

// Sender periodically claims due notifications and attempts delivery.
type Sender struct {
	repo           store.OutboxRepo
	alert          AlertSender
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	maxAttempts    int
	attemptTimeout time.Duration
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithPollInterval sets how often the sender polls the outbox.
func WithPollInterval(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMaxAttempts sets the delivery attempt budget.
func WithMaxAttempts(n int) SenderOption {
	return func(s *Sender) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithAttemptTimeout bounds a single delivery attempt.
func WithAttemptTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.attemptTimeout = d
		}
	}
}

// NewSender creates a sender draining the outbox through the given
// alert client.
func NewSender(repo store.OutboxRepo, alert AlertSender, opts ...SenderOption) *Sender {
	s := &Sender{
		repo:           repo,
		alert:          alert,
		pollInterval:   DefaultPollInterval,
		staleThreshold: DefaultStaleThreshold,
		claimLimit:     DefaultClaimLimit,
		maxAttempts:    DefaultMaxAttempts,
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecoverStaleNotifications requeues notifications stuck in sending
// state (crash recovery). Should be called once at startup.
func (s *Sender) RecoverStaleNotifications() error {
	staleBefore := time.Now().Add(-s.staleThreshold)
	n, err := s.repo.RequeueStaleSendingNotifications(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Sender.RecoverStaleNotifications: requeued stale notifications", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *Sender) Run(ctx context.Context) {
	slog.Info("Sender.Run: starting notification sender", "pollInterval", s.pollInterval, "maxAttempts", s.maxAttempts)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sender.Run: stopping")
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll claims due notifications once and attempts delivery for each.
func (s *Sender) Poll(ctx context.Context) {
	now := time.Now()
	jobs, err := s.repo.ClaimDueNotifications(now, s.claimLimit)
	if err != nil {
		slog.Error("Sender.Poll: claim failed", "error", err)
		return
	}

	for _, job := range jobs {
		slog.Debug("Sender.Poll: delivering notification", "id", job.ID, "recordKind", job.RecordKind, "recordID", job.RecordID)
		if err := s.deliver(ctx, job); err != nil {
			slog.Error("Sender.Poll: delivery failed", "id", job.ID, "attempts", job.Attempts, "error", err)
			// Exponential backoff: 10s, 20s, 40s, ...
			backoff := time.Duration(10*(1<<job.Attempts)) * time.Second
			nextAttempt := now.Add(backoff)
			if err := s.repo.FailNotification(job.ID, err.Error(), nextAttempt, s.maxAttempts); err != nil {
				slog.Error("Sender.Poll: fail notification error", "id", job.ID, "error", err)
			}
		} else {
			if err := s.repo.MarkNotificationSent(job.ID); err != nil {
				slog.Error("Sender.Poll: mark sent error", "id", job.ID, "error", err)
			}
			slog.Debug("Sender.Poll: notification delivered", "id", job.ID, "target", job.Target)
		}
	}
}

func (s *Sender) deliver(ctx context.Context, job store.Notification) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()
	return s.alert.SendAlert(attemptCtx, job.Target, job.Summary)
}
