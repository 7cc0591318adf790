// Package store provides the OutboxRepo interface and model for
// durable, retried owner notifications.
package store

import (
	"time"
)

// NotificationStatus represents the lifecycle state of an outbox notification.
type NotificationStatus string

const (
	NotificationStatusQueued  NotificationStatus = "queued"
	NotificationStatusSending NotificationStatus = "sending"
	NotificationStatusSent    NotificationStatus = "sent"
	// NotificationStatusDead marks a notification that exhausted its
	// retries; dead rows form the operator-facing dead-letter log.
	NotificationStatusDead NotificationStatus = "dead"
)

// Notification is a durable owner-notification job wrapping a record summary.
type Notification struct {
	ID            string             `json:"id"`
	RecordKind    string             `json:"record_kind"`
	RecordID      int64              `json:"record_id"`
	Target        string             `json:"target"`
	Summary       string             `json:"summary"`
	Status        NotificationStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	NextAttemptAt *time.Time         `json:"next_attempt_at,omitempty"`
	DedupeKey     string             `json:"dedupe_key,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// OutboxRepo defines the interface for durable notification persistence.
type OutboxRepo interface {
	// EnqueueNotification inserts a new notification job. If dedupeKey is
	// non-empty and a non-terminal job with that key exists, the existing
	// ID is returned instead of inserting a duplicate.
	EnqueueNotification(recordKind string, recordID int64, target, summary, dedupeKey string) (string, error)

	// ClaimDueNotifications marks up to limit queued jobs whose
	// next_attempt_at <= now (or is NULL) as sending and returns them.
	ClaimDueNotifications(now time.Time, limit int) ([]Notification, error)

	// MarkNotificationSent marks a job as successfully delivered.
	MarkNotificationSent(id string) error

	// FailNotification records a delivery failure. The job is requeued for
	// nextAttemptAt, or moved to the dead-letter log once its attempt
	// count reaches maxAttempts.
	FailNotification(id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error

	// RequeueStaleSendingNotifications moves jobs stuck in the sending
	// state since before staleBefore back to queued. Used for crash
	// recovery at startup; returns the number of jobs requeued.
	RequeueStaleSendingNotifications(staleBefore time.Time) (int64, error)

	// ListDeadNotifications returns the dead-letter log, newest first.
	ListDeadNotifications() ([]Notification, error)
}
