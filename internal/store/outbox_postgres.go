package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/util"
)

// EnqueueNotification queues an owner notification for delivery. If a
// non-terminal notification with the same dedupe key already exists its
// id is returned instead of inserting a duplicate.
func (s *PostgresStore) EnqueueNotification(recordKind string, recordID int64, target, summary, dedupeKey string) (string, error) {
	if dedupeKey != "" {
		var existing string
		err := s.db.QueryRow(
			`SELECT id FROM notification_outbox WHERE dedupe_key = $1 AND status NOT IN ('sent', 'dead')`,
			dedupeKey,
		).Scan(&existing)
		if err == nil {
			slog.Debug("PostgresStore.EnqueueNotification: dedupe hit", "dedupeKey", dedupeKey, "existingID", existing)
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("notification dedupe check failed: %w", err)
		}
	}

	id := util.GenerateRandomID("ntf_", 32)
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO notification_outbox (id, record_kind, record_id, target, summary, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)`,
		id, recordKind, recordID, target, summary, NotificationStatusQueued, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue notification failed: %w", err)
	}
	slog.Debug("PostgresStore.EnqueueNotification: queued", "id", id, "recordKind", recordKind, "recordID", recordID)
	return id, nil
}

// ClaimDueNotifications selects up to limit queued notifications that
// are due and marks them as sending so concurrent senders do not pick
// them up twice.
func (s *PostgresStore) ClaimDueNotifications(now time.Time, limit int) ([]Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, record_kind, record_id, target, summary, status, attempts, next_attempt_at, dedupe_key, last_error, created_at, updated_at
		 FROM notification_outbox
		 WHERE status = $1 AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		 ORDER BY created_at ASC
		 LIMIT $3`,
		NotificationStatusQueued, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications query failed: %w", err)
	}
	defer rows.Close()

	var due []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due notifications iteration failed: %w", err)
	}

	var claimed []Notification
	for _, n := range due {
		res, err := s.db.Exec(
			`UPDATE notification_outbox SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
			NotificationStatusSending, time.Now().UTC(), n.ID, NotificationStatusQueued,
		)
		if err != nil {
			return nil, fmt.Errorf("claim notification %s failed: %w", n.ID, err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			continue
		}
		n.Status = NotificationStatusSending
		claimed = append(claimed, n)
	}
	return claimed, nil
}

// MarkNotificationSent marks a notification as delivered.
func (s *PostgresStore) MarkNotificationSent(id string) error {
	res, err := s.db.Exec(
		`UPDATE notification_outbox SET status = $1, last_error = NULL, updated_at = $2 WHERE id = $3`,
		NotificationStatusSent, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// FailNotification records a failed delivery attempt and requeues the
// notification for its next attempt, or dead-letters it once the
// attempt budget is exhausted.
func (s *PostgresStore) FailNotification(id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE notification_outbox
		 SET status = $1, attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = $4
		 WHERE id = $5 AND attempts + 1 < $6`,
		NotificationStatusQueued, errMsg, nextAttemptAt, now, id, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("fail notification failed: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		return nil
	}

	// Attempt budget exhausted: move to the dead-letter state.
	res, err = s.db.Exec(
		`UPDATE notification_outbox
		 SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = $3
		 WHERE id = $4`,
		NotificationStatusDead, errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("dead-letter notification failed: %w", err)
	}
	affected, _ = res.RowsAffected()
	if affected == 0 {
		return models.ErrRecordNotFound
	}
	slog.Warn("PostgresStore.FailNotification: notification dead-lettered", "id", id, "lastError", errMsg)
	return nil
}

// RequeueStaleSendingNotifications moves notifications stuck in the
// sending state back to queued. Used for crash recovery at startup.
func (s *PostgresStore) RequeueStaleSendingNotifications(staleBefore time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE notification_outbox SET status = $1, updated_at = $2 WHERE status = $3 AND updated_at < $4`,
		NotificationStatusQueued, time.Now().UTC(), NotificationStatusSending, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale notifications failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListDeadNotifications returns dead-lettered notifications, most
// recently failed first.
func (s *PostgresStore) ListDeadNotifications() ([]Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, record_kind, record_id, target, summary, status, attempts, next_attempt_at, dedupe_key, last_error, created_at, updated_at
		 FROM notification_outbox WHERE status = $1 ORDER BY updated_at DESC`,
		NotificationStatusDead,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead notifications failed: %w", err)
	}
	defer rows.Close()

	var dead []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		dead = append(dead, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead notifications iteration failed: %w", err)
	}
	return dead, nil
}
