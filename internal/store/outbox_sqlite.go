package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/PrintFlow/internal/util"
)

func (s *SQLiteStore) EnqueueNotification(recordKind string, recordID int64, target, summary, dedupeKey string) (string, error) {
	id := util.GenerateRandomID("ntf_", 32)
	now := time.Now()

	if dedupeKey != "" {
		var existingID string
		err := s.db.QueryRow(
			`SELECT id FROM notification_outbox WHERE dedupe_key = ? AND status NOT IN ('sent', 'dead')`,
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug("SQLiteStore.EnqueueNotification: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("notification dedupe check failed: %w", err)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO notification_outbox (id, record_kind, record_id, target, summary, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'queued', 0, ?, ?, ?)`,
		id, recordKind, recordID, target, summary, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue notification failed: %w", err)
	}
	slog.Debug("SQLiteStore.EnqueueNotification", "id", id, "recordKind", recordKind, "recordID", recordID)
	return id, nil
}

func (s *SQLiteStore) ClaimDueNotifications(now time.Time, limit int) ([]Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, record_kind, record_id, target, summary, status, attempts, next_attempt_at, dedupe_key, last_error, created_at, updated_at
		 FROM notification_outbox WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications failed: %w", err)
	}
	defer rows.Close()

	var jobs []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim notifications iteration failed: %w", err)
	}

	for i := range jobs {
		_, err := s.db.Exec(
			`UPDATE notification_outbox SET status = 'sending', updated_at = ? WHERE id = ?`,
			now, jobs[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("mark notification sending failed: %w", err)
		}
		jobs[i].Status = NotificationStatusSending
	}

	return jobs, nil
}

func (s *SQLiteStore) MarkNotificationSent(id string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE notification_outbox SET status = 'sent', updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailNotification(id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error {
	now := time.Now()
	res, err := s.db.Exec(
		`UPDATE notification_outbox SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND attempts + 1 < ?`,
		errMsg, nextAttemptAt, now, id, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("fail notification failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	// Retries exhausted: move to the dead-letter log.
	_, err = s.db.Exec(
		`UPDATE notification_outbox SET status = 'dead', attempts = attempts + 1, last_error = ?, next_attempt_at = NULL, updated_at = ?
		 WHERE id = ?`,
		errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("dead-letter notification failed: %w", err)
	}
	slog.Warn("SQLiteStore.FailNotification: notification dead-lettered", "id", id, "lastError", errMsg)
	return nil
}

func (s *SQLiteStore) RequeueStaleSendingNotifications(staleBefore time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE notification_outbox SET status = 'queued', updated_at = ? WHERE status = 'sending' AND updated_at < ?`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale notifications failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) ListDeadNotifications() ([]Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, record_kind, record_id, target, summary, status, attempts, next_attempt_at, dedupe_key, last_error, created_at, updated_at
		 FROM notification_outbox WHERE status = 'dead' ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead notifications failed: %w", err)
	}
	defer rows.Close()

	var jobs []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dead notifications iteration failed: %w", err)
	}
	return jobs, nil
}
