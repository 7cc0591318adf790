package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/PrintFlow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanOrder scans an Order from sql.Rows.
func scanOrder(rows *sql.Rows) (models.Order, error) {
	var o models.Order
	var company sql.NullString
	err := rows.Scan(&o.ID, &o.CustomerName, &company, &o.ProductType, &o.Quantity,
		&o.DeliveryDate, &o.ContactInfo, &o.Status, &o.CreatedAt)
	if err != nil {
		return o, fmt.Errorf("scan order failed: %w", err)
	}
	o.CompanyName = company.String
	return o, nil
}

// scanOrderRow scans an Order from a single sql.Row.
func scanOrderRow(row *sql.Row) (*models.Order, error) {
	o := &models.Order{}
	var company sql.NullString
	err := row.Scan(&o.ID, &o.CustomerName, &company, &o.ProductType, &o.Quantity,
		&o.DeliveryDate, &o.ContactInfo, &o.Status, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.CompanyName = company.String
	return o, nil
}

// scanNotification scans a Notification from sql.Rows.
func scanNotification(rows *sql.Rows) (Notification, error) {
	var n Notification
	var dedupeKey, lastError sql.NullString
	var nextAttemptAt sql.NullTime
	err := rows.Scan(
		&n.ID, &n.RecordKind, &n.RecordID, &n.Target, &n.Summary, &n.Status, &n.Attempts,
		&nextAttemptAt, &dedupeKey, &lastError, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return n, fmt.Errorf("scan notification failed: %w", err)
	}
	n.DedupeKey = dedupeKey.String
	n.LastError = lastError.String
	if nextAttemptAt.Valid {
		n.NextAttemptAt = &nextAttemptAt.Time
	}
	return n, nil
}
