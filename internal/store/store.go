// Package store provides storage backends for PrintFlow.
//
// It persists completed Orders, Schedules, and Messages append-only
// (status changes aside) and hosts the durable notification outbox.
// SQLite is the default backend; PostgreSQL is selected automatically
// from the DSN. An in-memory store backs tests and local development.
package store

import (
	"strings"

	"github.com/BTreeMap/PrintFlow/internal/models"
)

// Store is the record persistence contract shared by all backends.
// Save methods are idempotent on the supplied token: retried saves for
// the same logical completion return the existing record's id instead
// of inserting a duplicate. Update methods return
// models.ErrRecordNotFound when the id does not exist.
type Store interface {
	SaveOrder(o *models.Order, idempotencyToken string) (int64, error)
	GetOrder(id int64) (*models.Order, error)
	ListOrders(status models.RecordStatus) ([]models.Order, error)
	UpdateOrderStatus(id int64, status models.RecordStatus) error

	SaveSchedule(s *models.Schedule, idempotencyToken string) (int64, error)
	GetSchedule(id int64) (*models.Schedule, error)
	ListSchedules(status models.RecordStatus) ([]models.Schedule, error)
	UpdateScheduleStatus(id int64, status models.RecordStatus) error

	SaveMessage(m *models.Message, idempotencyToken string) (int64, error)
	GetMessage(id int64) (*models.Message, error)
	ListMessages(status models.RecordStatus) ([]models.Message, error)
	UpdateMessageStatus(id int64, status models.RecordStatus) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports which database driver a DSN belongs to:
// "postgres" for PostgreSQL URLs and key/value DSNs, "sqlite3" for
// everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}
