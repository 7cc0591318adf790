// Package store provides storage backends for PrintFlow.
//
// This file implements the SQLite-backed record store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/PrintFlow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time checks that SQLiteStore implements the storage contracts.
var (
	_ Store      = (*SQLiteStore)(nil)
	_ OutboxRepo = (*SQLiteStore)(nil)
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// SaveOrder persists a completed order inside a transaction and assigns
// its id. A retried save with the same idempotency token returns the
// existing id without inserting a second row.
func (s *SQLiteStore) SaveOrder(o *models.Order, idempotencyToken string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin save order failed: %w", err)
	}
	defer tx.Rollback()

	if idempotencyToken != "" {
		var existing int64
		err := tx.QueryRow(`SELECT id FROM orders WHERE idempotency_key = ?`, idempotencyToken).Scan(&existing)
		if err == nil {
			slog.Debug("SQLiteStore.SaveOrder: idempotency hit", "token", idempotencyToken, "existingID", existing)
			o.ID = existing
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("order idempotency check failed: %w", err)
		}
	}

	res, err := tx.Exec(
		`INSERT INTO orders (customer_name, company_name, product_type, quantity, delivery_date, contact_info, order_status, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.CustomerName, nilIfEmpty(o.CompanyName), o.ProductType, o.Quantity, o.DeliveryDate,
		o.ContactInfo, o.Status, nilIfEmpty(idempotencyToken), o.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert order failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("order last insert id failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save order failed: %w", err)
	}
	o.ID = id
	slog.Debug("SQLiteStore.SaveOrder succeeded", "id", id, "customer", o.CustomerName)
	return id, nil
}

// GetOrder retrieves an order by id.
func (s *SQLiteStore) GetOrder(id int64) (*models.Order, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_name, company_name, product_type, quantity, delivery_date, contact_info, order_status, created_at
		 FROM orders WHERE id = ?`, id)
	o, err := scanOrderRow(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d failed: %w", id, err)
	}
	return o, nil
}

// ListOrders returns orders, newest first, optionally filtered by status.
func (s *SQLiteStore) ListOrders(status models.RecordStatus) ([]models.Order, error) {
	query := `SELECT id, customer_name, company_name, product_type, quantity, delivery_date, contact_info, order_status, created_at
		 FROM orders`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE order_status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders failed: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders iteration failed: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus updates an order's status.
func (s *SQLiteStore) UpdateOrderStatus(id int64, status models.RecordStatus) error {
	res, err := s.db.Exec(`UPDATE orders SET order_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update order status failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrRecordNotFound
	}
	slog.Debug("SQLiteStore.UpdateOrderStatus succeeded", "id", id, "status", status)
	return nil
}

// SaveSchedule persists a completed consultation request. Idempotency
// behaves as in SaveOrder.
func (s *SQLiteStore) SaveSchedule(sc *models.Schedule, idempotencyToken string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin save schedule failed: %w", err)
	}
	defer tx.Rollback()

	if idempotencyToken != "" {
		var existing int64
		err := tx.QueryRow(`SELECT id FROM schedules WHERE idempotency_key = ?`, idempotencyToken).Scan(&existing)
		if err == nil {
			slog.Debug("SQLiteStore.SaveSchedule: idempotency hit", "token", idempotencyToken, "existingID", existing)
			sc.ID = existing
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("schedule idempotency check failed: %w", err)
		}
	}

	res, err := tx.Exec(
		`INSERT INTO schedules (customer_name, contact_info, preferred_datetime, status, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sc.CustomerName, sc.ContactInfo, sc.PreferredDatetime, sc.Status, nilIfEmpty(idempotencyToken), sc.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert schedule failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("schedule last insert id failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save schedule failed: %w", err)
	}
	sc.ID = id
	slog.Debug("SQLiteStore.SaveSchedule succeeded", "id", id, "customer", sc.CustomerName)
	return id, nil
}

// GetSchedule retrieves a schedule by id.
func (s *SQLiteStore) GetSchedule(id int64) (*models.Schedule, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_name, contact_info, preferred_datetime, status, created_at
		 FROM schedules WHERE id = ?`, id)
	sc := &models.Schedule{}
	err := row.Scan(&sc.ID, &sc.CustomerName, &sc.ContactInfo, &sc.PreferredDatetime, &sc.Status, &sc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %d failed: %w", id, err)
	}
	return sc, nil
}

// ListSchedules returns schedules, newest first, optionally filtered by status.
func (s *SQLiteStore) ListSchedules(status models.RecordStatus) ([]models.Schedule, error) {
	query := `SELECT id, customer_name, contact_info, preferred_datetime, status, created_at FROM schedules`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules failed: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		var sc models.Schedule
		if err := rows.Scan(&sc.ID, &sc.CustomerName, &sc.ContactInfo, &sc.PreferredDatetime, &sc.Status, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule failed: %w", err)
		}
		schedules = append(schedules, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list schedules iteration failed: %w", err)
	}
	return schedules, nil
}

// UpdateScheduleStatus updates a schedule's status.
func (s *SQLiteStore) UpdateScheduleStatus(id int64, status models.RecordStatus) error {
	res, err := s.db.Exec(`UPDATE schedules SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update schedule status failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// SaveMessage persists a completed direct message. Idempotency behaves
// as in SaveOrder.
func (s *SQLiteStore) SaveMessage(m *models.Message, idempotencyToken string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin save message failed: %w", err)
	}
	defer tx.Rollback()

	if idempotencyToken != "" {
		var existing int64
		err := tx.QueryRow(`SELECT id FROM messages WHERE idempotency_key = ?`, idempotencyToken).Scan(&existing)
		if err == nil {
			slog.Debug("SQLiteStore.SaveMessage: idempotency hit", "token", idempotencyToken, "existingID", existing)
			m.ID = existing
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("message idempotency check failed: %w", err)
		}
	}

	res, err := tx.Exec(
		`INSERT INTO messages (customer_name, contact_info, message_text, status, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.CustomerName, m.ContactInfo, m.MessageText, m.Status, nilIfEmpty(idempotencyToken), m.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message last insert id failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save message failed: %w", err)
	}
	m.ID = id
	slog.Debug("SQLiteStore.SaveMessage succeeded", "id", id, "customer", m.CustomerName)
	return id, nil
}

// GetMessage retrieves a direct message by id.
func (s *SQLiteStore) GetMessage(id int64) (*models.Message, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_name, contact_info, message_text, status, created_at
		 FROM messages WHERE id = ?`, id)
	m := &models.Message{}
	err := row.Scan(&m.ID, &m.CustomerName, &m.ContactInfo, &m.MessageText, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d failed: %w", id, err)
	}
	return m, nil
}

// ListMessages returns direct messages, newest first, optionally filtered by status.
func (s *SQLiteStore) ListMessages(status models.RecordStatus) ([]models.Message, error) {
	query := `SELECT id, customer_name, contact_info, message_text, status, created_at FROM messages`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.CustomerName, &m.ContactInfo, &m.MessageText, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message failed: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages iteration failed: %w", err)
	}
	return messages, nil
}

// UpdateMessageStatus updates a direct message's status.
func (s *SQLiteStore) UpdateMessageStatus(id int64, status models.RecordStatus) error {
	res, err := s.db.Exec(`UPDATE messages SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update message status failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}
