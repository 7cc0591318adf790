// Package store provides storage backends for PrintFlow.
//
// This file implements the PostgreSQL-backed record store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/PrintFlow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time checks that PostgresStore implements the storage contracts.
var (
	_ Store      = (*PostgresStore)(nil)
	_ OutboxRepo = (*PostgresStore)(nil)
)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

// SaveOrder persists a completed order inside a transaction and assigns
// its id. A retried save with the same idempotency token returns the
// existing id without inserting a second row.
func (s *PostgresStore) SaveOrder(o *models.Order, idempotencyToken string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin save order failed: %w", err)
	}
	defer tx.Rollback()

	if idempotencyToken != "" {
		var existing int64
		err := tx.QueryRow(`SELECT id FROM orders WHERE idempotency_key = $1`, idempotencyToken).Scan(&existing)
		if err == nil {
			slog.Debug("PostgresStore.SaveOrder: idempotency hit", "token", idempotencyToken, "existingID", existing)
			o.ID = existing
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("order idempotency check failed: %w", err)
		}
	}

	var id int64
	err = tx.QueryRow(
		`INSERT INTO orders (customer_name, company_name, product_type, quantity, delivery_date, contact_info, order_status, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		o.CustomerName, nilIfEmpty(o.CompanyName), o.ProductType, o.Quantity, o.DeliveryDate,
		o.ContactInfo, o.Status, nilIfEmpty(idempotencyToken), o.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save order failed: %w", err)
	}
	o.ID = id
	slog.Debug("PostgresStore.SaveOrder succeeded", "id", id, "customer", o.CustomerName)
	return id, nil
}

// GetOrder retrieves an order by id.
func (s *PostgresStore) GetOrder(id int64) (*models.Order, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_name, company_name, product_type, quantity, delivery_date, contact_info, order_status, created_at
		 FROM orders WHERE id = $1`, id)
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
func (s *PostgresStore) ListOrders(status models.RecordStatus) ([]models.Order, error) {
	query := `SELECT id, customer_name, company_name, product_type, quantity, delivery_date, contact_info, order_status, created_at
		 FROM orders`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE order_status = $1`
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
func (s *PostgresStore) UpdateOrderStatus(id int64, status models.RecordStatus) error {
	res, err := s.db.Exec(`UPDATE orders SET order_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update order status failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// SaveSchedule persists a completed consultation request. Idempotency
// behaves as in SaveOrder.
func (s *PostgresStore) SaveSchedule(sc *models.Schedule, idempotencyToken string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin save schedule failed: %w", err)
	}
	defer tx.Rollback()

	if idempotencyToken != "" {
		var existing int64
		err := tx.QueryRow(`SELECT id FROM schedules WHERE idempotency_key = $1`, idempotencyToken).Scan(&existing)
		if err == nil {
			slog.Debug("PostgresStore.SaveSchedule: idempotency hit", "token", idempotencyToken, "existingID", existing)
			sc.ID = existing
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("schedule idempotency check failed: %w", err)
		}
	}

	var id int64
	err = tx.QueryRow(
		`INSERT INTO schedules (customer_name, contact_info, preferred_datetime, status, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sc.CustomerName, sc.ContactInfo, sc.PreferredDatetime, sc.Status, nilIfEmpty(idempotencyToken), sc.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert schedule failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save schedule failed: %w", err)
	}
	sc.ID = id
	return id, nil
}

// GetSchedule retrieves a schedule by id.
func (s *PostgresStore) GetSchedule(id int64) (*models.Schedule, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_name, contact_info, preferred_datetime, status, created_at
		 FROM schedules WHERE id = $1`, id)
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
func (s *PostgresStore) ListSchedules(status models.RecordStatus) ([]models.Schedule, error) {
	query := `SELECT id, customer_name, contact_info, preferred_datetime, status, created_at FROM schedules`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
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
func (s *PostgresStore) UpdateScheduleStatus(id int64, status models.RecordStatus) error {
	res, err := s.db.Exec(`UPDATE schedules SET status = $1 WHERE id = $2`, status, id)
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
func (s *PostgresStore) SaveMessage(m *models.Message, idempotencyToken string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin save message failed: %w", err)
	}
	defer tx.Rollback()

	if idempotencyToken != "" {
		var existing int64
		err := tx.QueryRow(`SELECT id FROM messages WHERE idempotency_key = $1`, idempotencyToken).Scan(&existing)
		if err == nil {
			slog.Debug("PostgresStore.SaveMessage: idempotency hit", "token", idempotencyToken, "existingID", existing)
			m.ID = existing
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("message idempotency check failed: %w", err)
		}
	}

	var id int64
	err = tx.QueryRow(
		`INSERT INTO messages (customer_name, contact_info, message_text, status, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		m.CustomerName, m.ContactInfo, m.MessageText, m.Status, nilIfEmpty(idempotencyToken), m.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save message failed: %w", err)
	}
	m.ID = id
	return id, nil
}

// GetMessage retrieves a direct message by id.
func (s *PostgresStore) GetMessage(id int64) (*models.Message, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_name, contact_info, message_text, status, created_at
		 FROM messages WHERE id = $1`, id)
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
func (s *PostgresStore) ListMessages(status models.RecordStatus) ([]models.Message, error) {
	query := `SELECT id, customer_name, contact_info, message_text, status, created_at FROM messages`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
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
func (s *PostgresStore) UpdateMessageStatus(id int64, status models.RecordStatus) error {
	res, err := s.db.Exec(`UPDATE messages SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update message status failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}
