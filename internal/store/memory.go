package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/util"
)

// Compile-time checks that InMemoryStore implements the storage contracts.
var (
	_ Store      = (*InMemoryStore)(nil)
	_ OutboxRepo = (*InMemoryStore)(nil)
)

// InMemoryStore keeps all records in process memory. It is used by
// tests and by local development where persistence between restarts
// does not matter.
type InMemoryStore struct {
	mu            sync.Mutex
	nextID        int64
	orders        []models.Order
	schedules     []models.Schedule
	messages      []models.Message
	orderTokens   map[string]int64
	scheduleToken map[string]int64
	messageTokens map[string]int64
	notifications map[string]*Notification
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:        1,
		orderTokens:   make(map[string]int64),
		scheduleToken: make(map[string]int64),
		messageTokens: make(map[string]int64),
		notifications: make(map[string]*Notification),
	}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// SaveOrder stores a completed order. A retried save with the same
// idempotency token returns the existing id without appending a
// second record.
func (s *InMemoryStore) SaveOrder(o *models.Order, idempotencyToken string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idempotencyToken != "" {
		if existing, ok := s.orderTokens[idempotencyToken]; ok {
			o.ID = existing
			return existing, nil
		}
	}
	id := s.allocID()
	o.ID = id
	s.orders = append(s.orders, *o)
	if idempotencyToken != "" {
		s.orderTokens[idempotencyToken] = id
	}
	return id, nil
}

// GetOrder retrieves an order by id.
func (s *InMemoryStore) GetOrder(id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			o := s.orders[i]
			return &o, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

// ListOrders returns orders, newest first, optionally filtered by status.
func (s *InMemoryStore) ListOrders(status models.RecordStatus) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		if status == "" || s.orders[i].Status == status {
			out = append(out, s.orders[i])
		}
	}
	return out, nil
}

// UpdateOrderStatus updates an order's status.
func (s *InMemoryStore) UpdateOrderStatus(id int64, status models.RecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = status
			return nil
		}
	}
	return models.ErrRecordNotFound
}

// SaveSchedule stores a completed consultation request. Idempotency
// behaves as in SaveOrder.
func (s *InMemoryStore) SaveSchedule(sc *models.Schedule, idempotencyToken string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idempotencyToken != "" {
		if existing, ok := s.scheduleToken[idempotencyToken]; ok {
			sc.ID = existing
			return existing, nil
		}
	}
	id := s.allocID()
	sc.ID = id
	s.schedules = append(s.schedules, *sc)
	if idempotencyToken != "" {
		s.scheduleToken[idempotencyToken] = id
	}
	return id, nil
}

// GetSchedule retrieves a schedule by id.
func (s *InMemoryStore) GetSchedule(id int64) (*models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.schedules {
		if s.schedules[i].ID == id {
			sc := s.schedules[i]
			return &sc, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

// ListSchedules returns schedules, newest first, optionally filtered by status.
func (s *InMemoryStore) ListSchedules(status models.RecordStatus) ([]models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Schedule
	for i := len(s.schedules) - 1; i >= 0; i-- {
		if status == "" || s.schedules[i].Status == status {
			out = append(out, s.schedules[i])
		}
	}
	return out, nil
}

// UpdateScheduleStatus updates a schedule's status.
func (s *InMemoryStore) UpdateScheduleStatus(id int64, status models.RecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.schedules {
		if s.schedules[i].ID == id {
			s.schedules[i].Status = status
			return nil
		}
	}
	return models.ErrRecordNotFound
}

// SaveMessage stores a completed direct message. Idempotency behaves
// as in SaveOrder.
func (s *InMemoryStore) SaveMessage(m *models.Message, idempotencyToken string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idempotencyToken != "" {
		if existing, ok := s.messageTokens[idempotencyToken]; ok {
			m.ID = existing
			return existing, nil
		}
	}
	id := s.allocID()
	m.ID = id
	s.messages = append(s.messages, *m)
	if idempotencyToken != "" {
		s.messageTokens[idempotencyToken] = id
	}
	return id, nil
}

// GetMessage retrieves a direct message by id.
func (s *InMemoryStore) GetMessage(id int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			m := s.messages[i]
			return &m, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

// ListMessages returns direct messages, newest first, optionally filtered by status.
func (s *InMemoryStore) ListMessages(status models.RecordStatus) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		if status == "" || s.messages[i].Status == status {
			out = append(out, s.messages[i])
		}
	}
	return out, nil
}

// UpdateMessageStatus updates a direct message's status.
func (s *InMemoryStore) UpdateMessageStatus(id int64, status models.RecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Status = status
			return nil
		}
	}
	return models.ErrRecordNotFound
}

// EnqueueNotification queues an owner notification, deduplicating on
// non-terminal notifications sharing the same dedupe key.
func (s *InMemoryStore) EnqueueNotification(recordKind string, recordID int64, target, summary, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, n := range s.notifications {
			if n.DedupeKey == dedupeKey && n.Status != NotificationStatusSent && n.Status != NotificationStatusDead {
				return n.ID, nil
			}
		}
	}
	now := time.Now().UTC()
	n := &Notification{
		ID:         util.GenerateRandomID("ntf_", 32),
		RecordKind: recordKind,
		RecordID:   recordID,
		Target:     target,
		Summary:    summary,
		Status:     NotificationStatusQueued,
		DedupeKey:  dedupeKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.notifications[n.ID] = n
	return n.ID, nil
}

// ClaimDueNotifications selects up to limit queued notifications that
// are due and marks them as sending.
func (s *InMemoryStore) ClaimDueNotifications(now time.Time, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []Notification
	for _, n := range s.notifications {
		if len(claimed) >= limit {
			break
		}
		if n.Status != NotificationStatusQueued {
			continue
		}
		if n.NextAttemptAt != nil && n.NextAttemptAt.After(now) {
			continue
		}
		n.Status = NotificationStatusSending
		n.UpdatedAt = time.Now().UTC()
		claimed = append(claimed, *n)
	}
	return claimed, nil
}

// MarkNotificationSent marks a notification as delivered.
func (s *InMemoryStore) MarkNotificationSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return models.ErrRecordNotFound
	}
	n.Status = NotificationStatusSent
	n.LastError = ""
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// FailNotification records a failed attempt, requeueing the
// notification or dead-lettering it once maxAttempts is reached.
func (s *InMemoryStore) FailNotification(id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return models.ErrRecordNotFound
	}
	n.Attempts++
	n.LastError = errMsg
	n.UpdatedAt = time.Now().UTC()
	if n.Attempts < maxAttempts {
		n.Status = NotificationStatusQueued
		n.NextAttemptAt = &nextAttemptAt
	} else {
		n.Status = NotificationStatusDead
	}
	return nil
}

// RequeueStaleSendingNotifications moves notifications stuck in the
// sending state back to queued.
func (s *InMemoryStore) RequeueStaleSendingNotifications(staleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.notifications {
		if n.Status == NotificationStatusSending && n.UpdatedAt.Before(staleBefore) {
			n.Status = NotificationStatusQueued
			n.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

// ListDeadNotifications returns dead-lettered notifications, most
// recently failed first.
func (s *InMemoryStore) ListDeadNotifications() ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dead []Notification
	for _, n := range s.notifications {
		if n.Status == NotificationStatusDead {
			dead = append(dead, *n)
		}
	}
	// Stable ordering for callers and tests.
	sort.Slice(dead, func(i, j int) bool {
		if !dead[i].UpdatedAt.Equal(dead[j].UpdatedAt) {
			return dead[i].UpdatedAt.After(dead[j].UpdatedAt)
		}
		return dead[i].ID < dead[j].ID
	})
	return dead, nil
}
