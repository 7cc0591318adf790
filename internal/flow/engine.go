package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/validate"
)

// Default engine configuration constants
const (
	// DefaultSessionTimeout is the inactivity threshold after which an
	// in-progress session is discarded.
	DefaultSessionTimeout = 30 * time.Minute
	// DefaultSweepInterval is how often the background sweeper evicts
	// expired sessions that were never touched again.
	DefaultSweepInterval = 5 * time.Minute
)

// RecordStore is the subset of the record store the engine needs to
// persist completed flows. Saves are idempotent on the supplied token.
type RecordStore interface {
	SaveOrder(o *models.Order, idempotencyToken string) (int64, error)
	SaveSchedule(s *models.Schedule, idempotencyToken string) (int64, error)
	SaveMessage(m *models.Message, idempotencyToken string) (int64, error)
}

// Notifier is told about every persisted record. Implementations must
// return quickly; delivery happens off the request path.
type Notifier interface {
	RecordCompleted(ctx context.Context, rec models.Record)
}

// Engine walks per-user sessions through registered flow definitions.
type Engine struct {
	store    RecordStore
	notifier Notifier
	table    *sessionTable
	timeout  time.Duration
	sweep    time.Duration
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessionTimeout sets the inactivity threshold for session expiry.
func WithSessionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithSweepInterval sets how often the background sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sweep = d
		}
	}
}

// WithClock overrides the engine's time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a flow engine over the given record store. The
// notifier may be nil, in which case completions are persisted but not
// announced.
func NewEngine(store RecordStore, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		table:    newSessionTable(),
		timeout:  DefaultSessionTimeout,
		sweep:    DefaultSweepInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	slog.Debug("Engine created", "sessionTimeout", e.timeout, "sweepInterval", e.sweep)
	return e
}

// Start begins (or restarts) a flow for the user. An existing session
// for the same (user, kind) is discarded: last writer wins, partial data
// from the prior attempt is never merged.
func (e *Engine) Start(userID string, kind models.FlowKind) (models.AdvanceResult, error) {
	def, ok := Get(kind)
	if !ok {
		return models.AdvanceResult{}, fmt.Errorf("%w: %s", models.ErrUnknownFlowKind, kind)
	}

	key := sessionKey(userID, kind)
	lock := e.table.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if prior := e.table.get(key); prior != nil {
		slog.Debug("Engine.Start: discarding prior session", "key", key, "priorStep", prior.StepIndex)
	}
	now := e.now()
	e.table.put(&Session{
		UserID:       userID,
		Kind:         kind,
		Values:       make(map[string]string),
		CreatedAt:    now,
		LastActivity: now,
	})

	slog.Debug("Engine.Start: session created", "key", key)
	return models.AdvanceResult{
		Status: models.AdvanceNeedMore,
		Prompt: def.Steps[0].Prompt,
		Kind:   kind,
	}, nil
}

// SubmitStep pushes one raw answer into the user's session for the
// given flow kind. If no session exists one is created and the input is
// taken as the first step's answer.
func (e *Engine) SubmitStep(ctx context.Context, userID string, kind models.FlowKind, raw string) (models.AdvanceResult, error) {
	def, ok := Get(kind)
	if !ok {
		return models.AdvanceResult{}, fmt.Errorf("%w: %s", models.ErrUnknownFlowKind, kind)
	}

	key := sessionKey(userID, kind)
	lock := e.table.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	now := e.now()
	sess := e.table.get(key)
	if sess != nil && e.expired(sess, now) {
		e.table.delete(key)
		slog.Info("Engine.SubmitStep: session timed out", "key", key, "lastActivity", sess.LastActivity)
		return models.AdvanceResult{
			Status:  models.AdvanceTimedOut,
			Message: "Your session expired. Please start again.",
			Kind:    kind,
		}, nil
	}
	if sess == nil {
		sess = &Session{
			UserID:       userID,
			Kind:         kind,
			Values:       make(map[string]string),
			CreatedAt:    now,
			LastActivity: now,
		}
		e.table.put(sess)
		slog.Debug("Engine.SubmitStep: session created on first input", "key", key)
	}

	// A finished record whose save previously failed: retry the save,
	// ignoring the new input. No answer is ever re-collected.
	if sess.pending != nil {
		return e.finish(ctx, sess)
	}

	step := def.Steps[sess.StepIndex]
	value, rejectMsg := e.evaluate(step, raw, def)
	sess.LastActivity = now
	if rejectMsg != "" {
		slog.Debug("Engine.SubmitStep: input rejected", "key", key, "field", step.Field, "message", rejectMsg)
		return models.AdvanceResult{
			Status:  models.AdvanceRejected,
			Message: rejectMsg,
			Kind:    kind,
		}, nil
	}

	sess.Values[step.Field] = value
	sess.StepIndex++
	slog.Debug("Engine.SubmitStep: input accepted", "key", key, "field", step.Field, "stepIndex", sess.StepIndex)

	if sess.StepIndex < len(def.Steps) {
		return models.AdvanceResult{
			Status: models.AdvanceNeedMore,
			Prompt: def.Steps[sess.StepIndex].Prompt,
			Kind:   kind,
		}, nil
	}

	rec, err := buildRecord(kind, sess.Values, now)
	if err != nil {
		// All fields were validated at their own step; reaching this is a
		// programming error in the definitions.
		e.table.delete(key)
		slog.Error("Engine.SubmitStep: record build failed", "key", key, "error", err)
		return models.AdvanceResult{}, err
	}
	sess.pending = rec
	sess.pendingToken = key + ":" + now.UTC().Format(time.RFC3339Nano)
	return e.finish(ctx, sess)
}

// Cancel discards the user's in-progress session for the flow kind. It
// is a no-op when no session exists; no record is ever produced.
func (e *Engine) Cancel(userID string, kind models.FlowKind) models.AdvanceResult {
	key := sessionKey(userID, kind)
	lock := e.table.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if e.table.get(key) != nil {
		e.table.delete(key)
		slog.Info("Engine.Cancel: session discarded", "key", key)
	}
	return models.AdvanceResult{
		Status:  models.AdvanceCancelled,
		Message: "Cancelled. Nothing was saved.",
		Kind:    kind,
	}
}

// ActiveSessions reports the number of in-progress sessions.
func (e *Engine) ActiveSessions() int {
	return e.table.len()
}

// Run starts the periodic sweeper that evicts expired sessions. It
// blocks until the context is cancelled. Lazy expiry on touch remains
// the primary mechanism; the sweeper only reclaims abandoned sessions.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("Engine.Run: starting session sweeper", "interval", e.sweep)
	ticker := time.NewTicker(e.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Engine.Run: stopping")
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

func (e *Engine) sweepExpired() {
	cutoff := e.now().Add(-e.timeout)
	for _, key := range e.table.expiredKeys(cutoff) {
		lock := e.table.keyLock(key)
		lock.Lock()
		if sess := e.table.get(key); sess != nil && sess.LastActivity.Before(cutoff) {
			e.table.delete(key)
			slog.Info("Engine.sweepExpired: session discarded", "key", key)
		}
		lock.Unlock()
	}
}

func (e *Engine) expired(sess *Session, now time.Time) bool {
	return e.timeout > 0 && now.Sub(sess.LastActivity) > e.timeout
}

// evaluate applies skip words and field validation to one step's input.
// It returns the normalized value, or a non-empty rejection message.
func (e *Engine) evaluate(step Step, raw string, def Definition) (string, string) {
	trimmed := strings.TrimSpace(raw)
	for _, word := range step.SkipWords {
		if strings.EqualFold(trimmed, word) {
			return "", ""
		}
	}
	res := validate.Validate(step.Field, raw, def.Rules())
	if !res.Valid {
		return "", res.Message
	}
	return res.Value, ""
}

// finish persists the session's pending record and, on success, destroys
// the session and announces the completion. On failure the session is
// kept so the caller can retry the save.
func (e *Engine) finish(ctx context.Context, sess *Session) (models.AdvanceResult, error) {
	key := sess.Key()
	id, err := e.save(sess.pending, sess.pendingToken)
	if err != nil {
		slog.Error("Engine.finish: save failed, session retained for retry", "key", key, "error", err)
		return models.AdvanceResult{}, fmt.Errorf("%w: %v", models.ErrSaveFailed, err)
	}

	rec := sess.pending
	e.table.delete(key)
	slog.Info("Engine.finish: flow completed", "key", key, "kind", sess.Kind, "recordID", id)

	if e.notifier != nil {
		e.notifier.RecordCompleted(ctx, rec)
	}
	return models.AdvanceResult{
		Status:   models.AdvanceCompleted,
		RecordID: id,
		Kind:     sess.Kind,
		Message:  completionMessage(sess.Kind),
	}, nil
}

func (e *Engine) save(rec models.Record, token string) (int64, error) {
	switch r := rec.(type) {
	case *models.Order:
		return e.store.SaveOrder(r, token)
	case *models.Schedule:
		return e.store.SaveSchedule(r, token)
	case *models.Message:
		return e.store.SaveMessage(r, token)
	default:
		return 0, fmt.Errorf("%w: %T", models.ErrUnknownFlowKind, rec)
	}
}

func buildRecord(kind models.FlowKind, values map[string]string, now time.Time) (models.Record, error) {
	switch kind {
	case models.FlowKindOrder:
		quantity, err := strconv.Atoi(values["quantity"])
		if err != nil {
			return nil, fmt.Errorf("order quantity not numeric: %w", err)
		}
		return &models.Order{
			CustomerName: values["name"],
			CompanyName:  values["company"],
			ProductType:  values["product"],
			Quantity:     quantity,
			DeliveryDate: values["delivery date"],
			ContactInfo:  values["contact"],
			Status:       models.StatusPending,
			CreatedAt:    now,
		}, nil
	case models.FlowKindSchedule:
		return &models.Schedule{
			CustomerName:      values["name"],
			ContactInfo:       values["contact"],
			PreferredDatetime: values["preferred date/time"],
			Status:            models.StatusPending,
			CreatedAt:         now,
		}, nil
	case models.FlowKindMessage:
		return &models.Message{
			CustomerName: values["name"],
			ContactInfo:  values["contact"],
			MessageText:  values["message"],
			Status:       models.StatusPending,
			CreatedAt:    now,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownFlowKind, kind)
	}
}

func completionMessage(kind models.FlowKind) string {
	switch kind {
	case models.FlowKindOrder:
		return "Your order has been placed successfully! We will contact you soon."
	case models.FlowKindSchedule:
		return "Your consultation has been scheduled! We will confirm the details with you."
	case models.FlowKindMessage:
		return "Your message has been sent successfully! We will get back to you soon."
	default:
		return "Done."
	}
}
