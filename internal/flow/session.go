// Package flow session tracking: one mutable progress record per
// (user identity, flow kind) pair.
package flow

import (
	"sync"
	"time"

	"github.com/BTreeMap/PrintFlow/internal/models"
)

// Session tracks one user's in-progress flow. It is owned exclusively
// by the engine: created on the first input of a flow, mutated on every
// valid input, and destroyed on completion, cancellation, or timeout.
type Session struct {
	UserID       string
	Kind         models.FlowKind
	StepIndex    int
	Values       map[string]string
	CreatedAt    time.Time
	LastActivity time.Time

	// pending holds a finished record whose save failed; the session is
	// retained so the caller can retry without re-collecting input.
	pending      models.Record
	pendingToken string
}

func sessionKey(userID string, kind models.FlowKind) string {
	return userID + ":" + string(kind)
}

// Key returns the session's table key.
func (s *Session) Key() string {
	return sessionKey(s.UserID, s.Kind)
}

// sessionTable is the shared table of in-progress sessions. Access to
// each key is serialized by a per-key mutex so a session never processes
// two inputs concurrently while unrelated sessions proceed in parallel.
type sessionTable struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// locks entries are retained for the life of the process; the set is
	// bounded by the number of distinct (user, kind) pairs seen.
	locks map[string]*sync.Mutex
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing access to the given key.
func (t *sessionTable) keyLock(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

func (t *sessionTable) get(key string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[key]
}

func (t *sessionTable) put(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.Key()] = s
}

func (t *sessionTable) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, key)
}

func (t *sessionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// expiredKeys returns the keys of sessions inactive since before cutoff.
func (t *sessionTable) expiredKeys(cutoff time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var keys []string
	for key, s := range t.sessions {
		if s.LastActivity.Before(cutoff) {
			keys = append(keys, key)
		}
	}
	return keys
}
