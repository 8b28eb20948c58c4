// Package session owns conversation state: ordered message history, captured
// contact info, and the per-session answered/unanswered question sets.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zentiam/assistd/internal/storage"
)

// Manager serializes mutations per session while letting different sessions
// proceed fully in parallel.
type Manager struct {
	db  *storage.Store
	log *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(db *storage.Store, logger *slog.Logger) *Manager {
	return &Manager{db: db, log: logger, locks: make(map[string]*sync.Mutex)}
}

// sessionLock returns the mutex guarding one session, creating it on first use.
func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Create starts a new active session and returns its id.
func (m *Manager) Create() (string, error) {
	id := uuid.NewString()
	if err := m.db.CreateSession(storage.Session{ID: id, CreatedAt: time.Now().UTC()}); err != nil {
		return "", err
	}
	m.log.Debug("session created", "session_id", id)
	return id, nil
}

// Append adds one message to a session's history. Appends within a session
// are serialized so ordering is total.
func (m *Manager) Append(sessionID, sender, text string, metadata map[string]string) (storage.Message, error) {
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	return m.db.AppendMessage(sessionID, storage.Message{
		Sender:   sender,
		Body:     text,
		Metadata: metadata,
	})
}

// RecordOutcome files a normalized question into the session's answered or
// unanswered set, replacing any earlier classification.
func (m *Manager) RecordOutcome(sessionID, normalizedQuestion string, matched bool) error {
	if normalizedQuestion == "" {
		return nil
	}
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	return m.db.UpsertQuestionOutcome(sessionID, normalizedQuestion, matched, time.Now().UTC())
}

// CaptureContact merges contact details found in a message into the session,
// keeping fields the visitor already gave. Returns the merged contact and
// whether this message added anything new.
func (m *Manager) CaptureContact(sessionID, text string) (Contact, bool, error) {
	found := ExtractContact(text)
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	sess, err := m.db.GetSession(sessionID)
	if err != nil {
		return Contact{}, false, err
	}
	current := Contact{Name: sess.UserName, Email: sess.UserEmail, Phone: sess.UserPhone}

	updated := current
	if updated.Name == "" {
		updated.Name = found.Name
	}
	if updated.Email == "" {
		updated.Email = found.Email
	}
	if updated.Phone == "" {
		updated.Phone = found.Phone
	}
	if updated == current {
		return current, false, nil
	}

	if err := m.db.UpdateSessionContact(sessionID, updated.Name, updated.Email, updated.Phone); err != nil {
		return Contact{}, false, err
	}
	m.log.Debug("contact captured", "session_id", sessionID, "missing", updated.NextMissing())
	return updated, true, nil
}

// Get loads a session with full history and question sets.
func (m *Manager) Get(id string) (storage.Session, error) {
	return m.db.GetSession(id)
}

// List returns session summaries, newest first.
func (m *Manager) List(limit, offset int, onlyWithMessages bool) ([]storage.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.db.ListSessionSummaries(limit, offset, onlyWithMessages)
}

// Close archives a session. History stays readable.
func (m *Manager) Close(id string) error {
	l := m.sessionLock(id)
	l.Lock()
	defer l.Unlock()

	if err := m.db.CloseSession(id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
	return nil
}
