package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateSession inserts a new session row. The caller supplies the ID and
// creation time (the session manager generates UUIDs).
func (s *Store) CreateSession(sess Session) error {
	status := sess.Status
	if status == "" {
		status = SessionActive
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, created_at, updated_at, status, user_name, user_email, user_phone)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, fmtTime(sess.CreatedAt), fmtTime(sess.CreatedAt), status,
		sess.UserName, sess.UserEmail, sess.UserPhone,
	)
	return err
}

// GetSession loads a session with its full message history and question sets.
func (s *Store) GetSession(id string) (Session, error) {
	var sess Session
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, created_at, updated_at, status, user_name, user_email, user_phone
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &createdAt, &updatedAt, &sess.Status, &sess.UserName, &sess.UserEmail, &sess.UserPhone)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Session{}, fmt.Errorf("parsing updated_at: %w", err)
	}

	if sess.Messages, err = s.listMessages(id); err != nil {
		return Session{}, err
	}
	if sess.Answered, sess.Unanswered, err = s.QuestionSets(id); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Store) listMessages(sessionID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT seq, sender, body, metadata, created_at
		FROM messages WHERE session_id = ? ORDER BY seq ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var metadata, createdAt string
	if err := row.Scan(&m.Seq, &m.Sender, &m.Body, &metadata, &createdAt); err != nil {
		return Message{}, err
	}
	if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
		return Message{}, fmt.Errorf("parsing metadata for message %d: %w", m.Seq, err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Message{}, fmt.Errorf("parsing created_at for message %d: %w", m.Seq, err)
	}
	m.CreatedAt = t
	return m, nil
}

// AppendMessage appends a message to a session, assigning the next sequence
// number. Returns ErrNotFound for an unknown session.
func (s *Store) AppendMessage(sessionID string, m Message) (Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Message{}, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow("SELECT status FROM sessions WHERE id = ?", sessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}

	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(seq)+1, 0) FROM messages WHERE session_id = ?", sessionID,
	).Scan(&m.Seq); err != nil {
		return Message{}, fmt.Errorf("computing next seq: %w", err)
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Metadata == nil {
		m.Metadata = map[string]string{}
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return Message{}, fmt.Errorf("marshalling metadata: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO messages (session_id, seq, sender, body, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, m.Seq, m.Sender, m.Body, string(metadata), fmtTime(m.CreatedAt),
	); err != nil {
		return Message{}, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", fmtTime(m.CreatedAt), sessionID); err != nil {
		return Message{}, fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("committing append: %w", err)
	}
	return m, nil
}

// GetMessage returns a single message by session and sequence number.
func (s *Store) GetMessage(sessionID string, seq int) (Message, error) {
	row := s.db.QueryRow(`
		SELECT seq, sender, body, metadata, created_at
		FROM messages WHERE session_id = ? AND seq = ?`, sessionID, seq,
	)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return Message{}, ErrNotFound
	}
	return m, err
}

// SetMessageMetadata sets one metadata key on an existing message.
func (s *Store) SetMessageMetadata(sessionID string, seq int, key, value string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning metadata transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(
		"SELECT metadata FROM messages WHERE session_id = ? AND seq = ?", sessionID, seq,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var meta map[string]string
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return fmt.Errorf("parsing metadata: %w", err)
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta[key] = value

	updated, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE messages SET metadata = ? WHERE session_id = ? AND seq = ?",
		string(updated), sessionID, seq,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateSessionContact overwrites the captured contact fields.
func (s *Store) UpdateSessionContact(id, name, email, phone string) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET user_name = ?, user_email = ?, user_phone = ?, updated_at = ?
		WHERE id = ?`,
		name, email, phone, fmtTime(time.Now()), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertQuestionOutcome records the latest answer classification for a
// normalized question. A question lives in exactly one of the answered or
// unanswered sets; a later outcome overwrites the earlier one.
func (s *Store) UpsertQuestionOutcome(sessionID, question string, answered bool, at time.Time) error {
	answeredInt := 0
	if answered {
		answeredInt = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO session_questions (session_id, question, answered, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, question) DO UPDATE SET
			answered = excluded.answered, updated_at = excluded.updated_at`,
		sessionID, question, answeredInt, fmtTime(at),
	)
	return err
}

// QuestionSets returns the answered and unanswered normalized questions of a session.
func (s *Store) QuestionSets(sessionID string) (answered, unanswered []string, err error) {
	rows, err := s.db.Query(`
		SELECT question, answered FROM session_questions
		WHERE session_id = ? ORDER BY updated_at ASC, question ASC`, sessionID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var q string
		var a int
		if err := rows.Scan(&q, &a); err != nil {
			return nil, nil, err
		}
		if a == 1 {
			answered = append(answered, q)
		} else {
			unanswered = append(unanswered, q)
		}
	}
	return answered, unanswered, rows.Err()
}

// ListSessionSummaries returns recent sessions, newest first. When
// onlyWithMessages is set, empty sessions (created but never used) are skipped.
func (s *Store) ListSessionSummaries(limit, offset int, onlyWithMessages bool) ([]SessionSummary, error) {
	query := `
		SELECT s.id, s.created_at, s.updated_at, s.status, s.user_name, s.user_email, s.user_phone,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id),
			(SELECT COUNT(*) FROM session_questions q WHERE q.session_id = s.id AND q.answered = 1),
			(SELECT COUNT(*) FROM session_questions q WHERE q.session_id = s.id AND q.answered = 0)
		FROM sessions s`
	if onlyWithMessages {
		query += ` WHERE EXISTS (SELECT 1 FROM messages m WHERE m.session_id = s.id)`
	}
	query += ` ORDER BY s.created_at DESC, s.id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// ListSessionsForSync returns sessions created strictly after the cursor
// position, oldest first, so the exporter can advance in order. Sessions
// created in the same second as the cursor are disambiguated by id.
func (s *Store) ListSessionsForSync(after time.Time, afterID string, limit int) ([]SessionSummary, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.created_at, s.updated_at, s.status, s.user_name, s.user_email, s.user_phone,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id),
			(SELECT COUNT(*) FROM session_questions q WHERE q.session_id = s.id AND q.answered = 1),
			(SELECT COUNT(*) FROM session_questions q WHERE q.session_id = s.id AND q.answered = 0)
		FROM sessions s
		WHERE (s.created_at > ? OR (s.created_at = ? AND s.id > ?))
			AND EXISTS (SELECT 1 FROM messages m WHERE m.session_id = s.id)
		ORDER BY s.created_at ASC, s.id ASC
		LIMIT ?`,
		fmtTime(after), fmtTime(after), afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]SessionSummary, error) {
	var results []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var createdAt, updatedAt string
		if err := rows.Scan(
			&sum.ID, &createdAt, &updatedAt, &sum.Status,
			&sum.UserName, &sum.UserEmail, &sum.UserPhone,
			&sum.MessageCount, &sum.AnsweredCount, &sum.UnansweredCount,
		); err != nil {
			return nil, err
		}
		var err error
		if sum.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if sum.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, sum)
	}
	return results, rows.Err()
}

// CloseSession archives a session. Closed sessions keep their history.
func (s *Store) CloseSession(id string) error {
	res, err := s.db.Exec(
		"UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?",
		SessionClosed, fmtTime(time.Now()), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
