package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// insertSnapshotTx records a new knowledge snapshot version inside an open
// transaction and returns the version id. Versions are monotonic.
func insertSnapshotTx(tx *sql.Tx, note string, at time.Time) (int64, error) {
	res, err := tx.Exec("INSERT INTO snapshots (created_at, note) VALUES (?, ?)", fmtTime(at), note)
	if err != nil {
		return 0, fmt.Errorf("inserting snapshot: %w", err)
	}
	version, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading snapshot version: %w", err)
	}
	return version, nil
}

// CurrentSnapshotVersion returns the latest published snapshot version,
// or 0 when no snapshot has been published yet.
func (s *Store) CurrentSnapshotVersion() (int64, error) {
	var v int64
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM snapshots").Scan(&v)
	return v, err
}

// InsertDocument stores a document with its chunks and publishes a new
// snapshot version in one transaction. Either everything lands or nothing does.
func (s *Store) InsertDocument(doc KnowledgeDocument, chunks []Chunk) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning ingest transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO knowledge_documents (id, filename, source, content, uploaded_at)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.Source, doc.Content, fmtTime(doc.UploadedAt),
	); err != nil {
		return 0, fmt.Errorf("inserting document: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO knowledge_chunks (id, document_id, ord, start_offset, body)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.Exec(c.ID, doc.ID, c.Ord, c.StartOffset, c.Body); err != nil {
			return 0, fmt.Errorf("inserting chunk %d: %w", c.Ord, err)
		}
	}

	version, err := insertSnapshotTx(tx, "ingest "+doc.Filename, doc.UploadedAt)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing ingest: %w", err)
	}
	return version, nil
}

// ListDocuments returns document metadata (without content), newest first.
func (s *Store) ListDocuments(limit, offset int) ([]KnowledgeDocument, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, source, uploaded_at
		FROM knowledge_documents ORDER BY uploaded_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []KnowledgeDocument
	for rows.Next() {
		var d KnowledgeDocument
		var uploadedAt string
		if err := rows.Scan(&d.ID, &d.Filename, &d.Source, &uploadedAt); err != nil {
			return nil, err
		}
		if d.UploadedAt, err = parseTime(uploadedAt); err != nil {
			return nil, fmt.Errorf("parsing uploaded_at: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// LoadChunks returns every chunk in the store, in document order. Used to
// rebuild the in-memory snapshot after a mutation.
func (s *Store) LoadChunks() ([]Chunk, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, ord, start_offset, body
		FROM knowledge_chunks ORDER BY document_id ASC, ord ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ord, &c.StartOffset, &c.Body); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// LoadActiveAnswers returns all active approved answers.
func (s *Store) LoadActiveAnswers() ([]ApprovedAnswer, error) {
	rows, err := s.db.Query(`
		SELECT id, question_pattern, answer, context_tags, usage_count, is_active, created_at, updated_at
		FROM approved_answers WHERE is_active = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnswers(rows)
}

// ListApprovedAnswers returns approved answers (active and inactive) for the
// admin listing, newest first, plus the total count.
func (s *Store) ListApprovedAnswers(limit, offset int) ([]ApprovedAnswer, int, error) {
	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM approved_answers").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT id, question_pattern, answer, context_tags, usage_count, is_active, created_at, updated_at
		FROM approved_answers ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	answers, err := scanAnswers(rows)
	return answers, total, err
}

// GetApprovedAnswer returns one approved answer by id.
func (s *Store) GetApprovedAnswer(id string) (ApprovedAnswer, error) {
	row := s.db.QueryRow(`
		SELECT id, question_pattern, answer, context_tags, usage_count, is_active, created_at, updated_at
		FROM approved_answers WHERE id = ?`, id)
	a, err := scanAnswer(row)
	if err == sql.ErrNoRows {
		return ApprovedAnswer{}, ErrNotFound
	}
	return a, err
}

func scanAnswers(rows *sql.Rows) ([]ApprovedAnswer, error) {
	var answers []ApprovedAnswer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func scanAnswer(row rowScanner) (ApprovedAnswer, error) {
	var a ApprovedAnswer
	var tags, createdAt, updatedAt string
	var active int
	if err := row.Scan(&a.ID, &a.Pattern, &a.Answer, &tags, &a.UsageCount, &active, &createdAt, &updatedAt); err != nil {
		return ApprovedAnswer{}, err
	}
	a.Active = active == 1
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return ApprovedAnswer{}, fmt.Errorf("parsing tags for answer %s: %w", a.ID, err)
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return ApprovedAnswer{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ApprovedAnswer{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return a, nil
}

// upsertAnswerTx writes an approved answer inside an open transaction.
// Re-approving an existing pattern updates the answer in place, keeping its
// id, usage count, and creation time. Returns the answer id.
func upsertAnswerTx(tx *sql.Tx, a ApprovedAnswer, at time.Time) (string, error) {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshalling tags: %w", err)
	}

	var existingID string
	err = tx.QueryRow(
		"SELECT id FROM approved_answers WHERE question_pattern = ?", a.Pattern,
	).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`
			INSERT INTO approved_answers (id, question_pattern, answer, context_tags, usage_count, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, 1, ?, ?)`,
			a.ID, a.Pattern, a.Answer, string(tagsJSON), fmtTime(at), fmtTime(at),
		); err != nil {
			return "", fmt.Errorf("inserting approved answer: %w", err)
		}
		return a.ID, nil
	case err != nil:
		return "", err
	default:
		if _, err := tx.Exec(`
			UPDATE approved_answers SET answer = ?, context_tags = ?, is_active = 1, updated_at = ?
			WHERE id = ?`,
			a.Answer, string(tagsJSON), fmtTime(at), existingID,
		); err != nil {
			return "", fmt.Errorf("updating approved answer: %w", err)
		}
		return existingID, nil
	}
}

// UpsertApprovedAnswer writes an answer keyed by its question pattern and
// publishes a new snapshot version. Returns the new version and the answer id.
func (s *Store) UpsertApprovedAnswer(a ApprovedAnswer) (int64, string, error) {
	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, "", fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := upsertAnswerTx(tx, a, now)
	if err != nil {
		return 0, "", err
	}
	version, err := insertSnapshotTx(tx, "upsert answer", now)
	if err != nil {
		return 0, "", err
	}
	if err := tx.Commit(); err != nil {
		return 0, "", fmt.Errorf("committing upsert: %w", err)
	}
	return version, id, nil
}

// UpdateApprovedAnswer overwrites an answer's editable fields by id and
// publishes a new snapshot version. Changing the pattern to one held by a
// different answer returns ErrConflict.
func (s *Store) UpdateApprovedAnswer(a ApprovedAnswer) (int64, error) {
	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	var holder string
	err = tx.QueryRow(
		"SELECT id FROM approved_answers WHERE question_pattern = ? AND id != ?", a.Pattern, a.ID,
	).Scan(&holder)
	if err == nil {
		return 0, ErrConflict
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, fmt.Errorf("marshalling tags: %w", err)
	}
	active := 0
	if a.Active {
		active = 1
	}

	res, err := tx.Exec(`
		UPDATE approved_answers SET question_pattern = ?, answer = ?, context_tags = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		a.Pattern, a.Answer, string(tagsJSON), active, fmtTime(now), a.ID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	version, err := insertSnapshotTx(tx, "update answer", now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing update: %w", err)
	}
	return version, nil
}

// DeleteApprovedAnswer removes an answer and publishes a new snapshot version.
func (s *Store) DeleteApprovedAnswer(id string) (int64, error) {
	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM approved_answers WHERE id = ?", id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	version, err := insertSnapshotTx(tx, "delete answer", now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	return version, nil
}

// IncrementAnswerUsage bumps an answer's retrieval-hit counter. Usage counts
// are advisory (tie-breaking) and do not publish a new snapshot.
func (s *Store) IncrementAnswerUsage(id string) error {
	_, err := s.db.Exec("UPDATE approved_answers SET usage_count = usage_count + 1 WHERE id = ?", id)
	return err
}
