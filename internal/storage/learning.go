package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// EnqueueLearningItem inserts a new pending review item. A unique index on
// (session_id, normalized_question) over pending rows collapses repeated
// negative clicks or resubmits into a single review task; the return value
// reports whether this call created the row.
func (s *Store) EnqueueLearningItem(item LearningItem) (bool, error) {
	status := item.Status
	if status == "" {
		status = LearningPending
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO learning_queue (id, session_id, user_question, normalized_question, bot_response, detailed_feedback, rating, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SessionID, item.UserQuestion, item.NormalizedQuestion,
		item.BotResponse, item.DetailedFeedback, item.Rating, status, fmtTime(item.CreatedAt),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetLearningItem returns one queue item by id.
func (s *Store) GetLearningItem(id string) (LearningItem, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, user_question, normalized_question, bot_response, detailed_feedback, rating, status, created_at, resolved_at
		FROM learning_queue WHERE id = ?`, id)
	item, err := scanLearningItem(row)
	if err == sql.ErrNoRows {
		return LearningItem{}, ErrNotFound
	}
	return item, err
}

// ListLearningItems returns queue items filtered by status (empty = all),
// newest first, plus the total count for the filter.
func (s *Store) ListLearningItems(status string, limit, offset int) ([]LearningItem, int, error) {
	where := ""
	countArgs := []any{}
	listArgs := []any{}
	if status != "" {
		where = " WHERE status = ?"
		countArgs = append(countArgs, status)
		listArgs = append(listArgs, status)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM learning_queue"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs = append(listArgs, limit, offset)
	rows, err := s.db.Query(`
		SELECT id, session_id, user_question, normalized_question, bot_response, detailed_feedback, rating, status, created_at, resolved_at
		FROM learning_queue`+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []LearningItem
	for rows.Next() {
		item, err := scanLearningItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// CountLearningItems counts queue items with the given status.
func (s *Store) CountLearningItems(status string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM learning_queue WHERE status = ?", status).Scan(&count)
	return count, err
}

func scanLearningItem(row rowScanner) (LearningItem, error) {
	var item LearningItem
	var createdAt string
	var resolvedAt sql.NullString
	if err := row.Scan(
		&item.ID, &item.SessionID, &item.UserQuestion, &item.NormalizedQuestion,
		&item.BotResponse, &item.DetailedFeedback, &item.Rating, &item.Status,
		&createdAt, &resolvedAt,
	); err != nil {
		return LearningItem{}, err
	}
	var err error
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return LearningItem{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if resolvedAt.Valid {
		if item.ResolvedAt, err = parseTime(resolvedAt.String); err != nil {
			return LearningItem{}, fmt.Errorf("parsing resolved_at: %w", err)
		}
	}
	return item, nil
}

// resolveItemTx transitions a pending item to a terminal state inside an open
// transaction. A second resolution attempt is ErrConflict, never a silent no-op.
func resolveItemTx(tx *sql.Tx, id, terminal string, at time.Time) error {
	res, err := tx.Exec(`
		UPDATE learning_queue SET status = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		terminal, fmtTime(at), id, LearningPending,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Nothing transitioned: distinguish missing from already-resolved.
	var status string
	err = tx.QueryRow("SELECT status FROM learning_queue WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

// DismissLearningItem marks a pending item dismissed. No knowledge write.
func (s *Store) DismissLearningItem(id string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning dismiss transaction: %w", err)
	}
	defer tx.Rollback()

	if err := resolveItemTx(tx, id, LearningDismissed, at); err != nil {
		return err
	}
	return tx.Commit()
}

// ApproveLearningItem atomically transitions a pending item to approved and
// writes the resulting approved answer plus a new snapshot version. The item
// transition and the knowledge write land together or not at all.
func (s *Store) ApproveLearningItem(itemID string, answer ApprovedAnswer, at time.Time) (int64, string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, "", fmt.Errorf("beginning approve transaction: %w", err)
	}
	defer tx.Rollback()

	if err := resolveItemTx(tx, itemID, LearningApproved, at); err != nil {
		return 0, "", err
	}

	answerID, err := upsertAnswerTx(tx, answer, at)
	if err != nil {
		return 0, "", err
	}

	version, err := insertSnapshotTx(tx, "approve learning item", at)
	if err != nil {
		return 0, "", err
	}

	if err := tx.Commit(); err != nil {
		return 0, "", fmt.Errorf("committing approve: %w", err)
	}
	return version, answerID, nil
}
