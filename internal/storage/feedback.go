package storage

import (
	"fmt"
	"time"
)

// InsertFeedbackEvent appends a feedback event. Events are never updated.
func (s *Store) InsertFeedbackEvent(ev FeedbackEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO feedback_events (id, session_id, message_seq, rating, comment, user_question, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, ev.MessageSeq, ev.Rating, ev.Comment, ev.UserQuestion, fmtTime(ev.CreatedAt),
	)
	return err
}

// ListFeedbackBySession returns all feedback events for a session, oldest first.
func (s *Store) ListFeedbackBySession(sessionID string) ([]FeedbackEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, message_seq, rating, comment, user_question, created_at
		FROM feedback_events WHERE session_id = ? ORDER BY created_at ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []FeedbackEvent
	for rows.Next() {
		var ev FeedbackEvent
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.MessageSeq, &ev.Rating, &ev.Comment, &ev.UserQuestion, &createdAt); err != nil {
			return nil, err
		}
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// FeedbackCounts returns total/positive/negative event counts since the given
// time. A zero since counts everything.
func (s *Store) FeedbackCounts(since time.Time) (total, positive, negative int, err error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN rating = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN rating = ? THEN 1 ELSE 0 END), 0)
		FROM feedback_events`
	args := []any{RatingPositive, RatingNegative}
	if !since.IsZero() {
		query += " WHERE created_at >= ?"
		args = append(args, fmtTime(since))
	}
	err = s.db.QueryRow(query, args...).Scan(&total, &positive, &negative)
	return total, positive, negative, err
}

// FeedbackTrend returns per-day positive/negative counts for the last `days`
// days ending at `now`, oldest day first. Days without feedback appear with
// zero counts so the series has a fixed length.
func (s *Store) FeedbackTrend(days int, now time.Time) ([]TrendPoint, error) {
	since := now.UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	rows, err := s.db.Query(`
		SELECT substr(created_at, 1, 10),
			COALESCE(SUM(CASE WHEN rating = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN rating = ? THEN 1 ELSE 0 END), 0)
		FROM feedback_events
		WHERE created_at >= ?
		GROUP BY substr(created_at, 1, 10)`,
		RatingPositive, RatingNegative, fmtTime(since),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := make(map[string]TrendPoint)
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.Positive, &p.Negative); err != nil {
			return nil, err
		}
		byDay[p.Date] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trend := make([]TrendPoint, 0, days)
	for i := 0; i < days; i++ {
		date := since.AddDate(0, 0, i).Format("2006-01-02")
		p, ok := byDay[date]
		if !ok {
			p = TrendPoint{Date: date}
		}
		trend = append(trend, p)
	}
	return trend, nil
}

// TopUnansweredQuestions ranks normalized questions currently in any
// session's unanswered set by occurrence count, ties broken by the most
// recent occurrence.
func (s *Store) TopUnansweredQuestions(limit int) ([]UnansweredQuestion, error) {
	rows, err := s.db.Query(`
		SELECT question, COUNT(*), MAX(updated_at)
		FROM session_questions WHERE answered = 0
		GROUP BY question
		ORDER BY COUNT(*) DESC, MAX(updated_at) DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []UnansweredQuestion
	for rows.Next() {
		var q UnansweredQuestion
		var lastSeen string
		if err := rows.Scan(&q.Question, &q.Count, &lastSeen); err != nil {
			return nil, err
		}
		if q.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, fmt.Errorf("parsing last seen: %w", err)
		}
		results = append(results, q)
	}
	return results, rows.Err()
}
