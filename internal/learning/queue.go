// Package learning holds the review backlog of exchanges the bot handled
// badly. Items move pending -> approved or pending -> dismissed exactly once;
// approving writes the reviewed answer back into the knowledge base.
package learning

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zentiam/assistd/internal/knowledge"
	"github.com/zentiam/assistd/internal/storage"
)

type Queue struct {
	db        *storage.Store
	knowledge *knowledge.Store
	log       *slog.Logger
}

func NewQueue(db *storage.Store, ks *knowledge.Store, logger *slog.Logger) *Queue {
	return &Queue{db: db, knowledge: ks, log: logger}
}

// Enqueue files a candidate knowledge gap for review. Repeated reports of
// the same question in the same session collapse into the existing pending
// item; returns whether a new item was created.
func (q *Queue) Enqueue(sessionID, userQuestion, botResponse, detailedFeedback, rating string) (bool, error) {
	normalized := knowledge.NormalizeQuestion(userQuestion)
	if normalized == "" {
		return false, nil
	}

	item := storage.LearningItem{
		ID:                 uuid.NewString(),
		SessionID:          sessionID,
		UserQuestion:       userQuestion,
		NormalizedQuestion: normalized,
		BotResponse:        botResponse,
		DetailedFeedback:   detailedFeedback,
		Rating:             rating,
		CreatedAt:          time.Now().UTC(),
	}
	created, err := q.db.EnqueueLearningItem(item)
	if err != nil {
		return false, fmt.Errorf("enqueueing item: %w", err)
	}
	if !created {
		q.log.Debug("learning item already pending", "session_id", sessionID, "question", normalized)
		return false, nil
	}
	q.log.Info("learning item enqueued", "item_id", item.ID, "rating", rating, "question", normalized)
	return true, nil
}

// Approve resolves a pending item and promotes its answer into the knowledge
// base. The administrator's improved answer wins when supplied; otherwise the
// recorded bot response is promoted as-is. Returns the new snapshot version.
// A non-pending item is ErrConflict.
func (q *Queue) Approve(itemID, improvedAnswer string, tags []string) (int64, error) {
	item, err := q.db.GetLearningItem(itemID)
	if err != nil {
		return 0, err
	}

	answerText := improvedAnswer
	if answerText == "" {
		answerText = item.BotResponse
	}

	version, answerID, err := q.db.ApproveLearningItem(itemID, storage.ApprovedAnswer{
		ID:      uuid.NewString(),
		Pattern: item.NormalizedQuestion,
		Answer:  answerText,
		Tags:    tags,
	}, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	if err := q.knowledge.Reload(); err != nil {
		return 0, fmt.Errorf("publishing snapshot after approve: %w", err)
	}
	q.log.Info("learning item approved", "item_id", itemID, "answer_id", answerID, "version", version)
	return version, nil
}

// Dismiss resolves a pending item without touching the knowledge base.
// A non-pending item is ErrConflict.
func (q *Queue) Dismiss(itemID string) error {
	if err := q.db.DismissLearningItem(itemID, time.Now().UTC()); err != nil {
		return err
	}
	q.log.Info("learning item dismissed", "item_id", itemID)
	return nil
}

// List returns items filtered by status (empty for all), newest first, plus
// the total for the filter.
func (q *Queue) List(status string, limit, offset int) ([]storage.LearningItem, int, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.db.ListLearningItems(status, limit, offset)
}

// PendingCount reports how many items await review.
func (q *Queue) PendingCount() (int, error) {
	return q.db.CountLearningItems(storage.LearningPending)
}
