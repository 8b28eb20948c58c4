// Package feedback records explicit helpful/not-helpful ratings on bot
// replies and routes the bad ones into the learning queue.
package feedback

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zentiam/assistd/internal/learning"
	"github.com/zentiam/assistd/internal/storage"
)

var (
	ErrInvalidRating = errors.New("rating must be positive or negative")
	ErrNotBotMessage = errors.New("feedback target is not a bot message")
)

type Collector struct {
	db    *storage.Store
	queue *learning.Queue
	log   *slog.Logger
}

func NewCollector(db *storage.Store, queue *learning.Queue, logger *slog.Logger) *Collector {
	return &Collector{db: db, queue: queue, log: logger}
}

// Record stores one feedback event against a bot message. A negative rating
// enqueues the exchange for review; the queue deduplicates repeated clicks.
func (c *Collector) Record(sessionID string, messageSeq int, rating, comment string) error {
	if rating != storage.RatingPositive && rating != storage.RatingNegative {
		return ErrInvalidRating
	}

	msg, err := c.db.GetMessage(sessionID, messageSeq)
	if err != nil {
		return err
	}
	if msg.Sender != storage.SenderBot {
		return ErrNotBotMessage
	}

	userQuestion := c.precedingUserQuestion(sessionID, messageSeq)

	if err := c.db.InsertFeedbackEvent(storage.FeedbackEvent{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		MessageSeq:   messageSeq,
		Rating:       rating,
		Comment:      comment,
		UserQuestion: userQuestion,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("storing feedback event: %w", err)
	}

	if err := c.db.SetMessageMetadata(sessionID, messageSeq, "feedback", rating); err != nil {
		c.log.Warn("marking message feedback", "session_id", sessionID, "seq", messageSeq, "error", err)
	}

	if rating == storage.RatingNegative && userQuestion != "" {
		if _, err := c.queue.Enqueue(sessionID, userQuestion, msg.Body, comment, storage.LearningRatingNegative); err != nil {
			return fmt.Errorf("enqueueing negative feedback: %w", err)
		}
	}

	c.log.Debug("feedback recorded", "session_id", sessionID, "seq", messageSeq, "rating", rating)
	return nil
}

// precedingUserQuestion walks back from a bot message to the user message it
// answered.
func (c *Collector) precedingUserQuestion(sessionID string, botSeq int) string {
	for seq := botSeq - 1; seq >= 0; seq-- {
		msg, err := c.db.GetMessage(sessionID, seq)
		if err != nil {
			return ""
		}
		if msg.Sender == storage.SenderUser {
			return msg.Body
		}
	}
	return ""
}

// ListBySession returns a session's feedback events, oldest first.
func (c *Collector) ListBySession(sessionID string) ([]storage.FeedbackEvent, error) {
	return c.db.ListFeedbackBySession(sessionID)
}
