package feedback

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/zentiam/assistd/internal/knowledge"
	"github.com/zentiam/assistd/internal/learning"
	"github.com/zentiam/assistd/internal/storage"
)

func newTestCollector(t *testing.T) (*Collector, *storage.Store) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ks, err := knowledge.NewStore(db, logger, 1<<20)
	if err != nil {
		t.Fatalf("creating knowledge store: %v", err)
	}
	return NewCollector(db, learning.NewQueue(db, ks, logger), logger), db
}

// seedExchange stores a user question and the bot's reply, returning the bot
// message's sequence number.
func seedExchange(t *testing.T, db *storage.Store, sessionID, question, reply string) int {
	t.Helper()
	if err := db.CreateSession(storage.Session{ID: sessionID}); err != nil {
		t.Fatalf("creating session: %v", err)
	}
	if _, err := db.AppendMessage(sessionID, storage.Message{Sender: storage.SenderUser, Body: question}); err != nil {
		t.Fatalf("appending question: %v", err)
	}
	bot, err := db.AppendMessage(sessionID, storage.Message{Sender: storage.SenderBot, Body: reply})
	if err != nil {
		t.Fatalf("appending reply: %v", err)
	}
	return bot.Seq
}

func TestRecordPositiveFeedback(t *testing.T) {
	c, db := newTestCollector(t)
	seq := seedExchange(t, db, "sess-1", "what services do you offer", "We do consulting.")

	if err := c.Record("sess-1", seq, storage.RatingPositive, ""); err != nil {
		t.Fatalf("recording: %v", err)
	}

	events, err := c.ListBySession("sess-1")
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(events) != 1 || events[0].Rating != storage.RatingPositive {
		t.Fatalf("events = %+v, want one positive", events)
	}
	if events[0].UserQuestion != "what services do you offer" {
		t.Errorf("user question = %q", events[0].UserQuestion)
	}

	// The rated message is marked.
	msg, err := db.GetMessage("sess-1", seq)
	if err != nil {
		t.Fatalf("loading message: %v", err)
	}
	if msg.Metadata["feedback"] != storage.RatingPositive {
		t.Errorf("message metadata = %+v", msg.Metadata)
	}

	// Positive feedback never reaches the learning queue.
	if n, err := db.CountLearningItems(storage.LearningPending); err != nil || n != 0 {
		t.Errorf("pending items = %d err=%v, want 0", n, err)
	}
}

func TestRapidNegativesEnqueueOnce(t *testing.T) {
	c, db := newTestCollector(t)
	seq := seedExchange(t, db, "sess-1", "do you ship abroad", "I don't know that yet.")

	if err := c.Record("sess-1", seq, storage.RatingNegative, "wrong answer"); err != nil {
		t.Fatalf("first negative: %v", err)
	}
	if err := c.Record("sess-1", seq, storage.RatingNegative, "still wrong"); err != nil {
		t.Fatalf("second negative: %v", err)
	}

	if n, err := db.CountLearningItems(storage.LearningPending); err != nil || n != 1 {
		t.Fatalf("pending items = %d err=%v, want exactly 1", n, err)
	}

	// Both events are still recorded for metrics.
	events, err := c.ListBySession("sess-1")
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}
}

func TestRecordValidation(t *testing.T) {
	c, db := newTestCollector(t)
	seq := seedExchange(t, db, "sess-1", "question", "answer")

	if err := c.Record("sess-1", seq, "meh", ""); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("bad rating: err = %v, want ErrInvalidRating", err)
	}
	// seq-1 is the user's own message.
	if err := c.Record("sess-1", seq-1, storage.RatingPositive, ""); !errors.Is(err, ErrNotBotMessage) {
		t.Errorf("user message: err = %v, want ErrNotBotMessage", err)
	}
	if err := c.Record("sess-1", 99, storage.RatingPositive, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown seq: err = %v, want ErrNotFound", err)
	}
	if err := c.Record("ghost", 0, storage.RatingPositive, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown session: err = %v, want ErrNotFound", err)
	}
}
