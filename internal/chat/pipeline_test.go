package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/zentiam/assistd/internal/answer"
	"github.com/zentiam/assistd/internal/knowledge"
	"github.com/zentiam/assistd/internal/learning"
	"github.com/zentiam/assistd/internal/session"
	"github.com/zentiam/assistd/internal/storage"
)

type fixture struct {
	pipeline *Pipeline
	sessions *session.Manager
	store    *knowledge.Store
	queue    *learning.Queue
	db       *storage.Store
}

func newFixture(t *testing.T) *fixture {
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
	queue := learning.NewQueue(db, ks, logger)
	sessions := session.NewManager(db, logger)
	engine := answer.NewEngine(answer.Config{TagThreshold: 0.6, ChunkThreshold: 0.4}, nil, logger)

	return &fixture{
		pipeline: NewPipeline(sessions, ks, engine, queue, logger),
		sessions: sessions,
		store:    ks,
		queue:    queue,
		db:       db,
	}
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	id, err := f.sessions.Create()
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return id
}

func TestUnansweredQuestionQueuesForReview(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)

	r, err := f.pipeline.Handle(context.Background(), id, "What is your pricing?")
	if err != nil {
		t.Fatalf("handling: %v", err)
	}
	if r.Matched || r.Source != answer.SourceFallback {
		t.Fatalf("reply = %+v, want fallback on a fresh store", r)
	}
	if r.Text == "" {
		t.Error("empty fallback reply")
	}

	// The gap is filed once, pending, rated unanswered.
	items, total, err := f.queue.List(storage.LearningPending, 10, 0)
	if err != nil {
		t.Fatalf("listing queue: %v", err)
	}
	if total != 1 {
		t.Fatalf("pending items = %d, want 1", total)
	}
	if items[0].Rating != storage.LearningRatingUnanswered {
		t.Errorf("rating = %q", items[0].Rating)
	}
	if items[0].NormalizedQuestion != "what is your pricing" {
		t.Errorf("normalized question = %q", items[0].NormalizedQuestion)
	}

	sess, err := f.sessions.Get(id)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if len(sess.Unanswered) != 1 || sess.Unanswered[0] != "what is your pricing" {
		t.Errorf("unanswered = %v", sess.Unanswered)
	}
}

func TestApprovedAnswerClosesTheLoop(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)

	if _, err := f.pipeline.Handle(context.Background(), id, "What is your pricing?"); err != nil {
		t.Fatalf("first ask: %v", err)
	}
	items, _, err := f.queue.List(storage.LearningPending, 1, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("listing queue: items=%v err=%v", items, err)
	}
	if _, err := f.queue.Approve(items[0].ID, "Plans start at $99.", nil); err != nil {
		t.Fatalf("approving: %v", err)
	}

	// Same question in a brand-new session now gets the reviewed answer.
	id2 := f.newSession(t)
	r, err := f.pipeline.Handle(context.Background(), id2, "what is your pricing")
	if err != nil {
		t.Fatalf("second ask: %v", err)
	}
	if !r.Matched || r.Source != answer.SourceApproved {
		t.Fatalf("reply = %+v, want approved answer", r)
	}
	if !strings.Contains(r.Text, "Plans start at $99.") {
		t.Errorf("text = %q", r.Text)
	}

	sess, err := f.sessions.Get(id2)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if len(sess.Answered) != 1 || len(sess.Unanswered) != 0 {
		t.Errorf("sets = answered %v unanswered %v", sess.Answered, sess.Unanswered)
	}
}

func TestUploadedDocumentAnswersWithoutReview(t *testing.T) {
	f := newFixture(t)

	before := f.store.Current().Version
	version, err := f.store.Ingest("policies.txt", []byte("Our refund policy allows full refunds within 30 days of purchase."))
	if err != nil {
		t.Fatalf("ingesting: %v", err)
	}
	if version <= before {
		t.Fatalf("version = %d, want > %d", version, before)
	}

	id := f.newSession(t)
	r, err := f.pipeline.Handle(context.Background(), id, "what is the refund policy?")
	if err != nil {
		t.Fatalf("handling: %v", err)
	}
	if !r.Matched || r.Source != answer.SourceChunk {
		t.Fatalf("reply = %+v, want chunk match", r)
	}
	if !strings.Contains(r.Text, "refund") {
		t.Errorf("text = %q", r.Text)
	}
}

func TestHandleValidation(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)

	if _, err := f.pipeline.Handle(context.Background(), id, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank: err = %v, want ErrEmptyMessage", err)
	}
	long := strings.Repeat("a", maxMessageBytes+1)
	if _, err := f.pipeline.Handle(context.Background(), id, long); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("oversize: err = %v, want ErrMessageTooLong", err)
	}
	if _, err := f.pipeline.Handle(context.Background(), "ghost", "hello"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown session: err = %v, want ErrNotFound", err)
	}
}

func TestBuyingIntentAsksForContact(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.store.UpsertApprovedAnswer("what is your pricing", "Plans start at $99.", []string{"pricing"}); err != nil {
		t.Fatalf("seeding answer: %v", err)
	}
	id := f.newSession(t)

	// Matched reply plus conversion intent: the bot asks for a name first.
	r, err := f.pipeline.Handle(context.Background(), id, "What is your pricing?")
	if err != nil {
		t.Fatalf("handling: %v", err)
	}
	if !r.Matched {
		t.Fatalf("reply = %+v, want an approved-answer match", r)
	}
	if !strings.Contains(r.Text, askNameCopy) {
		t.Errorf("text = %q, want contact ask appended", r.Text)
	}

	// Once the visitor hands over everything, the bot closes the loop.
	if _, err := f.pipeline.Handle(context.Background(), id, "I'm Ada Lovelace, ada@example.com, +1 555-010-2030, what is your pricing?"); err != nil {
		t.Fatalf("handling contact message: %v", err)
	}
	sess, err := f.sessions.Get(id)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if sess.UserName != "Ada Lovelace" || sess.UserEmail != "ada@example.com" {
		t.Errorf("contact = %q / %q / %q", sess.UserName, sess.UserEmail, sess.UserPhone)
	}
	last := sess.Messages[len(sess.Messages)-1]
	if !strings.Contains(last.Body, contactClosing) {
		t.Errorf("closing reply = %q", last.Body)
	}
}
