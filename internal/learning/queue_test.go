package learning

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/zentiam/assistd/internal/knowledge"
	"github.com/zentiam/assistd/internal/storage"
)

func newTestQueue(t *testing.T) (*Queue, *knowledge.Store, *storage.Store) {
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
	return NewQueue(db, ks, logger), ks, db
}

func mustCreateSession(t *testing.T, db *storage.Store, id string) {
	t.Helper()
	if err := db.CreateSession(storage.Session{ID: id}); err != nil {
		t.Fatalf("creating session: %v", err)
	}
}

func TestEnqueueDeduplicatesPending(t *testing.T) {
	q, _, db := newTestQueue(t)
	mustCreateSession(t, db, "sess-1")

	created, err := q.Enqueue("sess-1", "Do you ship abroad?", "fallback text", "", storage.LearningRatingUnanswered)
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if !created {
		t.Fatal("first enqueue created nothing")
	}

	// Same question, different surface form: still one pending item.
	created, err = q.Enqueue("sess-1", "do you SHIP abroad", "fallback text", "", storage.LearningRatingNegative)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if created {
		t.Error("duplicate pending item created")
	}

	items, total, err := q.List(storage.LearningPending, 10, 0)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("pending items = %d (total %d), want 1", len(items), total)
	}
}

func TestEnqueueRaceKeepsOnePendingItem(t *testing.T) {
	q, _, db := newTestQueue(t)
	mustCreateSession(t, db, "sess-1")

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Enqueue("sess-1", "Do you ship abroad?", "fallback", "", storage.LearningRatingUnanswered); err != nil {
				t.Errorf("enqueueing: %v", err)
			}
		}()
	}
	wg.Wait()

	_, total, err := q.List(storage.LearningPending, workers, 0)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if total != 1 {
		t.Errorf("pending items = %d, want 1", total)
	}
}

func TestApprovePromotesAnswer(t *testing.T) {
	q, ks, db := newTestQueue(t)
	mustCreateSession(t, db, "sess-1")

	if _, err := q.Enqueue("sess-1", "What is your pricing?", "fallback text", "", storage.LearningRatingUnanswered); err != nil {
		t.Fatalf("enqueueing: %v", err)
	}
	items, _, err := q.List(storage.LearningPending, 1, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("listing pending: items=%v err=%v", items, err)
	}

	version, err := q.Approve(items[0].ID, "Plans start at $99.", []string{"pricing"})
	if err != nil {
		t.Fatalf("approving: %v", err)
	}
	if version == 0 {
		t.Error("approve did not publish a snapshot version")
	}

	// The reviewed answer is live in the current snapshot.
	a, ok := ks.Current().AnswerByPattern("what is your pricing")
	if !ok {
		t.Fatal("approved answer missing from snapshot")
	}
	if a.Answer != "Plans start at $99." {
		t.Errorf("answer = %q", a.Answer)
	}

	// Terminal state: both re-transitions conflict.
	if _, err := q.Approve(items[0].ID, "", nil); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("second approve: err = %v, want ErrConflict", err)
	}
	if err := q.Dismiss(items[0].ID); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("dismiss after approve: err = %v, want ErrConflict", err)
	}
}

func TestApproveDefaultsToBotResponse(t *testing.T) {
	q, ks, db := newTestQueue(t)
	mustCreateSession(t, db, "sess-1")

	if _, err := q.Enqueue("sess-1", "opening hours", "We are open 9 to 5.", "", storage.LearningRatingNegative); err != nil {
		t.Fatalf("enqueueing: %v", err)
	}
	items, _, err := q.List(storage.LearningPending, 1, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("listing pending: items=%v err=%v", items, err)
	}

	if _, err := q.Approve(items[0].ID, "", nil); err != nil {
		t.Fatalf("approving: %v", err)
	}
	a, ok := ks.Current().AnswerByPattern("opening hours")
	if !ok || a.Answer != "We are open 9 to 5." {
		t.Errorf("answer = %+v ok=%v, want recorded bot response", a, ok)
	}
}

func TestDismissLeavesKnowledgeAlone(t *testing.T) {
	q, ks, db := newTestQueue(t)
	mustCreateSession(t, db, "sess-1")

	if _, err := q.Enqueue("sess-1", "irrelevant question", "fallback", "", storage.LearningRatingUnanswered); err != nil {
		t.Fatalf("enqueueing: %v", err)
	}
	items, _, err := q.List(storage.LearningPending, 1, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("listing pending: items=%v err=%v", items, err)
	}

	before := ks.Current().Version
	if err := q.Dismiss(items[0].ID); err != nil {
		t.Fatalf("dismissing: %v", err)
	}
	if got := ks.Current().Version; got != before {
		t.Errorf("snapshot version moved on dismiss: %d -> %d", before, got)
	}

	count, err := q.PendingCount()
	if err != nil {
		t.Fatalf("counting pending: %v", err)
	}
	if count != 0 {
		t.Errorf("pending count = %d, want 0", count)
	}

	if err := q.Dismiss("no-such-item"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("dismissing unknown item: err = %v, want ErrNotFound", err)
	}
}
