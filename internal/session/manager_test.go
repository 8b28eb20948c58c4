package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/zentiam/assistd/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewManager(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConcurrentAppendsKeepTotalOrder(t *testing.T) {
	m := newTestManager(t)
	id, err := m.Create()
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Append(id, storage.SenderUser, fmt.Sprintf("message %d", i), nil); err != nil {
				t.Errorf("appending: %v", err)
			}
		}(i)
	}
	wg.Wait()

	sess, err := m.Get(id)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if len(sess.Messages) != n {
		t.Fatalf("message count = %d, want %d", len(sess.Messages), n)
	}
	for i, msg := range sess.Messages {
		if msg.Seq != i {
			t.Fatalf("message %d has seq %d; history interleaved", i, msg.Seq)
		}
	}
}

func TestAppendUnknownSession(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Append("ghost", storage.SenderUser, "hi", nil); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordOutcomeExclusiveSets(t *testing.T) {
	m := newTestManager(t)
	id, err := m.Create()
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	if err := m.RecordOutcome(id, "what is your pricing", false); err != nil {
		t.Fatalf("recording unanswered: %v", err)
	}
	if err := m.RecordOutcome(id, "what is your pricing", true); err != nil {
		t.Fatalf("recording answered: %v", err)
	}

	sess, err := m.Get(id)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if len(sess.Answered) != 1 || len(sess.Unanswered) != 0 {
		t.Errorf("answered = %v, unanswered = %v; want the question answered only", sess.Answered, sess.Unanswered)
	}
}

func TestCloseArchivesSessionAndReleasesLock(t *testing.T) {
	m := newTestManager(t)
	id, err := m.Create()
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	if _, err := m.Append(id, storage.SenderUser, "hi", nil); err != nil {
		t.Fatalf("appending: %v", err)
	}

	if err := m.Close(id); err != nil {
		t.Fatalf("closing: %v", err)
	}

	sess, err := m.Get(id)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	if sess.Status != storage.SessionClosed {
		t.Errorf("status = %q, want %q", sess.Status, storage.SessionClosed)
	}
	if len(sess.Messages) != 1 {
		t.Errorf("history lost on close: %d messages", len(sess.Messages))
	}

	// The per-session mutex is evicted so a long-lived daemon does not
	// accumulate one entry per archived session.
	m.mu.Lock()
	_, held := m.locks[id]
	m.mu.Unlock()
	if held {
		t.Error("closed session still holds a lock entry")
	}

	if err := m.Close("ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("closing unknown session: err = %v, want ErrNotFound", err)
	}
}

func TestCaptureContactMergesAcrossMessages(t *testing.T) {
	m := newTestManager(t)
	id, err := m.Create()
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	c, added, err := m.CaptureContact(id, "Hi, my name is Ada Lovelace")
	if err != nil {
		t.Fatalf("capturing name: %v", err)
	}
	if !added || c.Name != "Ada Lovelace" {
		t.Errorf("contact = %+v added=%v", c, added)
	}
	if c.NextMissing() != "email" {
		t.Errorf("next missing = %q, want email", c.NextMissing())
	}

	c, added, err = m.CaptureContact(id, "you can reach me at ada@example.com or +1 555-010-2030")
	if err != nil {
		t.Fatalf("capturing email and phone: %v", err)
	}
	if !added || !c.Complete() {
		t.Errorf("contact = %+v added=%v, want complete", c, added)
	}

	// A later message never overwrites captured fields.
	c, added, err = m.CaptureContact(id, "actually my name is Someone Else")
	if err != nil {
		t.Fatalf("recapturing: %v", err)
	}
	if added || c.Name != "Ada Lovelace" {
		t.Errorf("contact = %+v added=%v, want unchanged", c, added)
	}
}

func TestExtractContact(t *testing.T) {
	tests := []struct {
		text string
		want Contact
	}{
		{"my name is Grace", Contact{Name: "Grace"}},
		{"I'm Alan Turing, email alan@bletchley.uk", Contact{Name: "Alan Turing", Email: "alan@bletchley.uk"}},
		{"call me on +44 20 7946 0958", Contact{Phone: "+44 20 7946 0958"}},
		{"nothing to see here", Contact{}},
	}
	for _, tt := range tests {
		if got := ExtractContact(tt.text); got != tt.want {
			t.Errorf("ExtractContact(%q) = %+v, want %+v", tt.text, got, tt.want)
		}
	}
}
