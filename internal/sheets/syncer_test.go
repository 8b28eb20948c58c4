package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/zentiam/assistd/internal/storage"
)

// mockAppender records batches and can be scripted to fail.
type mockAppender struct {
	mu      sync.Mutex
	batches [][]Row
	fail    error
}

func (m *mockAppender) Append(ctx context.Context, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.batches = append(m.batches, rows)
	return nil
}

func (m *mockAppender) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func newTestSyncer(t *testing.T, appender Appender) (*Syncer, *storage.Store) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSyncer(db, appender, slog.New(slog.NewTextHandler(io.Discard, nil))), db
}

func seedSessions(t *testing.T, db *storage.Store, n int) {
	t.Helper()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		id := string(rune('a'+i)) + "-session"
		if err := db.CreateSession(storage.Session{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("creating session: %v", err)
		}
		if _, err := db.AppendMessage(id, storage.Message{Sender: storage.SenderUser, Body: "hi"}); err != nil {
			t.Fatalf("appending message: %v", err)
		}
	}
}

func TestSyncIdempotent(t *testing.T) {
	app := &mockAppender{}
	s, db := newTestSyncer(t, app)
	seedSessions(t, db, 3)

	count, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if count != 3 {
		t.Errorf("first sync count = %d, want 3", count)
	}

	// Nothing new: the second run exports zero rows.
	count, err = s.Sync(context.Background())
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if count != 0 {
		t.Errorf("second sync count = %d, want 0", count)
	}
	if app.rowCount() != 3 {
		t.Errorf("rows delivered = %d, want 3", app.rowCount())
	}
}

func TestSyncFailureKeepsCursor(t *testing.T) {
	app := &mockAppender{fail: errors.New("endpoint down")}
	s, db := newTestSyncer(t, app)
	seedSessions(t, db, 2)

	if _, err := s.Sync(context.Background()); err == nil {
		t.Fatal("sync succeeded against a failing endpoint")
	}

	status, err := s.Status()
	if err != nil {
		t.Fatalf("reading status: %v", err)
	}
	if status.Connected || status.LastError == "" {
		t.Errorf("status = %+v, want disconnected with recorded error", status)
	}
	if status.TotalSynced != 0 {
		t.Errorf("total synced = %d, want 0 after failure", status.TotalSynced)
	}

	// The retry delivers the same batch and clears the error.
	app.mu.Lock()
	app.fail = nil
	app.mu.Unlock()

	count, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("retry sync: %v", err)
	}
	if count != 2 {
		t.Errorf("retry count = %d, want the full batch again", count)
	}
	status, _ = s.Status()
	if !status.Connected || status.LastError != "" {
		t.Errorf("status after retry = %+v, want clean", status)
	}
}

func TestSyncBatchesPastLimit(t *testing.T) {
	app := &mockAppender{}
	s, db := newTestSyncer(t, app)
	s.batchSize = 2
	seedSessions(t, db, 5)

	count, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("syncing: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5 across batches", count)
	}
	if len(app.batches) != 3 {
		t.Errorf("batches = %d, want 3 (2+2+1)", len(app.batches))
	}
}

func TestClientAppend(t *testing.T) {
	var gotAuth string
	var gotRows int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Rows []Row `json:"rows"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		gotRows = len(req.Rows)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token")
	err := c.Append(context.Background(), []Row{{SessionID: "s1"}, {SessionID: "s2"}})
	if err != nil {
		t.Fatalf("appending: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotRows != 2 {
		t.Errorf("rows received = %d, want 2", gotRows)
	}
}

func TestClientAppendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if err := c.Append(context.Background(), []Row{{SessionID: "s1"}}); err == nil {
		t.Fatal("append succeeded against a 429")
	}
}
