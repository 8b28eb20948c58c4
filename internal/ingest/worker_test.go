package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/zentiam/assistd/internal/storage"
)

type mockCrawler struct {
	site func(ctx context.Context, siteURL string) (int, error)
}

func (m *mockCrawler) Site(ctx context.Context, siteURL string) (int, error) {
	return m.site(ctx, siteURL)
}

type mockSyncer struct {
	sync func(ctx context.Context) (int, error)
}

func (m *mockSyncer) Sync(ctx context.Context) (int, error) {
	return m.sync(ctx)
}

func newTestWorker(t *testing.T, crawler SiteCrawler, syncer SheetSyncer) (*Worker, *storage.Store) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWorker(db, crawler, syncer, 0, slog.New(slog.NewTextHandler(io.Discard, nil))), db
}

func TestRunOnceNoJobs(t *testing.T) {
	w, _ := newTestWorker(t, nil, nil)
	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("running: %v", err)
	}
	if done {
		t.Error("RunOnce reported work on an empty queue")
	}
}

func TestRunOnceCrawlJob(t *testing.T) {
	var gotURL string
	crawler := &mockCrawler{site: func(ctx context.Context, siteURL string) (int, error) {
		gotURL = siteURL
		return 5, nil
	}}
	w, db := newTestWorker(t, crawler, nil)

	if err := EnqueueCrawl(db, "https://example.com"); err != nil {
		t.Fatalf("enqueueing: %v", err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("running: %v", err)
	}
	if !done {
		t.Fatal("RunOnce did not claim the crawl job")
	}
	if gotURL != "https://example.com" {
		t.Errorf("crawled url = %q", gotURL)
	}

	var status string
	if err := db.DB().QueryRow("SELECT status FROM jobs").Scan(&status); err != nil {
		t.Fatalf("inspecting job: %v", err)
	}
	if status != "completed" {
		t.Errorf("job status = %q, want completed", status)
	}
}

func TestRunOnceFailedJobRetries(t *testing.T) {
	syncer := &mockSyncer{sync: func(ctx context.Context) (int, error) {
		return 0, errors.New("sheet endpoint down")
	}}
	w, db := newTestWorker(t, nil, syncer)

	if err := EnqueueSheetSync(db); err != nil {
		t.Fatalf("enqueueing: %v", err)
	}

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("running: %v", err)
	}

	// The job failed once: back to pending with a future run_after.
	var status string
	var attempts int
	if err := db.DB().QueryRow("SELECT status, attempts FROM jobs").Scan(&status, &attempts); err != nil {
		t.Fatalf("inspecting job: %v", err)
	}
	if status != "pending" || attempts != 1 {
		t.Errorf("job = %s/%d, want pending/1 for retry with backoff", status, attempts)
	}

	// Not due yet, so nothing claims it.
	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("re-running: %v", err)
	}
	if done {
		t.Error("backed-off job was claimed immediately")
	}
}
