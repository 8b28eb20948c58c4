// Package ingest runs the background job queue: site crawls and spreadsheet
// syncs, with retry and exponential backoff handled by the queue itself.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zentiam/assistd/internal/storage"
)

// Job types the worker claims.
const (
	JobCrawlSite = "crawl_site"
	JobSheetSync = "sheets_sync"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// SiteCrawler ingests a website into the knowledge base.
type SiteCrawler interface {
	Site(ctx context.Context, siteURL string) (int, error)
}

// SheetSyncer exports sessions to the external sheet.
type SheetSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// Worker processes crawl and sync jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	crawler SiteCrawler
	syncer  SheetSyncer
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, crawler SiteCrawler, syncer SheetSyncer, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		crawler: crawler,
		syncer:  syncer,
		poll:    pollInterval,
		logger:  logger,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobCrawlSite, JobSheetSync})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type crawlPayload struct {
	SiteURL string `json:"site_url"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case JobCrawlSite:
		var payload crawlPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		pages, err := w.crawler.Site(ctx, payload.SiteURL)
		if err != nil {
			return fmt.Errorf("crawling %s: %w", payload.SiteURL, err)
		}
		w.logger.Info("crawl job finished", "job_id", job.ID, "url", payload.SiteURL, "pages", pages)
		return nil

	case JobSheetSync:
		count, err := w.syncer.Sync(ctx)
		if err != nil {
			return fmt.Errorf("syncing sheet: %w", err)
		}
		w.logger.Info("sync job finished", "job_id", job.ID, "synced", count)
		return nil

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// EnqueueCrawl queues a background crawl of the given site.
func EnqueueCrawl(db *storage.Store, siteURL string) error {
	payload, err := json.Marshal(crawlPayload{SiteURL: siteURL})
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}
	return db.EnqueueJob(storage.Job{
		ID:          uuid.NewString(),
		Type:        JobCrawlSite,
		PayloadJSON: string(payload),
	})
}

// EnqueueSheetSync queues a spreadsheet export. Failed syncs retry with
// backoff through the job queue.
func EnqueueSheetSync(db *storage.Store) error {
	return db.EnqueueJob(storage.Job{
		ID:          uuid.NewString(),
		Type:        JobSheetSync,
		PayloadJSON: "{}",
	})
}
