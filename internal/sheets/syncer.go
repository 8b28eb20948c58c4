package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zentiam/assistd/internal/storage"
)

const defaultBatchSize = 50

// Syncer exports sessions past the durable cursor. Delivery is at-least-once:
// the cursor advances only after a batch lands, so a failed batch is repeated
// on the next run and deduplicated on the sheet by session id.
type Syncer struct {
	db       *storage.Store
	appender Appender
	log      *slog.Logger

	batchSize int
	group     singleflight.Group
}

func NewSyncer(db *storage.Store, appender Appender, logger *slog.Logger) *Syncer {
	return &Syncer{db: db, appender: appender, log: logger, batchSize: defaultBatchSize}
}

// Configured reports whether an export target exists.
func (s *Syncer) Configured() bool {
	return s.appender != nil
}

// Sync exports everything past the cursor and returns how many sessions were
// appended. Concurrent calls collapse into one export; the extra callers get
// the same result.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("sync", func() (any, error) {
		return s.sync(ctx)
	})
	count, _ := v.(int)
	return count, err
}

func (s *Syncer) sync(ctx context.Context) (int, error) {
	if s.appender == nil {
		return 0, fmt.Errorf("no sheet endpoint configured")
	}

	synced := 0
	for {
		cursor, err := s.db.GetSyncCursor()
		if err != nil {
			return synced, fmt.Errorf("loading cursor: %w", err)
		}

		batch, err := s.db.ListSessionsForSync(cursor.LastSyncedAt, cursor.LastSessionID, s.batchSize)
		if err != nil {
			return synced, fmt.Errorf("selecting sessions: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		rows := make([]Row, len(batch))
		for i, sess := range batch {
			rows[i] = Row{
				SessionID:       sess.ID,
				CreatedAt:       sess.CreatedAt.UTC().Format(time.RFC3339),
				Status:          sess.Status,
				UserName:        sess.UserName,
				UserEmail:       sess.UserEmail,
				UserPhone:       sess.UserPhone,
				MessageCount:    sess.MessageCount,
				AnsweredCount:   sess.AnsweredCount,
				UnansweredCount: sess.UnansweredCount,
			}
		}

		if err := s.appender.Append(ctx, rows); err != nil {
			// Cursor stays put; the same batch is retried next run.
			if rerr := s.db.RecordSyncError(err.Error(), time.Now().UTC()); rerr != nil {
				s.log.Error("recording sync error", "error", rerr)
			}
			return synced, fmt.Errorf("appending batch: %w", err)
		}

		last := batch[len(batch)-1]
		if err := s.db.AdvanceSyncCursor(last.CreatedAt, last.ID, len(batch), time.Now().UTC()); err != nil {
			return synced, fmt.Errorf("advancing cursor: %w", err)
		}
		synced += len(batch)
	}

	if err := s.db.TouchSyncTime(time.Now().UTC()); err != nil {
		return synced, fmt.Errorf("recording sync time: %w", err)
	}
	if synced > 0 {
		s.log.Info("sheet sync completed", "synced", synced)
	}
	return synced, nil
}

// Status is the /admin/sheets/status payload.
type Status struct {
	Configured  bool      `json:"configured"`
	Connected   bool      `json:"connected"`
	TotalSynced int       `json:"total_synced"`
	LastSync    time.Time `json:"last_sync"`
	LastError   string    `json:"last_error,omitempty"`
}

// Status reports the exporter's health from the durable cursor.
func (s *Syncer) Status() (Status, error) {
	cursor, err := s.db.GetSyncCursor()
	if err != nil {
		return Status{}, fmt.Errorf("loading cursor: %w", err)
	}
	return Status{
		Configured:  s.Configured(),
		Connected:   s.Configured() && cursor.LastError == "",
		TotalSynced: cursor.TotalSynced,
		LastSync:    cursor.LastSyncAt,
		LastError:   cursor.LastError,
	}, nil
}
