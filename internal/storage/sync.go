package storage

import (
	"fmt"
	"time"
)

// GetSyncCursor returns the spreadsheet export cursor.
func (s *Store) GetSyncCursor() (SyncCursor, error) {
	var c SyncCursor
	var lastSyncedAt, lastSyncAt string
	err := s.db.QueryRow(`
		SELECT last_synced_at, last_session_id, total_synced, last_sync_at, last_error
		FROM sync_cursor WHERE id = 1`,
	).Scan(&lastSyncedAt, &c.LastSessionID, &c.TotalSynced, &lastSyncAt, &c.LastError)
	if err != nil {
		return SyncCursor{}, err
	}
	if c.LastSyncedAt, err = parseTime(lastSyncedAt); err != nil {
		return SyncCursor{}, fmt.Errorf("parsing last_synced_at: %w", err)
	}
	if c.LastSyncAt, err = parseTime(lastSyncAt); err != nil {
		return SyncCursor{}, fmt.Errorf("parsing last_sync_at: %w", err)
	}
	return c, nil
}

// AdvanceSyncCursor moves the cursor past an exported batch and clears any
// previous error. Called only after the external append succeeded, so a
// failed batch is re-selected on the next sync.
func (s *Store) AdvanceSyncCursor(lastSyncedAt time.Time, lastSessionID string, added int, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE sync_cursor
		SET last_synced_at = ?, last_session_id = ?, total_synced = total_synced + ?, last_sync_at = ?, last_error = ''
		WHERE id = 1`,
		fmtTime(lastSyncedAt), lastSessionID, added, fmtTime(at),
	)
	return err
}

// TouchSyncTime records a sync run that had nothing to export.
func (s *Store) TouchSyncTime(at time.Time) error {
	_, err := s.db.Exec("UPDATE sync_cursor SET last_sync_at = ?, last_error = '' WHERE id = 1", fmtTime(at))
	return err
}

// RecordSyncError stores the last export failure for the status endpoint.
// The cursor itself is left untouched.
func (s *Store) RecordSyncError(msg string, at time.Time) error {
	_, err := s.db.Exec("UPDATE sync_cursor SET last_error = ?, last_sync_at = ? WHERE id = 1", msg, fmtTime(at))
	return err
}
