package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LogActivity appends an event to the activity log. tgID is 0 for system events.
func (db *DB) LogActivity(ctx context.Context, tgID int64, event string) error {
	return db.LogActivityAt(ctx, tgID, event, time.Now())
}

func (db *DB) LogActivityAt(ctx context.Context, tgID int64, event string, ts time.Time) error {
	_, err := db.ExecContext(ctx, `INSERT INTO activity (tg_id, event, ts) VALUES (?, ?, ?)`, tgID, event, ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

// LastActivityEvent returns the time of the latest event with this name.
func (db *DB) LastActivityEvent(ctx context.Context, event string) (time.Time, bool, error) {
	var ts time.Time
	err := db.QueryRowContext(ctx,
		`SELECT ts FROM activity WHERE event = ? ORDER BY ts DESC LIMIT 1`, event).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last activity event: %w", err)
	}
	return ts, true, nil
}

// CountActivity counts events with this name since the given time.
func (db *DB) CountActivity(ctx context.Context, event string, since time.Time) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity WHERE event = ? AND ts >= ?`, event, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activity: %w", err)
	}
	return count, nil
}
