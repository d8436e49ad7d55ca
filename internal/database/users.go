package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"loyaltybot/internal/models"
)

const userColumns = `tg_id, username, fio, email, job_title, phone, created_at, last_activity`

// UpsertUser is idempotent by tg_id. created_at survives re-registration.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (` + userColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(tg_id) DO UPDATE SET
                username = excluded.username,
                fio = excluded.fio,
                email = excluded.email,
                job_title = excluded.job_title,
                phone = excluded.phone,
                last_activity = excluded.last_activity`
	now := time.Now().UTC()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	lastActivity := user.LastActivity
	if lastActivity.IsZero() {
		lastActivity = now
	}

	_, err := db.ExecContext(ctx, query,
		user.TelegramID,
		user.Username,
		user.FullName,
		user.Email,
		user.JobTitle,
		user.Phone,
		createdAt.UTC(),
		lastActivity.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tg_id = ?`
	var u models.User
	err := db.QueryRowContext(ctx, query, telegramID).Scan(
		&u.TelegramID, &u.Username, &u.FullName, &u.Email, &u.JobTitle, &u.Phone, &u.CreatedAt, &u.LastActivity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// IsRegistered mirrors the remote rule: a row with a non-empty full name.
func (db *DB) IsRegistered(ctx context.Context, telegramID int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE tg_id = ? AND fio != ''`, telegramID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	return count > 0, nil
}

func (db *DB) UpdateActivity(ctx context.Context, telegramID int64) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET last_activity = ? WHERE tg_id = ?`, time.Now().UTC(), telegramID)
	if err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	return nil
}

// GetUsersForReminder returns users idle since before cutoff who already have at least one decided application.
func (db *DB) GetUsersForReminder(ctx context.Context, cutoff time.Time) ([]*models.User, error) {
	query := `SELECT u.tg_id, u.username, u.fio, u.email, u.job_title, u.phone, u.created_at, u.last_activity
              FROM users u
              WHERE u.last_activity < ?
                AND EXISTS (
                    SELECT 1 FROM applications a
                    WHERE a.tg_user_id = u.tg_id AND a.status IN (?, ?)
                )
              ORDER BY u.last_activity ASC`
	return db.queryUsers(ctx, query, cutoff.UTC(), string(models.StatusApproved), string(models.StatusRejected))
}

func (db *DB) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(
			&u.TelegramID, &u.Username, &u.FullName, &u.Email, &u.JobTitle, &u.Phone, &u.CreatedAt, &u.LastActivity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
