package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"loyaltybot/internal/models"
)

const applicationColumns = `id, tg_user_id, sheet_row, submitted_at,
        submitter_username, submitter_fio, submitter_email, submitter_job_title, submitter_phone,
        owner_last_name, owner_first_name, reason, card_type, card_number, amount, category,
        frequency, issue_location, status, approval_status, rejection_reason, activation_date,
        activated, synced, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(r rowScanner) (*models.Application, error) {
	var a models.Application
	var cardType, frequency, status, approvalStatus string
	err := r.Scan(
		&a.ID, &a.Submitter.TelegramID, &a.SheetRow, &a.SubmittedAt,
		&a.Submitter.Username, &a.Submitter.FullName, &a.Submitter.Email, &a.Submitter.JobTitle, &a.Submitter.Phone,
		&a.OwnerLastName, &a.OwnerFirstName, &a.Reason, &cardType, &a.CardNumber, &a.Amount, &a.Category,
		&frequency, &a.IssueLocation, &status, &approvalStatus, &a.RejectionReason, &a.ActivationDate,
		&a.Activated, &a.Synced, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.CardType = models.CardType(cardType)
	a.Frequency = models.Frequency(frequency)
	a.Status = models.Status(status)
	a.ApprovalStatus = models.Status(approvalStatus)
	return &a, nil
}

// InsertApplication stores a new application and sets its ID.
func (db *DB) InsertApplication(ctx context.Context, app *models.Application) (int64, error) {
	query := `INSERT INTO applications (
                tg_user_id, sheet_row, submitted_at,
                submitter_username, submitter_fio, submitter_email, submitter_job_title, submitter_phone,
                owner_last_name, owner_first_name, reason, card_type, card_number, amount, category,
                frequency, issue_location, status, approval_status, rejection_reason, activation_date,
                activated, synced, created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}

	result, err := db.ExecContext(ctx, query,
		app.Submitter.TelegramID, app.SheetRow, app.SubmittedAt.UTC(),
		app.Submitter.Username, app.Submitter.FullName, app.Submitter.Email, app.Submitter.JobTitle, app.Submitter.Phone,
		app.OwnerLastName, app.OwnerFirstName, app.Reason, string(app.CardType), app.CardNumber, app.Amount, app.Category,
		string(app.Frequency), app.IssueLocation, string(app.Status), string(app.ApprovalStatus), app.RejectionReason, app.ActivationDate,
		app.Activated, app.Synced, app.CreatedAt.UTC(), app.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert application: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	app.ID = id
	return id, nil
}

// MarkApplicationSynced records the sheet row assigned by the remote append.
func (db *DB) MarkApplicationSynced(ctx context.Context, id int64, sheetRow int) error {
	res, err := db.ExecContext(ctx,
		`UPDATE applications SET sheet_row = ?, synced = 1, updated_at = ? WHERE id = ?`,
		sheetRow, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark application synced: %w", err)
	}
	return expectOne(res)
}

// UpdateApplicationDecision mirrors a verdict written to the sheet. Rows already decided keep their verdict.
func (db *DB) UpdateApplicationDecision(ctx context.Context, sheetRow int, status models.Status, reason, activationDate string) error {
	query := `UPDATE applications
              SET status = ?, approval_status = ?, rejection_reason = ?, activation_date = ?, updated_at = ?
              WHERE sheet_row = ? AND status NOT IN (?, ?)`
	res, err := db.ExecContext(ctx, query,
		string(status), string(status), reason, activationDate, time.Now().UTC(),
		sheetRow, string(models.StatusApproved), string(models.StatusRejected))
	if err != nil {
		return fmt.Errorf("failed to update application decision: %w", err)
	}
	return expectOne(res)
}

func (db *DB) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	return db.queryApplication(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
}

func (db *DB) GetApplicationBySheetRow(ctx context.Context, sheetRow int) (*models.Application, error) {
	return db.queryApplication(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE sheet_row = ? ORDER BY id DESC LIMIT 1`, sheetRow)
}

func (db *DB) queryApplication(ctx context.Context, query string, args ...interface{}) (*models.Application, error) {
	app, err := scanApplication(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// ListUserApplications returns the latest applications of one submitter, newest first.
func (db *DB) ListUserApplications(ctx context.Context, telegramID int64, limit int) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
              WHERE tg_user_id = ? ORDER BY submitted_at DESC, id DESC LIMIT ?`
	return db.queryApplications(ctx, query, telegramID, limit)
}

// ListApplications returns applications submitted in [from, to), oldest first.
func (db *DB) ListApplications(ctx context.Context, from, to time.Time) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
              WHERE submitted_at >= ? AND submitted_at < ? ORDER BY submitted_at ASC, id ASC`
	return db.queryApplications(ctx, query, from.UTC(), to.UTC())
}

// ListUnsynced returns applications submitted before the cutoff that are not in the remote sheet
// and have no sync task of any status.
func (db *DB) ListUnsynced(ctx context.Context, before time.Time) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
              WHERE synced = 0 AND submitted_at < ?
                AND NOT EXISTS (SELECT 1 FROM sync_queue q WHERE q.application_id = applications.id)
              ORDER BY id ASC`
	return db.queryApplications(ctx, query, before.UTC())
}

// FindActiveByCardNumber returns local applications with the number that are not rejected.
func (db *DB) FindActiveByCardNumber(ctx context.Context, cardNumber string) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
              WHERE card_number = ? AND status != ? ORDER BY id ASC`
	return db.queryApplications(ctx, query, cardNumber, string(models.StatusRejected))
}

// SearchApplications matches by owner or submitter name, or by phone digits.
// scopeUserID limits results to one submitter; zero searches everything.
// Matching happens in Go because SQLite LIKE folds case only for ASCII.
func (db *DB) SearchApplications(ctx context.Context, query string, field models.SearchField, scopeUserID int64, limit int) ([]*models.Application, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	sqlQuery := `SELECT ` + applicationColumns + ` FROM applications`
	var args []interface{}
	if scopeUserID != 0 {
		sqlQuery += ` WHERE tg_user_id = ?`
		args = append(args, scopeUserID)
	}
	sqlQuery += ` ORDER BY submitted_at DESC, id DESC`

	all, err := db.queryApplications(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}

	digits := onlyDigits(needle)
	var found []*models.Application
	for _, app := range all {
		var match bool
		switch field {
		case models.SearchByPhone:
			match = digits != "" && (strings.Contains(onlyDigits(app.Submitter.Phone), digits) ||
				strings.Contains(app.CardNumber, digits))
		default:
			match = strings.Contains(strings.ToLower(app.OwnerFullName()), needle) ||
				strings.Contains(strings.ToLower(app.OwnerFirstName+" "+app.OwnerLastName), needle) ||
				strings.Contains(strings.ToLower(app.Submitter.FullName), needle)
		}
		if match {
			found = append(found, app)
			if limit > 0 && len(found) == limit {
				break
			}
		}
	}
	return found, nil
}

// GetStatistics aggregates all local applications.
func (db *DB) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	stats := models.NewStatistics()

	groups := []struct {
		column string
		target map[string]int
	}{
		{"status", stats.ByStatus},
		{"card_type", stats.ByCardType},
		{"category", stats.ByCategory},
	}

	for _, g := range groups {
		rows, err := db.QueryContext(ctx,
			`SELECT `+g.column+`, COUNT(*) FROM applications GROUP BY `+g.column)
		if err != nil {
			return nil, fmt.Errorf("failed to get statistics by %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan statistics: %w", err)
			}
			if key != "" {
				g.target[key] = count
			}
		}
		rows.Close()
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	return stats, nil
}

// CountApplicationsSince counts applications submitted at or after since, by status.
func (db *DB) CountApplicationsSince(ctx context.Context, since time.Time) (map[models.Status]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM applications WHERE submitted_at >= ? GROUP BY status`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.Status(status)] = count
	}
	return counts, rows.Err()
}

func (db *DB) queryApplications(ctx context.Context, query string, args ...interface{}) ([]*models.Application, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
