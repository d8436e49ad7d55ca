package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(8)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Local store initialized")
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            tg_id INTEGER PRIMARY KEY,
            username TEXT NOT NULL DEFAULT '',
            fio TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            job_title TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            last_activity DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS applications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            tg_user_id INTEGER NOT NULL REFERENCES users(tg_id),
            sheet_row INTEGER NOT NULL DEFAULT 0,
            submitted_at DATETIME NOT NULL,
            submitter_username TEXT NOT NULL DEFAULT '',
            submitter_fio TEXT NOT NULL DEFAULT '',
            submitter_email TEXT NOT NULL DEFAULT '',
            submitter_job_title TEXT NOT NULL DEFAULT '',
            submitter_phone TEXT NOT NULL DEFAULT '',
            owner_last_name TEXT NOT NULL,
            owner_first_name TEXT NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            card_type TEXT NOT NULL,
            card_number TEXT NOT NULL,
            amount INTEGER NOT NULL,
            category TEXT NOT NULL DEFAULT '',
            frequency TEXT NOT NULL DEFAULT '',
            issue_location TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            approval_status TEXT NOT NULL,
            rejection_reason TEXT NOT NULL DEFAULT '',
            activation_date TEXT NOT NULL DEFAULT '',
            activated BOOLEAN NOT NULL DEFAULT 0,
            synced BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS activity (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            tg_id INTEGER NOT NULL,
            event TEXT NOT NULL,
            ts DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            application_id INTEGER NOT NULL,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_users_last_activity ON users(last_activity)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_user ON applications(tg_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_card_number ON applications(card_number)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_sheet_row ON applications(sheet_row)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_submitted_at ON applications(submitted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_event ON activity(event, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", firstLine(query), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
