package domain

import (
	"context"
	"time"

	"loyaltybot/internal/models"
)

// StateRepository stores dialog scratchpads keyed by chat id.
type StateRepository interface {
	GetState(ctx context.Context, chatID int64) (*models.Scratchpad, error)
	SetState(ctx context.Context, pad *models.Scratchpad) error
	ClearState(ctx context.Context, chatID int64) error
	CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error)
}

type StateManager interface {
	GetScratchpad(ctx context.Context, chatID int64) (*models.Scratchpad, error)
	SaveScratchpad(ctx context.Context, pad *models.Scratchpad) error
	ClearScratchpad(ctx context.Context, chatID int64) error
	CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error)
}

// LocalStore is the embedded database: read cache and warm write buffer.
type LocalStore interface {
	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, chatID int64) (*models.User, error)
	IsRegistered(ctx context.Context, chatID int64) (bool, error)
	UpdateActivity(ctx context.Context, chatID int64) error
	GetUsersForReminder(ctx context.Context, cutoff time.Time) ([]*models.User, error)

	InsertApplication(ctx context.Context, app *models.Application) (int64, error)
	MarkApplicationSynced(ctx context.Context, id int64, sheetRow int) error
	UpdateApplicationDecision(ctx context.Context, sheetRow int, status models.Status, reason, activationDate string) error
	GetApplication(ctx context.Context, id int64) (*models.Application, error)
	ListUserApplications(ctx context.Context, chatID int64, limit int) ([]*models.Application, error)
	ListApplications(ctx context.Context, from, to time.Time) ([]*models.Application, error)
	FindActiveByCardNumber(ctx context.Context, cardNumber string) ([]*models.Application, error)
	SearchApplications(ctx context.Context, query string, field models.SearchField, scopeUserID int64, limit int) ([]*models.Application, error)
	GetStatistics(ctx context.Context) (*models.Statistics, error)

	LogActivity(ctx context.Context, chatID int64, event string) error
	LastActivityEvent(ctx context.Context, event string) (time.Time, bool, error)
}

// UserDirectory answers registration lookups against the authoritative sheet.
type UserDirectory interface {
	IsRegistered(ctx context.Context, chatID int64) (bool, error)
	GetInitiator(ctx context.Context, chatID int64) (*models.User, error)
}

// RemoteSheet is the authoritative spreadsheet. Columns are addressed by header.
type RemoteSheet interface {
	UserDirectory
	FindApplicationsByCard(ctx context.Context, number string) ([]*models.Application, error)
	GetConfigOptions(ctx context.Context, column string) ([]string, error)
	AppendRow(ctx context.Context, app *models.Application) (int, error)
	UpdateCell(ctx context.Context, row int, column, value string) error
	UpdateCells(ctx context.Context, row int, values map[string]string) error
	GetApplication(ctx context.Context, row int) (*models.Application, error)
	ListApplications(ctx context.Context) ([]*models.Application, error)
}

// Messenger delivers outbound chat messages. Returned ints are platform message ids.
type Messenger interface {
	Send(ctx context.Context, chatID int64, reply models.Reply) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, reply models.Reply) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncQueue defers a remote append for an application saved only locally.
type SyncQueue interface {
	EnqueueAppend(ctx context.Context, applicationID int64) error
}
