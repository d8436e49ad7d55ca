package bot

import (
	"context"
	"os"
	"time"

	"loyaltybot/internal/config"
	"loyaltybot/internal/domain"
	"loyaltybot/internal/models"

	"github.com/rs/zerolog"
)

// UpdateSource yields translated chat updates until ctx is done.
type UpdateSource interface {
	Updates(ctx context.Context) <-chan models.Inbound
}

type UserTracker interface {
	IsReviewer(chatID int64) bool
	Touch(ctx context.Context, chatID int64)
}

type MessageHandler interface {
	Handle(ctx context.Context, in models.Inbound) error
}

type CallbackHandler interface {
	HandleCallback(ctx context.Context, in models.Inbound) error
}

type Reporter interface {
	Report(ctx context.Context, from, to time.Time, withTotals bool) *models.PeriodReport
}

type Exporter interface {
	Applications(apps []*models.Application, source string) (string, error)
}

type RemoteLister interface {
	ListApplications(ctx context.Context) ([]*models.Application, error)
}

type LocalLister interface {
	ListApplications(ctx context.Context, from, to time.Time) ([]*models.Application, error)
}

type Deps struct {
	Source    UpdateSource
	Messenger domain.Messenger
	State     domain.StateManager
	Users     UserTracker
	Dialog    MessageHandler
	Approval  CallbackHandler
	Reports   Reporter
	Exporter  Exporter
	Remote    RemoteLister
	Local     LocalLister
}

type Bot struct {
	source     UpdateSource
	messenger  domain.Messenger
	state      domain.StateManager
	users      UserTracker
	dialog     MessageHandler
	approval   CallbackHandler
	reports    Reporter
	exporter   Exporter
	remote     RemoteLister
	local      LocalLister
	config     config.BotConfig
	dispatcher *dispatcher
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewBot(deps Deps, cfg config.BotConfig, logger *zerolog.Logger) *Bot {
	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}
	if cfg.RateLimitMessages <= 0 {
		cfg.RateLimitMessages = models.RateLimitMessages
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = int(models.RateLimitWindow / time.Second)
	}

	b := &Bot{
		source:    deps.Source,
		messenger: deps.Messenger,
		state:     deps.State,
		users:     deps.Users,
		dialog:    deps.Dialog,
		approval:  deps.Approval,
		reports:   deps.Reports,
		exporter:  deps.Exporter,
		remote:    deps.Remote,
		local:     deps.Local,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
	b.dispatcher = newDispatcher(b.processUpdate)
	return b
}

// Start reads updates until ctx is done, then waits for in-flight chats to finish.
func (b *Bot) Start(ctx context.Context) {
	updates := b.source.Updates(ctx)
	b.logger.Info().Msg("Bot started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.dispatcher.wait()
			return
		case in, ok := <-updates:
			if !ok {
				b.dispatcher.wait()
				return
			}
			b.dispatcher.dispatch(ctx, in)
		}
	}
}
