// Package dialog drives the registration, submission and search conversations.
package dialog

import (
	"context"
	"fmt"
	"time"

	"loyaltybot/internal/domain"
	"loyaltybot/internal/logging"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"

	"github.com/rs/zerolog"
)

// Users resolves and registers submitters.
type Users interface {
	Resolve(ctx context.Context, chatID int64) (*models.User, error)
	Register(ctx context.Context, u *models.User) error
	IsReviewer(chatID int64) bool
}

// RejectReasonHandler finishes a rejection once the reviewer typed the reason.
type RejectReasonHandler interface {
	HandleRejectReason(ctx context.Context, in models.Inbound, pad *models.Scratchpad) error
}

type Deps struct {
	Users     Users
	State     domain.StateManager
	Local     domain.LocalStore
	Remote    domain.RemoteSheet
	Messenger domain.Messenger
	Queue     domain.SyncQueue
	Events    domain.EventPublisher
	Rejects   RejectReasonHandler
	BossID    int64
	// MyApplicationsMax limits the "my applications" list.
	MyApplicationsMax int
}

type Engine struct {
	users     Users
	state     domain.StateManager
	local     domain.LocalStore
	remote    domain.RemoteSheet
	messenger domain.Messenger
	queue     domain.SyncQueue
	events    domain.EventPublisher
	rejects   RejectReasonHandler
	bossID    int64
	myAppsMax int

	states map[models.Step]state
	locks  *keyedLocker
	logger *zerolog.Logger
	now    func() time.Time
}

func NewEngine(deps Deps, logger *zerolog.Logger) *Engine {
	if deps.MyApplicationsMax <= 0 {
		deps.MyApplicationsMax = 10
	}
	return &Engine{
		users:     deps.Users,
		state:     deps.State,
		local:     deps.Local,
		remote:    deps.Remote,
		messenger: deps.Messenger,
		queue:     deps.Queue,
		events:    deps.Events,
		rejects:   deps.Rejects,
		bossID:    deps.BossID,
		myAppsMax: deps.MyApplicationsMax,
		states:    buildStates(),
		locks:     newKeyedLocker(),
		logger:    logger,
		now:       time.Now,
	}
}

func (e *Engine) log(ctx context.Context) *zerolog.Logger {
	return logging.FromContext(ctx, e.logger)
}

// Handle routes a message: cancel and start first, then the active dialog step, then menu buttons.
func (e *Engine) Handle(ctx context.Context, in models.Inbound) error {
	switch {
	case in.Command == "cancel" || in.Text == notifier.BtnCancel:
		return e.Cancel(ctx, in)
	case in.Command == "start":
		return e.Start(ctx, in)
	}

	pad, err := e.state.GetScratchpad(ctx, in.ChatID)
	if err != nil {
		e.log(ctx).Error().Err(err).Msg("failed to load scratchpad")
		return e.menu(ctx, in.ChatID, "⚠️ Не удалось восстановить диалог, начните заново.")
	}

	if pad != nil && pad.Step != models.StepIdle {
		st, ok := e.states[pad.Step]
		if !ok {
			_ = e.state.ClearScratchpad(ctx, in.ChatID)
			e.log(ctx).Error().Str("step", string(pad.Step)).Msg("no handler for step")
			return e.menu(ctx, in.ChatID, "⚠️ Диалог сброшен, начните заново.")
		}
		return st.Handle(ctx, e, in, pad)
	}

	switch in.Text {
	case notifier.BtnNewApplication:
		return e.StartSubmission(ctx, in)
	case notifier.BtnMyApplications:
		return e.MyApplications(ctx, in)
	case notifier.BtnSearch:
		return e.StartSearch(ctx, in)
	}
	return e.menu(ctx, in.ChatID, "Выберите действие в меню ниже.")
}

// Cancel clears any dialog and returns to the main menu.
func (e *Engine) Cancel(ctx context.Context, in models.Inbound) error {
	if err := e.state.ClearScratchpad(ctx, in.ChatID); err != nil {
		e.log(ctx).Warn().Err(err).Msg("failed to clear scratchpad")
	}
	return e.menu(ctx, in.ChatID, "Действие отменено.")
}

// Start greets a known user with the menu. Unknown users go straight to registration.
func (e *Engine) Start(ctx context.Context, in models.Inbound) error {
	if err := e.state.ClearScratchpad(ctx, in.ChatID); err != nil {
		e.log(ctx).Warn().Err(err).Msg("failed to clear scratchpad")
	}

	if e.users.IsReviewer(in.ChatID) {
		return e.menu(ctx, in.ChatID, "👋 Здравствуйте! Новые заявки будут приходить сюда на согласование.")
	}

	user, err := e.users.Resolve(ctx, in.ChatID)
	if err != nil {
		e.log(ctx).Error().Err(err).Msg("failed to resolve user")
	}
	if user != nil {
		return e.menu(ctx, in.ChatID, fmt.Sprintf("👋 Здравствуйте, %s!\n\nЗдесь можно оформить заявку на карту лояльности.",
			notifier.Esc(user.FullName)))
	}

	pad := models.NewScratchpad(in.ChatID, in.Username)
	if _, err := e.messenger.Send(ctx, in.ChatID, models.Reply{
		Text: "👋 Здравствуйте! Это бот для заявок на карты лояльности.\nСначала пройдём короткую регистрацию.",
	}); err != nil {
		return err
	}
	return e.advance(ctx, pad, models.StepAwaitContact)
}

// StartSubmission begins a new application, prepending registration for unknown users.
func (e *Engine) StartSubmission(ctx context.Context, in models.Inbound) error {
	pad := models.NewScratchpad(in.ChatID, in.Username)

	user, err := e.users.Resolve(ctx, in.ChatID)
	if err != nil {
		e.log(ctx).Error().Err(err).Msg("failed to resolve user")
	}
	if user == nil {
		if _, err := e.messenger.Send(ctx, in.ChatID, models.Reply{
			Text: "Перед первой заявкой нужно зарегистрироваться.",
		}); err != nil {
			return err
		}
		return e.advance(ctx, pad, models.StepAwaitContact)
	}

	pad.Hydrate(user)
	return e.advance(ctx, pad, models.StepOwnerLastName)
}

// advance stores pad at the next step and sends that step's prompt.
func (e *Engine) advance(ctx context.Context, pad *models.Scratchpad, next models.Step) error {
	pad.Step = next
	if err := e.state.SaveScratchpad(ctx, pad); err != nil {
		e.log(ctx).Error().Err(err).Str("step", string(next)).Msg("failed to save scratchpad")
		return e.menu(ctx, pad.ChatID, "⚠️ Не удалось сохранить ответ, попробуйте начать заново.")
	}
	st, ok := e.states[next]
	if !ok {
		return fmt.Errorf("no handler for step %q", next)
	}
	_, err := e.messenger.Send(ctx, pad.ChatID, st.Prompt(ctx, e, pad))
	return err
}

// reprompt keeps the step and repeats its prompt after the problem text.
func (e *Engine) reprompt(ctx context.Context, pad *models.Scratchpad, problem string) error {
	reply := e.states[pad.Step].Prompt(ctx, e, pad)
	reply.Text = "⚠️ " + notifier.Esc(problem) + "\n\n" + reply.Text
	_, err := e.messenger.Send(ctx, pad.ChatID, reply)
	return err
}

func (e *Engine) menu(ctx context.Context, chatID int64, text string) error {
	_, err := e.messenger.Send(ctx, chatID, models.Reply{
		Text:     text,
		Keyboard: notifier.MainMenu(e.users.IsReviewer(chatID)),
	})
	return err
}

func (e *Engine) finish(ctx context.Context, chatID int64, text string) error {
	if err := e.state.ClearScratchpad(ctx, chatID); err != nil {
		e.log(ctx).Warn().Err(err).Msg("failed to clear scratchpad")
	}
	return e.menu(ctx, chatID, text)
}

func (e *Engine) publish(ctx context.Context, eventType string, payload interface{}) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishJSON(eventType, payload); err != nil {
		e.log(ctx).Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
