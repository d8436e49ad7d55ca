package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"loyaltybot/internal/domain"
	"loyaltybot/internal/events"
	"loyaltybot/internal/google"
	"loyaltybot/internal/logging"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"
	"loyaltybot/internal/validate"

	"github.com/rs/zerolog"
)

// Engine applies reviewer verdicts to the sheet and tells everyone involved.
type Engine struct {
	remote    domain.RemoteSheet
	local     domain.LocalStore
	messenger domain.Messenger
	state     domain.StateManager
	events    domain.EventPublisher
	bossID    int64
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewEngine(
	remote domain.RemoteSheet,
	local domain.LocalStore,
	messenger domain.Messenger,
	state domain.StateManager,
	publisher domain.EventPublisher,
	bossID int64,
	logger *zerolog.Logger,
) *Engine {
	return &Engine{
		remote:    remote,
		local:     local,
		messenger: messenger,
		state:     state,
		events:    publisher,
		bossID:    bossID,
		logger:    logger,
		now:       time.Now,
	}
}

func reviewerName(in *models.Inbound) string {
	name := strings.TrimSpace(in.FirstName + " " + in.LastName)
	if name != "" {
		return name
	}
	if in.Username != "" {
		return "@" + strings.TrimPrefix(in.Username, "@")
	}
	return "Руководитель"
}

// HandleCallback processes an approve or reject button press on a reviewer notification.
func (e *Engine) HandleCallback(ctx context.Context, in models.Inbound) error {
	cb := in.Callback
	if cb == nil {
		return fmt.Errorf("%w: no callback", ErrCallbackFormat)
	}
	log := logging.FromContext(ctx, e.logger)

	if in.UserID != e.bossID {
		_ = e.messenger.AnswerCallback(ctx, cb.ID, "Недостаточно прав")
		log.Warn().Int64("user_id", in.UserID).Msg("verdict attempt by non reviewer")
		return ErrForbidden
	}
	if err := e.messenger.AnswerCallback(ctx, cb.ID, ""); err != nil {
		log.Warn().Err(err).Msg("answer callback failed")
	}

	action, err := ParseCallback(cb.Data)
	if err != nil {
		log.Error().Err(err).Str("data", cb.Data).Msg("bad callback data")
		e.editNotification(ctx, in.ChatID, cb.MessageID, models.Reply{
			Text: notifier.Annotate(cb.MessageText, "Неверный формат данных кнопки"),
		})
		return err
	}

	app, err := e.remote.GetApplication(ctx, action.Row)
	if err != nil {
		log.Error().Err(err).Int("row", action.Row).Msg("failed to read application row")
		e.editNotification(ctx, in.ChatID, cb.MessageID, models.Reply{
			Text:   notifier.Annotate(cb.MessageText, "Не удалось прочитать заявку из таблицы, попробуйте позже"),
			Inline: notifier.ReviewKeyboard(action.Row),
		})
		return err
	}
	if app.IsDecided() && !(action.Verdict == VerdictApprove && app.ApprovalIncomplete()) {
		log.Info().Int("row", action.Row).Str("status", string(app.Status)).Msg("verdict already given")
		e.editNotification(ctx, in.ChatID, cb.MessageID, models.Reply{Text: notifier.AlreadyDecided(app)})
		return nil
	}

	switch action.Verdict {
	case VerdictApprove:
		return e.approve(ctx, in, app)
	default:
		return e.startReject(ctx, in, app)
	}
}

func (e *Engine) approve(ctx context.Context, in models.Inbound, app *models.Application) error {
	log := logging.FromContext(ctx, e.logger).With().Int("row", app.SheetRow).Logger()
	cb := in.Callback

	// both status columns and the activation date land in one batch so a failure leaves the row pending
	activation := FormatActivationDate(e.now())
	err := e.remote.UpdateCells(ctx, app.SheetRow, map[string]string{
		google.ColStatus:         string(models.StatusApproved),
		google.ColApprovalStatus: string(models.StatusApproved),
		google.ColActivationDate: activation,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to store approval")
		e.editNotification(ctx, in.ChatID, cb.MessageID, models.Reply{
			Text:   notifier.Annotate(cb.MessageText, "Не удалось сохранить решение в таблице, попробуйте ещё раз"),
			Inline: notifier.ReviewKeyboard(app.SheetRow),
		})
		return err
	}
	app.Status = models.StatusApproved
	app.ApprovalStatus = models.StatusApproved
	app.ActivationDate = activation

	if err := e.local.UpdateApplicationDecision(ctx, app.SheetRow, models.StatusApproved, "", activation); err != nil {
		log.Warn().Err(err).Msg("local decision not stored")
	}

	e.publish(events.EventApplicationApproved, app, "")
	log.Info().Str("activation", activation).Msg("application approved")

	delivered := e.notifySubmitter(ctx, app, notifier.ApprovedVerdict(app, activation, reviewerName(&in)))
	e.editNotification(ctx, in.ChatID, cb.MessageID, models.Reply{
		Text: notifier.ApprovedBanner(app, activation, delivered),
	})
	return nil
}

func (e *Engine) startReject(ctx context.Context, in models.Inbound, app *models.Application) error {
	pad, err := e.state.GetScratchpad(ctx, in.ChatID)
	if err != nil || pad == nil {
		pad = models.NewScratchpad(in.ChatID, in.Username)
	}
	pad.Step = models.StepRejectReason
	pad.TargetRow = app.SheetRow
	pad.TargetMessageID = in.Callback.MessageID

	if err := e.state.SaveScratchpad(ctx, pad); err != nil {
		return fmt.Errorf("save reject state: %w", err)
	}

	_, err = e.messenger.Send(ctx, in.ChatID, models.Reply{
		Text: fmt.Sprintf("✏️ Укажите причину отказа по заявке <code>%s</code> (строка %d):",
			notifier.Esc(app.CardNumber), app.SheetRow),
		Keyboard: notifier.CancelKeyboard(),
	})
	return err
}

// HandleRejectReason completes a rejection once the reviewer has typed the reason.
func (e *Engine) HandleRejectReason(ctx context.Context, in models.Inbound, pad *models.Scratchpad) error {
	log := logging.FromContext(ctx, e.logger).With().Int("row", pad.TargetRow).Logger()

	reason, err := validate.NonEmpty("rejection_reason", in.Text)
	if err != nil {
		_, sendErr := e.messenger.Send(ctx, in.ChatID, models.Reply{
			Text:     "Причина отказа не может быть пустой. Напишите причину или нажмите «❌ Отмена».",
			Keyboard: notifier.CancelKeyboard(),
		})
		return sendErr
	}

	app, err := e.remote.GetApplication(ctx, pad.TargetRow)
	if err != nil {
		log.Error().Err(err).Msg("failed to read application row")
		_, _ = e.messenger.Send(ctx, in.ChatID, models.Reply{
			Text:     "❌ Не удалось прочитать заявку из таблицы. Попробуйте отправить причину ещё раз позже.",
			Keyboard: notifier.CancelKeyboard(),
		})
		return err
	}
	if app.IsDecided() {
		_ = e.state.ClearScratchpad(ctx, in.ChatID)
		e.editNotification(ctx, in.ChatID, pad.TargetMessageID, models.Reply{Text: notifier.AlreadyDecided(app)})
		_, err = e.messenger.Send(ctx, in.ChatID, models.Reply{
			Text:     "ℹ️ По этой заявке решение уже принято.",
			Keyboard: notifier.MainMenu(true),
		})
		return err
	}

	err = e.remote.UpdateCells(ctx, app.SheetRow, map[string]string{
		google.ColStatus:          string(models.StatusRejected),
		google.ColApprovalStatus:  string(models.StatusRejected),
		google.ColRejectionReason: reason,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to store rejection")
		_, _ = e.messenger.Send(ctx, in.ChatID, models.Reply{
			Text:     "❌ Не удалось сохранить отказ в таблице. Отправьте причину ещё раз или нажмите «❌ Отмена».",
			Keyboard: notifier.CancelKeyboard(),
		})
		return err
	}
	app.Status = models.StatusRejected
	app.ApprovalStatus = models.StatusRejected
	app.RejectionReason = reason

	if err := e.local.UpdateApplicationDecision(ctx, app.SheetRow, models.StatusRejected, reason, ""); err != nil {
		log.Warn().Err(err).Msg("local decision not stored")
	}
	if err := e.state.ClearScratchpad(ctx, in.ChatID); err != nil {
		log.Warn().Err(err).Msg("failed to clear reject state")
	}

	e.publish(events.EventApplicationRejected, app, reason)
	log.Info().Msg("application rejected")

	delivered := e.notifySubmitter(ctx, app, notifier.RejectedVerdict(app, reason, reviewerName(&in)))
	if pad.TargetMessageID != 0 {
		e.editNotification(ctx, in.ChatID, pad.TargetMessageID, models.Reply{
			Text: notifier.RejectedBanner(app, reason, delivered),
		})
	}

	_, err = e.messenger.Send(ctx, in.ChatID, models.Reply{
		Text:     fmt.Sprintf("❌ Заявка <code>%s</code> отклонена.", notifier.Esc(app.CardNumber)),
		Keyboard: notifier.MainMenu(true),
	})
	return err
}

// notifySubmitter sends the verdict. On failure the reviewer gets an alert instead.
func (e *Engine) notifySubmitter(ctx context.Context, app *models.Application, text string) bool {
	chatID := app.Submitter.TelegramID
	var err error
	if chatID == 0 {
		err = errors.New("row has no telegram id")
	} else {
		_, err = e.messenger.Send(ctx, chatID, models.Reply{Text: text})
	}
	if err == nil {
		return true
	}

	err = fmt.Errorf("%w: %w", ErrNotify, err)
	logging.FromContext(ctx, e.logger).Error().Err(err).
		Int64("chat_id", chatID).Int("row", app.SheetRow).Msg("verdict not delivered")

	if _, alertErr := e.messenger.Send(ctx, e.bossID, models.Reply{Text: notifier.DeliveryFailed(app, err)}); alertErr != nil {
		logging.FromContext(ctx, e.logger).Error().Err(alertErr).Msg("reviewer alert failed")
	}
	return false
}

func (e *Engine) editNotification(ctx context.Context, chatID int64, messageID int, reply models.Reply) {
	if messageID == 0 {
		return
	}
	if err := e.messenger.Edit(ctx, chatID, messageID, reply); err != nil {
		logging.FromContext(ctx, e.logger).Warn().Err(err).Int("message_id", messageID).Msg("failed to edit notification")
	}
}

func (e *Engine) publish(eventType string, app *models.Application, reason string) {
	if e.events == nil {
		return
	}
	payload := events.ApplicationPayload(app, e.now())
	payload.Reason = reason
	payload.ChangedByID = e.bossID
	err := e.events.PublishJSON(eventType, payload)
	if err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
