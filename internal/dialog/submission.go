package dialog

import (
	"context"
	"fmt"

	"loyaltybot/internal/events"
	"loyaltybot/internal/metrics"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"
	"loyaltybot/internal/validate"
)

func duplicateError(app *models.Application) error {
	status := app.Status
	if status == "" {
		status = models.StatusPending
	}
	return &validate.Error{
		Field:   "card_number",
		Message: fmt.Sprintf("Карта %s уже есть в заявке со статусом «%s». Введите другой номер.", app.CardNumber, status),
	}
}

// checkDuplicate returns a validation error when the number is already used by a non-rejected application.
// The sheet is authoritative. Local rows still waiting for sync count as well,
// and the local store alone answers when the sheet is unreachable.
func (e *Engine) checkDuplicate(ctx context.Context, number string) error {
	remote, remoteErr := e.remote.FindApplicationsByCard(ctx, number)
	if remoteErr == nil {
		for _, app := range remote {
			if app.Status != models.StatusRejected && app.ApprovalStatus != models.StatusRejected {
				return duplicateError(app)
			}
		}
	} else {
		e.log(ctx).Warn().Err(remoteErr).Msg("remote duplicate check failed, using local store")
	}

	local, err := e.local.FindActiveByCardNumber(ctx, number)
	if err != nil {
		e.log(ctx).Warn().Err(err).Msg("local duplicate check failed")
		return nil
	}
	for _, app := range local {
		if remoteErr != nil || !app.Synced {
			return duplicateError(app)
		}
	}
	return nil
}

type confirmStep struct{}

func (confirmStep) Prompt(_ context.Context, e *Engine, pad *models.Scratchpad) models.Reply {
	app, err := pad.Finalize(e.now())
	if err != nil {
		return models.Reply{Text: "⚠️ Заявка заполнена не полностью, начните заново.", Keyboard: notifier.CancelKeyboard()}
	}
	return models.Reply{Text: notifier.ApplicationSummary(app), Keyboard: notifier.ConfirmKeyboard()}
}

func (confirmStep) Handle(ctx context.Context, e *Engine, in models.Inbound, pad *models.Scratchpad) error {
	if in.Text != notifier.BtnConfirm {
		return e.reprompt(ctx, pad, "Нажмите «"+notifier.BtnConfirm+"» или «"+notifier.BtnCancel+"».")
	}
	return e.commit(ctx, pad)
}

// commit writes the application to both stores under a per card number lock.
// Remote failure after a local insert queues the row for a later append.
func (e *Engine) commit(ctx context.Context, pad *models.Scratchpad) error {
	log := e.log(ctx)

	app, err := pad.Finalize(e.now())
	if err != nil {
		log.Error().Err(err).Msg("scratchpad reached confirm incomplete")
		_ = e.finish(ctx, pad.ChatID, "⚠️ Внутренняя ошибка, заполните заявку заново.")
		return err
	}

	unlock := e.locks.Lock(app.CardNumber)
	defer unlock()

	if err := e.checkDuplicate(ctx, app.CardNumber); err != nil {
		pad.CardNumber = ""
		ve, _ := validate.IsValidation(err)
		if _, sendErr := e.messenger.Send(ctx, pad.ChatID, models.Reply{Text: "⚠️ " + notifier.Esc(ve.Message)}); sendErr != nil {
			return sendErr
		}
		return e.advance(ctx, pad, models.StepCardNumber)
	}

	localID, localErr := e.local.InsertApplication(ctx, app)
	if localErr != nil {
		log.Error().Err(localErr).Msg("local insert failed")
	} else {
		app.ID = localID
	}

	row, remoteErr := e.remote.AppendRow(ctx, app)

	switch {
	case remoteErr == nil:
		app.SheetRow = row
		if localErr == nil {
			if err := e.local.MarkApplicationSynced(ctx, localID, row); err != nil {
				log.Warn().Err(err).Int("row", row).Msg("failed to mark application synced")
			}
		}
		log.Info().Int("row", row).Str("card", app.CardNumber).Msg("application submitted")

		e.notifyReviewer(ctx, app)
		e.publish(ctx, events.EventApplicationSubmitted, events.ApplicationPayload(app, app.SubmittedAt))

		text := fmt.Sprintf("✅ Заявка на карту <code>%s</code> отправлена на согласование.", notifier.Esc(app.CardNumber))
		if localErr != nil {
			text += "\n\nℹ️ Локальная копия не сохранилась, на заявку это не влияет."
		}
		return e.finish(ctx, pad.ChatID, text)

	case localErr == nil:
		log.Error().Err(remoteErr).Int64("application_id", localID).Msg("remote append failed, queued for sync")
		metrics.IncApplication(string(app.CardType), "queued")
		if e.queue != nil {
			if err := e.queue.EnqueueAppend(ctx, localID); err != nil {
				log.Error().Err(err).Int64("application_id", localID).Msg("failed to queue sync task, left to the unsynced sweep")
			}
		}
		return e.finish(ctx, pad.ChatID,
			"💾 Заявка сохранена локально: таблица сейчас недоступна. Она будет отправлена на согласование автоматически.")

	default:
		log.Error().Err(remoteErr).Msg("application not saved anywhere")
		metrics.IncApplication(string(app.CardType), "failed")
		_ = e.finish(ctx, pad.ChatID, "❌ Не удалось сохранить заявку. Попробуйте позже.")
		return remoteErr
	}
}

func (e *Engine) notifyReviewer(ctx context.Context, app *models.Application) {
	if e.bossID == 0 {
		return
	}
	_, err := e.messenger.Send(ctx, e.bossID, models.Reply{
		Text:   notifier.ReviewRequest(app),
		Inline: notifier.ReviewKeyboard(app.SheetRow),
	})
	if err != nil {
		e.log(ctx).Error().Err(err).Int("row", app.SheetRow).Msg("reviewer notification failed")
	}
}
