package bot

import (
	"context"
	"strings"
	"time"

	"loyaltybot/internal/logging"
	"loyaltybot/internal/metrics"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"
)

const updateTimeout = 30 * time.Second

func updateKind(in models.Inbound) string {
	switch {
	case in.Callback != nil:
		return "callback"
	case in.Command != "":
		return "command"
	case in.Contact != nil:
		return "contact"
	default:
		return "message"
	}
}

// processUpdate handles one update with its own timeout and request logger.
func (b *Bot) processUpdate(ctx context.Context, in models.Inbound) {
	start := time.Now()
	kind := updateKind(in)
	defer func() {
		metrics.ObserveUpdate(kind, time.Since(start))
	}()

	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()
	updateCtx, log := logging.WithRequest(updateCtx, b.logger, in.ChatID)

	b.withRecovery(updateCtx, in.ChatID, func() {
		if in.ChatID == 0 {
			return
		}
		if !b.allow(updateCtx, in) {
			return
		}
		b.trackActivity(updateCtx, in.ChatID)

		err := b.route(updateCtx, in)
		if err != nil {
			log.Error().Err(err).Str("kind", kind).Str("error_kind", errorKind(err)).Msg("update handling failed")
			return
		}
		log.Debug().Str("kind", kind).Dur("took", time.Since(start)).Msg("update handled")
	})
}

func (b *Bot) route(ctx context.Context, in models.Inbound) error {
	if in.Callback != nil {
		return b.handleCallback(ctx, in)
	}

	if b.users.IsReviewer(in.ChatID) {
		switch {
		case in.Command == "stats" || in.Text == notifier.BtnStats:
			return b.handleStats(ctx, in.ChatID)
		case in.Command == "export" || in.Text == notifier.BtnExport:
			return b.handleExport(ctx, in.ChatID)
		}
	}

	return b.dialog.Handle(ctx, in)
}

func (b *Bot) handleCallback(ctx context.Context, in models.Inbound) error {
	data := in.Callback.Data
	if strings.HasPrefix(data, models.CallbackApprove+":") || strings.HasPrefix(data, models.CallbackReject+":") {
		return b.approval.HandleCallback(ctx, in)
	}
	logging.FromContext(ctx, b.logger).Warn().Str("data", data).Msg("unknown callback")
	return b.messenger.AnswerCallback(ctx, in.Callback.ID, "Кнопка устарела")
}
