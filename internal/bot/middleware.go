package bot

import (
	"context"
	"runtime/debug"
	"time"

	"loyaltybot/internal/logging"
	"loyaltybot/internal/metrics"
	"loyaltybot/internal/models"
)

func (b *Bot) withRecovery(ctx context.Context, chatID int64, handler func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncPanic()
			logging.FromContext(ctx, b.logger).Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic in update handler")
			_, _ = b.messenger.Send(ctx, chatID, models.Reply{Text: userMessage(nil)})
		}
	}()
	handler()
}

// allow applies the per-chat rate limit. The reviewer is never limited and a failed check lets the update through.
func (b *Bot) allow(ctx context.Context, in models.Inbound) bool {
	if b.users.IsReviewer(in.ChatID) {
		return true
	}
	window := time.Duration(b.config.RateLimitWindow) * time.Second
	allowed, err := b.state.CheckRateLimit(ctx, in.ChatID, b.config.RateLimitMessages, window)
	if err != nil {
		logging.FromContext(ctx, b.logger).Error().Err(err).Msg("Rate limit check failed")
		return true
	}
	if allowed {
		return true
	}

	logging.FromContext(ctx, b.logger).Warn().Msg("Rate limit exceeded")
	const text = "⚠️ Вы отправляете сообщения слишком часто. Пожалуйста, подождите немного."
	if in.Callback != nil {
		_ = b.messenger.AnswerCallback(ctx, in.Callback.ID, text)
	} else {
		_, _ = b.messenger.Send(ctx, in.ChatID, models.Reply{Text: text})
	}
	return false
}

func (b *Bot) trackActivity(ctx context.Context, chatID int64) {
	if chatID == 0 || b.users.IsReviewer(chatID) {
		return
	}
	b.users.Touch(ctx, chatID)
}
