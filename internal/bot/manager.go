package bot

import (
	"context"
	"fmt"
	"os"
	"time"

	"loyaltybot/internal/logging"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"
)

const statsWindow = 7 * 24 * time.Hour

// handleStats sends the reviewer a seven day report with global totals.
func (b *Bot) handleStats(ctx context.Context, chatID int64) error {
	now := b.now()
	report := b.reports.Report(ctx, now.Add(-statsWindow), now, true)
	_, err := b.messenger.Send(ctx, chatID, models.Reply{
		Text:     notifier.PeriodReport("Статистика за 7 дней", report),
		Keyboard: notifier.MainMenu(true),
	})
	return err
}

// handleExport sends every application as an XLSX file. The sheet is preferred, the local store is the fallback.
func (b *Bot) handleExport(ctx context.Context, chatID int64) error {
	log := logging.FromContext(ctx, b.logger)

	source := models.ReportSourceRemote
	apps, err := b.remote.ListApplications(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("sheet unavailable, exporting local store")
		source = models.ReportSourceLocal
		apps, err = b.local.ListApplications(ctx, time.Time{}, b.now().Add(24*time.Hour))
		if err != nil {
			_, _ = b.messenger.Send(ctx, chatID, models.Reply{Text: "❌ Не удалось получить заявки для выгрузки."})
			return fmt.Errorf("load applications for export: %w", err)
		}
	}

	path, err := b.exporter.Applications(apps, source)
	if err != nil {
		_, _ = b.messenger.Send(ctx, chatID, models.Reply{Text: "❌ Не удалось сформировать файл выгрузки."})
		return err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove export file")
		}
	}()

	caption := fmt.Sprintf("📤 Выгрузка заявок: %d", len(apps))
	if source == models.ReportSourceLocal {
		caption += " (из локальной базы)"
	}
	if err := b.messenger.SendDocument(ctx, chatID, path, caption); err != nil {
		_, _ = b.messenger.Send(ctx, chatID, models.Reply{Text: "❌ Не удалось отправить файл выгрузки."})
		return err
	}
	return nil
}
