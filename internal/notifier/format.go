package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"loyaltybot/internal/models"
)

// Esc escapes user supplied text for HTML parse mode.
func Esc(s string) string {
	return html.EscapeString(s)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return Esc(s)
}

// ReviewRequest is the reviewer notification for a new application.
// The layout is relied upon by the reviewer, keep it stable.
func ReviewRequest(app *models.Application) string {
	var sb strings.Builder
	sb.WriteString("🆕 <b>Новая заявка на карту лояльности</b>\n\n")
	fmt.Fprintf(&sb, "📅 Дата: %s\n", app.Timestamp())
	fmt.Fprintf(&sb, "👤 Инициатор: %s (%s)\n", orDash(app.Submitter.FullName), Esc(app.Submitter.Handle()))
	fmt.Fprintf(&sb, "📧 Почта: %s\n", orDash(app.Submitter.Email))
	fmt.Fprintf(&sb, "💼 Должность: %s\n", orDash(app.Submitter.JobTitle))
	fmt.Fprintf(&sb, "📞 Телефон: %s\n\n", orDash(app.Submitter.Phone))
	fmt.Fprintf(&sb, "🪪 Владелец: %s\n", orDash(app.OwnerFullName()))
	fmt.Fprintf(&sb, "📝 Причина: %s\n", orDash(app.Reason))
	fmt.Fprintf(&sb, "💳 Тип карты: %s\n", orDash(string(app.CardType)))
	fmt.Fprintf(&sb, "🔢 Номер карты: <code>%s</code>\n", Esc(app.CardNumber))
	fmt.Fprintf(&sb, "🏷 Категория: %s\n", orDash(app.Category))
	fmt.Fprintf(&sb, "💰 Сумма/процент: %s\n", Esc(app.AmountLabel()))
	fmt.Fprintf(&sb, "🔁 Периодичность: %s\n", orDash(string(app.Frequency)))
	fmt.Fprintf(&sb, "📍 Место выдачи: %s\n\n", orDash(app.IssueLocation))
	fmt.Fprintf(&sb, "Строка в таблице: %d", app.SheetRow)
	return sb.String()
}

// ReviewKeyboard carries approve:<row> and reject:<row>.
func ReviewKeyboard(row int) [][]models.Button {
	return [][]models.Button{{
		{Text: "✅ Одобрить", Data: fmt.Sprintf("%s:%d", models.CallbackApprove, row)},
		{Text: "❌ Отклонить", Data: fmt.Sprintf("%s:%d", models.CallbackReject, row)},
	}}
}

// ApplicationSummary is shown to the submitter before confirmation.
func ApplicationSummary(app *models.Application) string {
	var sb strings.Builder
	sb.WriteString("📋 <b>Проверьте заявку</b>\n\n")
	fmt.Fprintf(&sb, "🪪 Владелец: %s\n", orDash(app.OwnerFullName()))
	fmt.Fprintf(&sb, "📝 Причина: %s\n", orDash(app.Reason))
	fmt.Fprintf(&sb, "💳 Тип карты: %s\n", orDash(string(app.CardType)))
	fmt.Fprintf(&sb, "🔢 Номер карты: <code>%s</code>\n", Esc(app.CardNumber))
	fmt.Fprintf(&sb, "🏷 Категория: %s\n", orDash(app.Category))
	fmt.Fprintf(&sb, "💰 Сумма/процент: %s\n", Esc(app.AmountLabel()))
	fmt.Fprintf(&sb, "🔁 Периодичность: %s\n", orDash(string(app.Frequency)))
	fmt.Fprintf(&sb, "📍 Место выдачи: %s\n\n", orDash(app.IssueLocation))
	sb.WriteString("Всё верно?")
	return sb.String()
}

func statusIcon(s models.Status) string {
	switch s {
	case models.StatusApproved:
		return "✅"
	case models.StatusRejected:
		return "❌"
	default:
		return "⏳"
	}
}

// ApplicationLine is one entry in "my applications" and search results.
func ApplicationLine(app *models.Application) string {
	status := app.Status
	if status == "" {
		status = models.StatusPending
	}
	line := fmt.Sprintf("%s <code>%s</code> %s, %s, %s",
		statusIcon(status), Esc(app.CardNumber), orDash(app.OwnerFullName()),
		Esc(app.AmountLabel()), Esc(string(status)))
	if !app.SubmittedAt.IsZero() {
		line += " (" + app.SubmittedAt.In(models.Moscow).Format(models.DateLayout) + ")"
	}
	if status == models.StatusRejected && app.RejectionReason != "" {
		line += "\n   Причина: " + Esc(app.RejectionReason)
	}
	return line
}

// ApplicationList renders a titled list, or empty text when there is nothing to show.
func ApplicationList(title, empty string, apps []*models.Application) string {
	if len(apps) == 0 {
		return empty
	}
	var sb strings.Builder
	sb.WriteString("<b>" + Esc(title) + "</b>\n")
	for i, a := range apps {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, ApplicationLine(a))
		if a.Submitter.FullName != "" {
			fmt.Fprintf(&sb, "\n   Инициатор: %s", Esc(a.Submitter.FullName))
		}
	}
	return sb.String()
}

func ApprovedVerdict(app *models.Application, activationDate, reviewer string) string {
	var sb strings.Builder
	sb.WriteString("✅ <b>Ваша заявка одобрена!</b>\n\n")
	fmt.Fprintf(&sb, "💳 Карта: <code>%s</code> (%s)\n", Esc(app.CardNumber), orDash(string(app.CardType)))
	fmt.Fprintf(&sb, "🪪 Владелец: %s\n", orDash(app.OwnerFullName()))
	fmt.Fprintf(&sb, "📅 Дата активации: %s после 22:00\n", Esc(activationDate))
	fmt.Fprintf(&sb, "👤 Согласовал: %s", orDash(reviewer))
	return sb.String()
}

func RejectedVerdict(app *models.Application, reason, reviewer string) string {
	var sb strings.Builder
	sb.WriteString("❌ <b>Ваша заявка отклонена</b>\n\n")
	fmt.Fprintf(&sb, "💳 Карта: <code>%s</code>\n", Esc(app.CardNumber))
	fmt.Fprintf(&sb, "🪪 Владелец: %s\n", orDash(app.OwnerFullName()))
	fmt.Fprintf(&sb, "📝 Причина: %s\n", orDash(reason))
	fmt.Fprintf(&sb, "👤 Отклонил: %s", orDash(reviewer))
	return sb.String()
}

func deliveryLine(app *models.Application, delivered bool) string {
	if delivered {
		return "Уведомление отправлено " + Esc(app.Submitter.Handle())
	}
	return "⚠️ Уведомление " + Esc(app.Submitter.Handle()) + " не доставлено"
}

// ApprovedBanner replaces the reviewer notification once the approval is stored.
func ApprovedBanner(app *models.Application, activationDate string, delivered bool) string {
	return fmt.Sprintf("%s\n\n✅ <b>Одобрено</b>. Активация %s.\n%s",
		ReviewRequest(app), Esc(activationDate), deliveryLine(app, delivered))
}

func RejectedBanner(app *models.Application, reason string, delivered bool) string {
	return fmt.Sprintf("%s\n\n❌ <b>Отклонено</b>: %s\n%s",
		ReviewRequest(app), Esc(reason), deliveryLine(app, delivered))
}

// AlreadyDecided replaces the notification when the row carries a verdict already.
func AlreadyDecided(app *models.Application) string {
	status := app.ApprovalStatus
	if !status.IsTerminal() {
		status = app.Status
	}
	return fmt.Sprintf("%s\n\nℹ️ Решение уже принято: %s", ReviewRequest(app), Esc(string(status)))
}

// Annotate appends a warning banner to the plain text of an existing message.
func Annotate(original, banner string) string {
	if strings.TrimSpace(original) == "" {
		return "⚠️ " + Esc(banner)
	}
	return Esc(original) + "\n\n⚠️ " + Esc(banner)
}

func DeliveryFailed(app *models.Application, cause error) string {
	return fmt.Sprintf("⚠️ Не удалось уведомить %s о решении по строке %d: %s\nСвяжитесь с инициатором напрямую.",
		Esc(app.Submitter.Handle()), app.SheetRow, Esc(cause.Error()))
}

func Reminder(u *models.User) string {
	name := strings.TrimSpace(u.FullName)
	if name == "" {
		name = u.Handle()
	}
	return fmt.Sprintf("👋 %s, давно не виделись!\n\nЕсли нужно оформить новую карту лояльности, нажмите «📝 Новая заявка».", Esc(name))
}

func sortedCounts(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  • %s: %d", Esc(k), m[k]))
	}
	return lines
}

// Statistics renders aggregate counts.
func Statistics(title string, s *models.Statistics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>%s</b>\n\nВсего заявок: %d\n", Esc(title), s.Total)
	if lines := sortedCounts(s.ByStatus); len(lines) > 0 {
		sb.WriteString("\nПо статусу:\n" + strings.Join(lines, "\n") + "\n")
	}
	if lines := sortedCounts(s.ByCardType); len(lines) > 0 {
		sb.WriteString("\nПо типу карты:\n" + strings.Join(lines, "\n") + "\n")
	}
	if lines := sortedCounts(s.ByCategory); len(lines) > 0 {
		sb.WriteString("\nПо категории:\n" + strings.Join(lines, "\n") + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// PeriodReport renders the daily or weekly summary.
func PeriodReport(title string, r *models.PeriodReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📈 <b>%s</b>\n", Esc(title))
	fmt.Fprintf(&sb, "%s – %s\n\n",
		r.From.In(models.Moscow).Format("02.01.2006 15:04"),
		r.To.In(models.Moscow).Format("02.01.2006 15:04"))
	fmt.Fprintf(&sb, "🆕 Новых: %d\n", r.New)
	fmt.Fprintf(&sb, "✅ Одобрено: %d\n", r.Approved)
	fmt.Fprintf(&sb, "❌ Отклонено: %d\n", r.Rejected)
	fmt.Fprintf(&sb, "⏳ Ожидают решения (всего): %d", r.Pending)
	if r.Totals != nil {
		sb.WriteString("\n\n" + Statistics("Итого", r.Totals))
	}
	if r.Source == models.ReportSourceLocal {
		sb.WriteString("\n\n⚠️ Таблица недоступна, данные из локальной базы.")
	}
	return sb.String()
}
