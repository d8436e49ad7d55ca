package notifier

import "loyaltybot/internal/models"

// Main menu and dialog button labels.
const (
	BtnNewApplication = "📝 Новая заявка"
	BtnMyApplications = "📋 Мои заявки"
	BtnSearch         = "🔍 Поиск заявок"
	BtnStats          = "📊 Статистика"
	BtnExport         = "📤 Выгрузка"
	BtnCancel         = "❌ Отмена"
	BtnConfirm        = "✅ Отправить"
	BtnShareContact   = "📱 Поделиться контактом"
	BtnSearchByName   = "👤 По ФИО владельца"
	BtnSearchByPhone  = "📞 По телефону / номеру карты"
)

func MainMenu(reviewer bool) [][]models.Button {
	rows := [][]models.Button{
		{{Text: BtnNewApplication}},
		{{Text: BtnMyApplications}, {Text: BtnSearch}},
	}
	if reviewer {
		rows = append(rows, []models.Button{{Text: BtnStats}, {Text: BtnExport}})
	}
	return rows
}

func CancelKeyboard() [][]models.Button {
	return [][]models.Button{{{Text: BtnCancel}}}
}

func ContactKeyboard() [][]models.Button {
	return [][]models.Button{
		{{Text: BtnShareContact, RequestContact: true}},
		{{Text: BtnCancel}},
	}
}

func ConfirmKeyboard() [][]models.Button {
	return [][]models.Button{{{Text: BtnConfirm}, {Text: BtnCancel}}}
}

// OptionsKeyboard lays options out two per row with a cancel row at the end.
func OptionsKeyboard(options []string) [][]models.Button {
	rows := make([][]models.Button, 0, len(options)/2+2)
	for i := 0; i < len(options); i += 2 {
		row := []models.Button{{Text: options[i]}}
		if i+1 < len(options) {
			row = append(row, models.Button{Text: options[i+1]})
		}
		rows = append(rows, row)
	}
	return append(rows, []models.Button{{Text: BtnCancel}})
}
