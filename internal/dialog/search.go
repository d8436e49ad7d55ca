package dialog

import (
	"context"
	"unicode/utf8"

	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"
	"loyaltybot/internal/validate"
)

const searchLimit = 20

// StartSearch asks which field to search by.
func (e *Engine) StartSearch(ctx context.Context, in models.Inbound) error {
	pad := models.NewScratchpad(in.ChatID, in.Username)
	return e.advance(ctx, pad, models.StepSearchField)
}

type searchFieldStep struct{}

func (searchFieldStep) Prompt(context.Context, *Engine, *models.Scratchpad) models.Reply {
	return models.Reply{
		Text: "🔍 Как ищем?",
		Keyboard: [][]models.Button{
			{{Text: notifier.BtnSearchByName}},
			{{Text: notifier.BtnSearchByPhone}},
			{{Text: notifier.BtnCancel}},
		},
	}
}

func (searchFieldStep) Handle(ctx context.Context, e *Engine, in models.Inbound, pad *models.Scratchpad) error {
	switch in.Text {
	case notifier.BtnSearchByName:
		pad.SearchField = models.SearchByName
	case notifier.BtnSearchByPhone:
		pad.SearchField = models.SearchByPhone
	default:
		return e.reprompt(ctx, pad, "Выберите вариант кнопкой ниже.")
	}
	return e.advance(ctx, pad, models.StepSearchQuery)
}

type searchQueryStep struct{}

func (searchQueryStep) Prompt(_ context.Context, _ *Engine, pad *models.Scratchpad) models.Reply {
	text := "Введите фамилию или имя владельца карты:"
	if pad.SearchField == models.SearchByPhone {
		text = "Введите телефон инициатора или номер карты (можно часть):"
	}
	return models.Reply{Text: text, Keyboard: notifier.CancelKeyboard()}
}

func (searchQueryStep) Handle(ctx context.Context, e *Engine, in models.Inbound, pad *models.Scratchpad) error {
	query := validate.Short(in.Text)
	if utf8.RuneCountInString(query) < 2 {
		return e.reprompt(ctx, pad, "Запрос должен быть не короче 2 символов.")
	}

	// обычный пользователь видит только свои заявки
	scope := in.ChatID
	if e.users.IsReviewer(in.ChatID) {
		scope = 0
	}

	apps, err := e.local.SearchApplications(ctx, query, pad.SearchField, scope, searchLimit)
	if err != nil {
		e.log(ctx).Error().Err(err).Str("query", query).Msg("search failed")
		return e.finish(ctx, in.ChatID, "⚠️ Поиск сейчас недоступен, попробуйте позже.")
	}
	return e.finish(ctx, in.ChatID, notifier.ApplicationList("Результаты поиска", "Ничего не найдено.", apps))
}

// MyApplications lists the latest applications of the chat from the local store.
func (e *Engine) MyApplications(ctx context.Context, in models.Inbound) error {
	apps, err := e.local.ListUserApplications(ctx, in.ChatID, e.myAppsMax)
	if err != nil {
		e.log(ctx).Error().Err(err).Msg("failed to list user applications")
		return e.menu(ctx, in.ChatID, "⚠️ Не удалось загрузить заявки, попробуйте позже.")
	}
	return e.menu(ctx, in.ChatID, notifier.ApplicationList("Мои заявки", "У вас пока нет заявок.", apps))
}
