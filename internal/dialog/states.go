package dialog

import (
	"context"
	"strings"

	"loyaltybot/internal/google"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"
	"loyaltybot/internal/validate"
)

// state is one dialog step: what to ask and how to consume the answer.
type state interface {
	Prompt(ctx context.Context, e *Engine, pad *models.Scratchpad) models.Reply
	Handle(ctx context.Context, e *Engine, in models.Inbound, pad *models.Scratchpad) error
}

// inputStep reads one text answer. With options the answer must be one of them,
// an empty option list falls back to free text.
type inputStep struct {
	prompt  func(pad *models.Scratchpad) string
	options func(ctx context.Context, e *Engine) []string
	apply   func(ctx context.Context, e *Engine, pad *models.Scratchpad, text string, options []string) (models.Step, error)
}

func fixed(text string) func(*models.Scratchpad) string {
	return func(*models.Scratchpad) string { return text }
}

func (s inputStep) Prompt(ctx context.Context, e *Engine, pad *models.Scratchpad) models.Reply {
	reply := models.Reply{Text: s.prompt(pad), Keyboard: notifier.CancelKeyboard()}
	if s.options != nil {
		if opts := s.options(ctx, e); len(opts) > 0 {
			reply.Keyboard = notifier.OptionsKeyboard(opts)
		}
	}
	return reply
}

func (s inputStep) Handle(ctx context.Context, e *Engine, in models.Inbound, pad *models.Scratchpad) error {
	if strings.TrimSpace(in.Text) == "" {
		return e.reprompt(ctx, pad, "Ожидается текстовый ответ.")
	}

	var opts []string
	if s.options != nil {
		opts = s.options(ctx, e)
	}

	next, err := s.apply(ctx, e, pad, in.Text, opts)
	if err != nil {
		if ve, ok := validate.IsValidation(err); ok {
			return e.reprompt(ctx, pad, ve.Message)
		}
		return err
	}
	if next == pad.Step {
		return nil
	}
	return e.advance(ctx, pad, next)
}

func buildStates() map[models.Step]state {
	return map[models.Step]state{
		// Регистрация
		models.StepAwaitContact: contactStep{},
		models.StepAwaitFullName: inputStep{
			prompt: fixed("Введите ваши фамилию и имя (например: Иванов Иван):"),
			apply: func(_ context.Context, _ *Engine, pad *models.Scratchpad, text string, _ []string) (models.Step, error) {
				v, err := validate.FullName(text)
				if err != nil {
					return pad.Step, err
				}
				pad.FullName = v
				return models.StepAwaitEmail, nil
			},
		},
		models.StepAwaitEmail: inputStep{
			prompt: fixed("Введите рабочую почту:"),
			apply: func(_ context.Context, _ *Engine, pad *models.Scratchpad, text string, _ []string) (models.Step, error) {
				v, err := validate.Email(text)
				if err != nil {
					return pad.Step, err
				}
				pad.Email = v
				return models.StepAwaitJobTitle, nil
			},
		},
		models.StepAwaitJobTitle: inputStep{
			prompt: fixed("Введите вашу должность:"),
			apply: func(ctx context.Context, e *Engine, pad *models.Scratchpad, text string, _ []string) (models.Step, error) {
				v, err := validate.NonEmpty("job_title", text)
				if err != nil {
					return pad.Step, err
				}
				pad.JobTitle = v
				return e.completeRegistration(ctx, pad)
			},
		},

		// Заявка
		models.StepOwnerLastName:  textField("owner_last_name", "Введите фамилию владельца карты:", func(p *models.Scratchpad, v string) { p.OwnerLastName = v }, models.StepOwnerFirstName),
		models.StepOwnerFirstName: textField("owner_first_name", "Введите имя владельца карты:", func(p *models.Scratchpad, v string) { p.OwnerFirstName = v }, models.StepReason),
		models.StepReason:         textField("reason", "Укажите причину выдачи карты:", func(p *models.Scratchpad, v string) { p.Reason = v }, models.StepCardType),
		models.StepCardType: inputStep{
			prompt:  fixed("Выберите тип карты:"),
			options: staticOptions(cardTypeNames()),
			apply: func(_ context.Context, _ *Engine, pad *models.Scratchpad, text string, opts []string) (models.Step, error) {
				v, err := validate.Option("card_type", text, opts)
				if err != nil {
					return pad.Step, err
				}
				ct, _ := models.ParseCardType(v)
				pad.CardType = ct
				// сумма зависит от типа карты
				pad.Amount = nil
				return models.StepCardNumber, nil
			},
		},
		models.StepCardNumber: inputStep{
			prompt: fixed("Введите номер карты (11 цифр, начинается с 8):"),
			apply: func(ctx context.Context, e *Engine, pad *models.Scratchpad, text string, _ []string) (models.Step, error) {
				v, err := validate.CardNumber(text)
				if err != nil {
					return pad.Step, err
				}
				if err := e.checkDuplicate(ctx, v); err != nil {
					return pad.Step, err
				}
				pad.CardNumber = v
				return models.StepCategory, nil
			},
		},
		models.StepCategory: optionField("category", "Выберите категорию:", configOptions(google.ConfigColCategory),
			func(p *models.Scratchpad, v string) { p.Category = v }, models.StepAmount),
		models.StepAmount: inputStep{
			prompt: func(pad *models.Scratchpad) string {
				if pad.CardType == models.CardTypeDiscount {
					return "Введите процент скидки (целое число от 1 до 100):"
				}
				return "Введите сумму в рублях (целое число больше нуля):"
			},
			apply: func(_ context.Context, _ *Engine, pad *models.Scratchpad, text string, _ []string) (models.Step, error) {
				n, err := validate.Amount(text, pad.CardType)
				if err != nil {
					return pad.Step, err
				}
				pad.Amount = &n
				return models.StepFrequency, nil
			},
		},
		models.StepFrequency: inputStep{
			prompt:  fixed("Выберите периодичность:"),
			options: staticOptions(frequencyNames()),
			apply: func(_ context.Context, _ *Engine, pad *models.Scratchpad, text string, opts []string) (models.Step, error) {
				v, err := validate.Option("frequency", text, opts)
				if err != nil {
					return pad.Step, err
				}
				f, _ := models.ParseFrequency(v)
				pad.Frequency = f
				return models.StepIssueLocation, nil
			},
		},
		models.StepIssueLocation: optionField("issue_location", "Выберите место выдачи:", configOptions(google.ConfigColIssueLocation),
			func(p *models.Scratchpad, v string) { p.IssueLocation = v }, models.StepConfirm),
		models.StepConfirm: confirmStep{},

		// Согласование
		models.StepRejectReason: rejectReasonStep{},

		// Поиск
		models.StepSearchField: searchFieldStep{},
		models.StepSearchQuery: searchQueryStep{},
	}
}

func textField(field, prompt string, set func(*models.Scratchpad, string), next models.Step) inputStep {
	return inputStep{
		prompt: fixed(prompt),
		apply: func(_ context.Context, _ *Engine, pad *models.Scratchpad, text string, _ []string) (models.Step, error) {
			v, err := validate.NonEmpty(field, text)
			if err != nil {
				return pad.Step, err
			}
			set(pad, v)
			return next, nil
		},
	}
}

func optionField(field, prompt string, options func(context.Context, *Engine) []string, set func(*models.Scratchpad, string), next models.Step) inputStep {
	return inputStep{
		prompt:  fixed(prompt),
		options: options,
		apply: func(_ context.Context, _ *Engine, pad *models.Scratchpad, text string, opts []string) (models.Step, error) {
			v, err := validate.Option(field, text, opts)
			if err != nil {
				return pad.Step, err
			}
			set(pad, v)
			return next, nil
		},
	}
}

func staticOptions(opts []string) func(context.Context, *Engine) []string {
	return func(context.Context, *Engine) []string { return opts }
}

// configOptions loads a Config tab column. A failed load yields nil and the step takes free text.
func configOptions(column string) func(context.Context, *Engine) []string {
	return func(ctx context.Context, e *Engine) []string {
		opts, err := e.remote.GetConfigOptions(ctx, column)
		if err != nil {
			e.log(ctx).Warn().Err(err).Str("column", column).Msg("config options unavailable, free text input")
			return nil
		}
		return opts
	}
}

func cardTypeNames() []string {
	out := make([]string, 0, len(models.CardTypes))
	for _, ct := range models.CardTypes {
		out = append(out, string(ct))
	}
	return out
}

func frequencyNames() []string {
	out := make([]string, 0, len(models.Frequencies))
	for _, f := range models.Frequencies {
		out = append(out, string(f))
	}
	return out
}

type rejectReasonStep struct{}

func (rejectReasonStep) Prompt(context.Context, *Engine, *models.Scratchpad) models.Reply {
	return models.Reply{Text: "✏️ Укажите причину отказа:", Keyboard: notifier.CancelKeyboard()}
}

func (rejectReasonStep) Handle(ctx context.Context, e *Engine, in models.Inbound, pad *models.Scratchpad) error {
	if e.rejects == nil || !e.users.IsReviewer(in.ChatID) {
		return e.finish(ctx, in.ChatID, "Действие недоступно.")
	}
	return e.rejects.HandleRejectReason(ctx, in, pad)
}
