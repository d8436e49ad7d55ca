package dialog

import (
	"context"

	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"
	"loyaltybot/internal/validate"
)

// contactStep accepts only the sender's own shared contact.
type contactStep struct{}

func (contactStep) Prompt(context.Context, *Engine, *models.Scratchpad) models.Reply {
	return models.Reply{
		Text:     "Нажмите «" + notifier.BtnShareContact + "», чтобы передать ваш номер телефона.",
		Keyboard: notifier.ContactKeyboard(),
	}
}

func (contactStep) Handle(ctx context.Context, e *Engine, in models.Inbound, pad *models.Scratchpad) error {
	if in.Contact == nil {
		return e.reprompt(ctx, pad, "Номер нужно отправить кнопкой ниже.")
	}
	if in.Contact.UserID != in.UserID {
		return e.reprompt(ctx, pad, "Отправьте, пожалуйста, свой контакт, а не чужой.")
	}

	pad.Phone = validate.FormatPhone(in.Contact.PhoneNumber)
	if pad.Username == "" {
		pad.Username = in.Username
	}
	return e.advance(ctx, pad, models.StepAwaitFullName)
}

// completeRegistration stores the user and continues with the application itself.
func (e *Engine) completeRegistration(ctx context.Context, pad *models.Scratchpad) (models.Step, error) {
	user := pad.Initiator()
	if err := e.users.Register(ctx, &user); err != nil {
		// the sheet row written with the first application is what makes the user registered
		e.log(ctx).Error().Err(err).Msg("failed to store user locally")
	}

	if _, err := e.messenger.Send(ctx, pad.ChatID, models.Reply{
		Text: "✅ Регистрация завершена! Теперь заполним заявку.",
	}); err != nil {
		return pad.Step, err
	}
	return models.StepOwnerLastName, nil
}
