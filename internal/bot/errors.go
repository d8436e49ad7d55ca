package bot

import (
	"errors"

	"loyaltybot/internal/approval"
	"loyaltybot/internal/database"
	"loyaltybot/internal/google"
	"loyaltybot/internal/validate"
)

// errorKind labels a handler error for logs.
func errorKind(err error) string {
	if _, ok := validate.IsValidation(err); ok {
		return "validation"
	}

	switch {
	case errors.Is(err, approval.ErrForbidden):
		return "forbidden"
	case errors.Is(err, approval.ErrCallbackFormat):
		return "callback_format"
	case errors.Is(err, approval.ErrNotify):
		return "notification"
	case errors.Is(err, google.ErrRemote):
		return "remote_store"
	case errors.Is(err, database.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// userMessage is the fallback text for failures nobody has answered yet.
func userMessage(err error) string {
	if errors.Is(err, google.ErrRemote) {
		return "⚠️ Таблица сейчас недоступна. Пожалуйста, попробуйте позже."
	}
	return "❌ Произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте позже или нажмите /start."
}
