// Package validate holds the field predicates used by the dialogs.
package validate

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"loyaltybot/internal/models"
)

// Error is a user-facing validation failure. Message is shown back to the user as the corrective prompt.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

func newError(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// IsValidation reports whether err is a validation failure and returns it.
func IsValidation(err error) (*Error, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

var (
	emailRe      = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)
	cardNumberRe = regexp.MustCompile(`^8\d{10}$`)
	scriptRe     = regexp.MustCompile(`(?i)(<\s*/?\s*script[^>]*>?|javascript\s*:|on[a-z]+\s*=)`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Sanitize strips angle brackets and script-like fragments, collapses whitespace and caps length in runes.
func Sanitize(s string, limit int) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		s = strings.TrimSpace(string([]rune(s)[:limit]))
	}
	return s
}

func Short(s string) string {
	return Sanitize(s, models.MaxShortField)
}

// Email sanitizes and checks the address shape.
func Email(raw string) (string, error) {
	email := Sanitize(raw, models.MaxEmailField)
	if !emailRe.MatchString(email) {
		return "", newError("email", "Некорректный email. Пример: ivan@company.ru")
	}
	return email, nil
}

// FullName requires at least two words.
func FullName(raw string) (string, error) {
	name := Short(raw)
	if len(strings.Fields(name)) < 2 {
		return "", newError("full_name", "Введите фамилию и имя через пробел, например: Иванов Иван")
	}
	return name, nil
}

// NonEmpty checks a free-text field after sanitization.
func NonEmpty(field, raw string) (string, error) {
	v := Short(raw)
	if v == "" {
		return "", newError(field, "Поле не может быть пустым, попробуйте ещё раз")
	}
	return v, nil
}

// CardNumber accepts exactly 11 digits starting with 8. Only surrounding whitespace is trimmed.
func CardNumber(raw string) (string, error) {
	number := strings.TrimSpace(raw)
	if !cardNumberRe.MatchString(number) {
		return "", newError("card_number", "Номер карты должен состоять из 11 цифр и начинаться с 8")
	}
	return number, nil
}

// Amount parses an integer. Discount is a percent in [1,100], barter is a positive ruble amount.
func Amount(raw string, cardType models.CardType) (int, error) {
	cleaned := strings.TrimSuffix(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""), "%")
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, newError("amount", "Введите целое число")
	}

	switch cardType {
	case models.CardTypeDiscount:
		if n < 1 || n > 100 {
			return 0, newError("amount", "Процент скидки должен быть от 1 до 100")
		}
	default:
		if n <= 0 {
			return 0, newError("amount", "Сумма должна быть больше нуля")
		}
	}
	return n, nil
}

// Option checks membership in allowed. An empty list means the options could not be loaded and any non-empty text is accepted.
func Option(field, raw string, allowed []string) (string, error) {
	v := Short(raw)
	if v == "" {
		return "", newError(field, "Выберите значение из списка")
	}
	if len(allowed) == 0 {
		return v, nil
	}
	for _, opt := range allowed {
		if strings.EqualFold(strings.TrimSpace(opt), v) {
			return strings.TrimSpace(opt), nil
		}
	}
	return "", newError(field, "Выберите значение из списка кнопками ниже")
}

// NormalizePhone приводит номер к виду 7XXXXXXXXXX, пустая строка при неверном формате
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	switch {
	case len(cleaned) == 11 && cleaned[0] == '8':
		return "7" + cleaned[1:]
	case len(cleaned) == 11 && cleaned[0] == '7':
		return cleaned
	case len(cleaned) == 10:
		return "7" + cleaned
	}
	return ""
}

// FormatPhone renders a normalized number as +7XXXXXXXXXX, passing anything else through.
func FormatPhone(phone string) string {
	if n := NormalizePhone(phone); n != "" {
		return "+" + n
	}
	return strings.TrimSpace(phone)
}
