package google

import (
	"strconv"
	"strings"
	"time"

	"loyaltybot/internal/models"
)

// Заголовки листа заявок. Колонки ищутся по имени, порядок задаёт владелец таблицы.
const (
	ColTimestamp       = "Отметка времени"
	ColTelegramID      = "Telegram ID"
	ColUsername        = "Ник в Telegram"
	ColFullName        = "ФИО инициатора"
	ColEmail           = "Почта инициатора"
	ColJobTitle        = "Должность"
	ColPhone           = "Телефон инициатора"
	ColOwnerLastName   = "Фамилия владельца карты"
	ColOwnerFirstName  = "Имя владельца карты"
	ColReason          = "Причина выдачи"
	ColCardType        = "Тип карты"
	ColCardNumber      = "Номер карты"
	ColCategory        = "Категория"
	ColAmount          = "Сумма/процент"
	ColFrequency       = "Периодичность"
	ColIssueLocation   = "Место выдачи"
	ColStatus          = "Статус"
	ColApprovalStatus  = "Статус согласования"
	ColRejectionReason = "Причина отказа"
	ColActivationDate  = "Дата активации"
	ColActivated       = "Активирована"
)

// Колонки листа Config
const (
	ConfigColCategory      = "Категория"
	ConfigColIssueLocation = "Место выдачи"
)

// normalizeHeader trims, collapses inner whitespace and newlines, and folds case.
func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// cellString converts a value returned by the API into text.
func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// Record is one sheet row keyed by normalized header.
type Record struct {
	Row    int
	fields map[string]string
}

func newRecord(row int, headers []string, values []interface{}) *Record {
	r := &Record{Row: row, fields: make(map[string]string, len(headers))}
	for i, h := range headers {
		if h == "" {
			continue
		}
		var v string
		if i < len(values) {
			v = cellString(values[i])
		}
		r.fields[h] = v
	}
	return r
}

// Get returns the cell under column, tolerating whitespace and case differences in the name.
func (r *Record) Get(column string) string {
	if r == nil {
		return ""
	}
	return r.fields[normalizeHeader(column)]
}

// Has reports whether the sheet has this column at all.
func (r *Record) Has(column string) bool {
	_, ok := r.fields[normalizeHeader(column)]
	return ok
}

func (r *Record) ChatID() int64 {
	id, _ := strconv.ParseInt(r.Get(ColTelegramID), 10, 64)
	return id
}

func (r *Record) Status() models.Status {
	return models.ParseStatus(r.Get(ColStatus))
}

// IsTerminal reports whether either status column already carries a verdict.
func (r *Record) IsTerminal() bool {
	return r.Status().IsTerminal() || models.ParseStatus(r.Get(ColApprovalStatus)).IsTerminal()
}

// Initiator extracts the denormalized submitter fields.
func (r *Record) Initiator() *models.User {
	return &models.User{
		TelegramID: r.ChatID(),
		Username:   strings.TrimPrefix(r.Get(ColUsername), "@"),
		FullName:   r.Get(ColFullName),
		Email:      r.Get(ColEmail),
		JobTitle:   r.Get(ColJobTitle),
		Phone:      r.Get(ColPhone),
	}
}

// SubmittedAt parses the timestamp column in the business timezone.
func (r *Record) SubmittedAt() (time.Time, bool) {
	ts, err := time.ParseInLocation(models.TimestampLayout, r.Get(ColTimestamp), models.Moscow)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Application converts the row back into the domain type.
func (r *Record) Application() *models.Application {
	app := &models.Application{
		SheetRow:        r.Row,
		Submitter:       *r.Initiator(),
		OwnerLastName:   r.Get(ColOwnerLastName),
		OwnerFirstName:  r.Get(ColOwnerFirstName),
		Reason:          r.Get(ColReason),
		CardType:        models.CardType(r.Get(ColCardType)),
		CardNumber:      r.Get(ColCardNumber),
		Category:        r.Get(ColCategory),
		Frequency:       models.Frequency(r.Get(ColFrequency)),
		IssueLocation:   r.Get(ColIssueLocation),
		Status:          r.Status(),
		ApprovalStatus:  models.ParseStatus(r.Get(ColApprovalStatus)),
		RejectionReason: r.Get(ColRejectionReason),
		ActivationDate:  r.Get(ColActivationDate),
		Activated:       strings.EqualFold(r.Get(ColActivated), models.ActivatedYes),
		Synced:          true,
	}
	if ts, ok := r.SubmittedAt(); ok {
		app.SubmittedAt = ts
	}
	amount := strings.TrimSpace(strings.TrimSuffix(strings.ReplaceAll(r.Get(ColAmount), " ", ""), "%"))
	if n, err := strconv.Atoi(amount); err == nil {
		app.Amount = n
	} else if f, err := strconv.ParseFloat(amount, 64); err == nil {
		app.Amount = int(f)
	}
	return app
}

// applicationFields maps normalized headers to the values written on append.
func applicationFields(app *models.Application) map[string]string {
	username := strings.TrimPrefix(app.Submitter.Username, "@")
	if username != "" {
		username = "@" + username
	}
	status := app.Status
	if status == "" {
		status = models.StatusPending
	}
	approval := app.ApprovalStatus
	if approval == "" {
		approval = models.StatusPending
	}
	activated := models.ActivatedNo
	if app.Activated {
		activated = models.ActivatedYes
	}

	fields := map[string]string{
		ColTimestamp:       app.Timestamp(),
		ColTelegramID:      strconv.FormatInt(app.Submitter.TelegramID, 10),
		ColUsername:        username,
		ColFullName:        app.Submitter.FullName,
		ColEmail:           app.Submitter.Email,
		ColJobTitle:        app.Submitter.JobTitle,
		ColPhone:           app.Submitter.Phone,
		ColOwnerLastName:   app.OwnerLastName,
		ColOwnerFirstName:  app.OwnerFirstName,
		ColReason:          app.Reason,
		ColCardType:        string(app.CardType),
		ColCardNumber:      app.CardNumber,
		ColCategory:        app.Category,
		ColAmount:          strconv.Itoa(app.Amount),
		ColFrequency:       string(app.Frequency),
		ColIssueLocation:   app.IssueLocation,
		ColStatus:          string(status),
		ColApprovalStatus:  string(approval),
		ColRejectionReason: app.RejectionReason,
		ColActivationDate:  app.ActivationDate,
		ColActivated:       activated,
	}

	normalized := make(map[string]string, len(fields))
	for k, v := range fields {
		normalized[normalizeHeader(k)] = v
	}
	return normalized
}

// columnLetter converts a 0-based index into A1 notation letters.
func columnLetter(idx int) string {
	var out []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		out = append([]byte{byte('A' + (n-1)%26)}, out...)
	}
	return string(out)
}
