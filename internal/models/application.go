package models

import (
	"fmt"
	"strings"
	"time"
)

type CardType string

const (
	CardTypeBarter   CardType = "Бартер"
	CardTypeDiscount CardType = "Скидка"
)

var CardTypes = []CardType{CardTypeBarter, CardTypeDiscount}

func ParseCardType(s string) (CardType, bool) {
	for _, ct := range CardTypes {
		if strings.EqualFold(strings.TrimSpace(s), string(ct)) {
			return ct, true
		}
	}
	return "", false
}

type Frequency string

const (
	FrequencyOneTime     Frequency = "Разовая"
	FrequencyTopUp       Frequency = "Пополнение"
	FrequencyReplacement Frequency = "Замена номера"
)

var Frequencies = []Frequency{FrequencyOneTime, FrequencyTopUp, FrequencyReplacement}

func ParseFrequency(s string) (Frequency, bool) {
	for _, f := range Frequencies {
		if strings.EqualFold(strings.TrimSpace(s), string(f)) {
			return f, true
		}
	}
	return "", false
}

// Status is shared by the status and approval status columns.
type Status string

const (
	StatusPending  Status = "На рассмотрении"
	StatusApproved Status = "Одобрено"
	StatusRejected Status = "Отклонено"
)

// IsTerminal reports whether the verdict has already been given.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func ParseStatus(s string) Status {
	switch strings.TrimSpace(s) {
	case string(StatusApproved):
		return StatusApproved
	case string(StatusRejected):
		return StatusRejected
	case "":
		return ""
	default:
		return StatusPending
	}
}

const (
	ActivatedYes = "Да"
	ActivatedNo  = "Нет"
)

// Application is a loyalty-card request. SheetRow is the 1-based row in the remote sheet, 0 until appended.
type Application struct {
	ID              int64     `json:"id"`
	SheetRow        int       `json:"sheet_row"`
	SubmittedAt     time.Time `json:"submitted_at"`
	Submitter       User      `json:"submitter"`
	OwnerLastName   string    `json:"owner_last_name"`
	OwnerFirstName  string    `json:"owner_first_name"`
	Reason          string    `json:"reason"`
	CardType        CardType  `json:"card_type"`
	CardNumber      string    `json:"card_number"`
	Category        string    `json:"category"`
	Amount          int       `json:"amount"`
	Frequency       Frequency `json:"frequency"`
	IssueLocation   string    `json:"issue_location"`
	Status          Status    `json:"status"`
	ApprovalStatus  Status    `json:"approval_status"`
	RejectionReason string    `json:"rejection_reason"`
	ActivationDate  string    `json:"activation_date"`
	Activated       bool      `json:"activated"`
	Synced          bool      `json:"synced"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (a *Application) OwnerFullName() string {
	return strings.TrimSpace(a.OwnerLastName + " " + a.OwnerFirstName)
}

// AmountLabel renders the amount with its unit: rubles for barter, percent for discount.
func (a *Application) AmountLabel() string {
	if a.CardType == CardTypeDiscount {
		return fmt.Sprintf("%d%%", a.Amount)
	}
	return fmt.Sprintf("%d ₽", a.Amount)
}

// Timestamp formats SubmittedAt in the business timezone.
func (a *Application) Timestamp() string {
	return a.SubmittedAt.In(Moscow).Format(TimestampLayout)
}

// IsDecided reports whether either status column already carries a verdict.
func (a *Application) IsDecided() bool {
	return a.Status.IsTerminal() || a.ApprovalStatus.IsTerminal()
}

// ApprovalIncomplete reports a row whose status says approved while the approval
// column is still pending, as left behind by an interrupted write.
func (a *Application) ApprovalIncomplete() bool {
	return a.Status == StatusApproved && !a.ApprovalStatus.IsTerminal()
}
