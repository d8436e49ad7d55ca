package models

import (
	"errors"
	"fmt"
	"time"
)

// Step is the current position of a chat in one of the dialogs.
type Step string

const (
	StepIdle Step = ""

	// Регистрация
	StepAwaitContact  Step = "await_contact"
	StepAwaitFullName Step = "await_full_name"
	StepAwaitEmail    Step = "await_email"
	StepAwaitJobTitle Step = "await_job_title"

	// Заявка
	StepOwnerLastName  Step = "owner_last_name"
	StepOwnerFirstName Step = "owner_first_name"
	StepReason         Step = "reason"
	StepCardType       Step = "card_type"
	StepCardNumber     Step = "card_number"
	StepCategory       Step = "category"
	StepAmount         Step = "amount"
	StepFrequency      Step = "frequency"
	StepIssueLocation  Step = "issue_location"
	StepConfirm        Step = "confirm"

	// Согласование
	StepRejectReason Step = "reject_reason"

	// Поиск
	StepSearchField Step = "search_field"
	StepSearchQuery Step = "search_query"
)

// Steps lists every non-idle step. Handler tables are checked against it.
var Steps = []Step{
	StepAwaitContact, StepAwaitFullName, StepAwaitEmail, StepAwaitJobTitle,
	StepOwnerLastName, StepOwnerFirstName, StepReason, StepCardType, StepCardNumber,
	StepCategory, StepAmount, StepFrequency, StepIssueLocation, StepConfirm,
	StepRejectReason,
	StepSearchField, StepSearchQuery,
}

func (s Step) IsRegistration() bool {
	switch s {
	case StepAwaitContact, StepAwaitFullName, StepAwaitEmail, StepAwaitJobTitle:
		return true
	}
	return false
}

type SearchField string

const (
	SearchByName  SearchField = "name"
	SearchByPhone SearchField = "phone"
)

// ErrIncompleteScratchpad means a dialog reached Confirm without a field it should have collected.
var ErrIncompleteScratchpad = errors.New("scratchpad is incomplete")

// Scratchpad accumulates dialog input for one chat until commit or cancel.
type Scratchpad struct {
	ChatID   int64  `json:"chat_id"`
	Step     Step   `json:"step"`
	Username string `json:"username,omitempty"`

	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	JobTitle string `json:"job_title,omitempty"`
	Phone    string `json:"phone,omitempty"`

	OwnerLastName  string    `json:"owner_last_name,omitempty"`
	OwnerFirstName string    `json:"owner_first_name,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CardType       CardType  `json:"card_type,omitempty"`
	CardNumber     string    `json:"card_number,omitempty"`
	Category       string    `json:"category,omitempty"`
	Amount         *int      `json:"amount,omitempty"`
	Frequency      Frequency `json:"frequency,omitempty"`
	IssueLocation  string    `json:"issue_location,omitempty"`

	TargetRow       int `json:"target_row,omitempty"`
	TargetMessageID int `json:"target_message_id,omitempty"`

	SearchField SearchField `json:"search_field,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewScratchpad(chatID int64, username string) *Scratchpad {
	return &Scratchpad{ChatID: chatID, Username: username, UpdatedAt: time.Now()}
}

// Initiator returns the submitter fields collected during registration or hydrated from storage.
func (s *Scratchpad) Initiator() User {
	return User{
		TelegramID: s.ChatID,
		Username:   s.Username,
		FullName:   s.FullName,
		Email:      s.Email,
		JobTitle:   s.JobTitle,
		Phone:      s.Phone,
	}
}

// Hydrate copies initiator fields from a stored user.
func (s *Scratchpad) Hydrate(u *User) {
	s.FullName = u.FullName
	s.Email = u.Email
	s.JobTitle = u.JobTitle
	s.Phone = u.Phone
	if s.Username == "" {
		s.Username = u.Username
	}
}

// ResetApplication drops card fields so a new submission starts clean.
func (s *Scratchpad) ResetApplication() {
	s.OwnerLastName = ""
	s.OwnerFirstName = ""
	s.Reason = ""
	s.CardType = ""
	s.CardNumber = ""
	s.Category = ""
	s.Amount = nil
	s.Frequency = ""
	s.IssueLocation = ""
}

// Finalize builds a pending Application. A missing field is a dialog bug, not user error.
func (s *Scratchpad) Finalize(now time.Time) (*Application, error) {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s", ErrIncompleteScratchpad, name)
	}

	switch {
	case s.FullName == "":
		return nil, missing("full_name")
	case s.OwnerLastName == "":
		return nil, missing("owner_last_name")
	case s.OwnerFirstName == "":
		return nil, missing("owner_first_name")
	case s.Reason == "":
		return nil, missing("reason")
	case s.CardType == "":
		return nil, missing("card_type")
	case s.CardNumber == "":
		return nil, missing("card_number")
	case s.Category == "":
		return nil, missing("category")
	case s.Amount == nil:
		return nil, missing("amount")
	case s.Frequency == "":
		return nil, missing("frequency")
	case s.IssueLocation == "":
		return nil, missing("issue_location")
	}

	return &Application{
		SubmittedAt:    now,
		Submitter:      s.Initiator(),
		OwnerLastName:  s.OwnerLastName,
		OwnerFirstName: s.OwnerFirstName,
		Reason:         s.Reason,
		CardType:       s.CardType,
		CardNumber:     s.CardNumber,
		Category:       s.Category,
		Amount:         *s.Amount,
		Frequency:      s.Frequency,
		IssueLocation:  s.IssueLocation,
		Status:         StatusPending,
		ApprovalStatus: StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
