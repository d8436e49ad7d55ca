package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledScratchpad() *Scratchpad {
	amount := 5000
	return &Scratchpad{
		ChatID:         42,
		Username:       "ivanov",
		FullName:       "Иванов Иван",
		Email:          "ivan@acme.com",
		JobTitle:       "Менеджер",
		Phone:          "+79991234567",
		OwnerLastName:  "Петров",
		OwnerFirstName: "Пётр",
		Reason:         "Партнёр",
		CardType:       CardTypeBarter,
		CardNumber:     "89991234567",
		Category:       "ART",
		Amount:         &amount,
		Frequency:      FrequencyOneTime,
		IssueLocation:  "Москва",
	}
}

func TestScratchpad_Finalize(t *testing.T) {
	now := time.Date(2025, 3, 6, 18, 0, 0, 0, Moscow)

	t.Run("Complete", func(t *testing.T) {
		app, err := filledScratchpad().Finalize(now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, app.Status)
		assert.Equal(t, StatusPending, app.ApprovalStatus)
		assert.Equal(t, int64(42), app.Submitter.TelegramID)
		assert.Equal(t, "Иванов Иван", app.Submitter.FullName)
		assert.Equal(t, 5000, app.Amount)
		assert.Equal(t, "Петров Пётр", app.OwnerFullName())
		assert.Equal(t, "2025-03-06 18:00:00", app.Timestamp())
	})

	t.Run("MissingAmount", func(t *testing.T) {
		s := filledScratchpad()
		s.Amount = nil
		_, err := s.Finalize(now)
		assert.True(t, errors.Is(err, ErrIncompleteScratchpad))
		assert.Contains(t, err.Error(), "amount")
	})

	t.Run("MissingInitiator", func(t *testing.T) {
		s := filledScratchpad()
		s.FullName = ""
		_, err := s.Finalize(now)
		assert.ErrorIs(t, err, ErrIncompleteScratchpad)
	})

	t.Run("ResetApplicationKeepsInitiator", func(t *testing.T) {
		s := filledScratchpad()
		s.ResetApplication()
		assert.Nil(t, s.Amount)
		assert.Empty(t, s.CardNumber)
		assert.Equal(t, "Иванов Иван", s.FullName)
	})
}

func TestUser_Handle(t *testing.T) {
	assert.Equal(t, "@ivanov", (&User{TelegramID: 1, Username: "ivanov"}).Handle())
	assert.Equal(t, "@ivanov", (&User{TelegramID: 1, Username: "@ivanov"}).Handle())
	assert.Equal(t, "42", (&User{TelegramID: 42}).Handle())
}

func TestStatus(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())

	assert.Equal(t, StatusApproved, ParseStatus(" Одобрено "))
	assert.Equal(t, StatusPending, ParseStatus("что-то"))
	assert.Equal(t, Status(""), ParseStatus(""))
}

func TestApplication_Decision(t *testing.T) {
	tests := []struct {
		name             string
		status, approval Status
		decided          bool
		incomplete       bool
	}{
		{"Pending", StatusPending, StatusPending, false, false},
		{"Approved", StatusApproved, StatusApproved, true, false},
		{"StatusOnly", StatusApproved, StatusPending, true, true},
		{"RejectedInApprovalColumn", StatusPending, StatusRejected, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &Application{Status: tt.status, ApprovalStatus: tt.approval}
			assert.Equal(t, tt.decided, app.IsDecided())
			assert.Equal(t, tt.incomplete, app.ApprovalIncomplete())
		})
	}
}

func TestParseEnums(t *testing.T) {
	ct, ok := ParseCardType("скидка")
	assert.True(t, ok)
	assert.Equal(t, CardTypeDiscount, ct)

	_, ok = ParseCardType("VIP")
	assert.False(t, ok)

	f, ok := ParseFrequency("Замена номера")
	assert.True(t, ok)
	assert.Equal(t, FrequencyReplacement, f)
}

func TestApplication_AmountLabel(t *testing.T) {
	assert.Equal(t, "15%", (&Application{CardType: CardTypeDiscount, Amount: 15}).AmountLabel())
	assert.Equal(t, "5000 ₽", (&Application{CardType: CardTypeBarter, Amount: 5000}).AmountLabel())
}

func TestStatistics_Add(t *testing.T) {
	s := NewStatistics()
	s.Add(&Application{Status: StatusApproved, CardType: CardTypeBarter, Category: "ART"})
	s.Add(&Application{CardType: CardTypeDiscount, Category: "ART"})

	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.ByStatus[string(StatusApproved)])
	assert.Equal(t, 1, s.ByStatus[string(StatusPending)])
	assert.Equal(t, 2, s.ByCategory["ART"])
}
