package validate

import (
	"strings"
	"testing"

	"loyaltybot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardNumber(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"89991234567", false},
		{" 89991234567 ", false},
		{"8 999 123-45-67", true},
		{"8999-123-4567", true},
		{"79991234567", true},
		{"8999123456", true},
		{"899912345678", true},
		{"8999123456a", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := CardNumber(tt.input)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		cardType models.CardType
		want     int
		wantErr  bool
	}{
		{"DiscountZero", "0", models.CardTypeDiscount, 0, true},
		{"DiscountOne", "1", models.CardTypeDiscount, 1, false},
		{"DiscountHundred", "100", models.CardTypeDiscount, 100, false},
		{"DiscountPercentSign", "15%", models.CardTypeDiscount, 15, false},
		{"DiscountTooBig", "101", models.CardTypeDiscount, 0, true},
		{"BarterPositive", "5 000", models.CardTypeBarter, 5000, false},
		{"BarterZero", "0", models.CardTypeBarter, 0, true},
		{"NotANumber", "пять", models.CardTypeBarter, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Amount(tt.input, tt.cardType)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmail(t *testing.T) {
	_, err := Email("a@b.c")
	assert.NoError(t, err)

	_, err = Email("a@b")
	assert.Error(t, err)

	_, err = Email("a@b@c.d")
	assert.Error(t, err)

	// any run without @ passes, spaces included
	_, err = Email("ivan petrov@acme.com")
	assert.NoError(t, err)

	got, err := Email("  ivan@acme.com ")
	require.NoError(t, err)
	assert.Equal(t, "ivan@acme.com", got)
}

func TestFullName(t *testing.T) {
	got, err := FullName("  Иванов   Иван ")
	require.NoError(t, err)
	assert.Equal(t, "Иванов Иван", got)

	_, err = FullName("Иванов")
	assert.Error(t, err)

	long := strings.Repeat("а", 80) + " " + strings.Repeat("б", 80)
	got, err = FullName(long)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(got)), models.MaxShortField)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello <world>", "Hello world"},
		{"Line\nBreak", "Line Break"},
		{"  Spaces  ", "Spaces"},
		{"<script>alert(1)</script>Иван", "alert(1)Иван"},
		{"javascript:void", "void"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Sanitize(tt.input, 100))
	}

	assert.Equal(t, "абв", Sanitize("абвгд", 3))
}

func TestOption(t *testing.T) {
	allowed := []string{"Москва", "Санкт-Петербург"}

	got, err := Option("issue_location", "москва", allowed)
	require.NoError(t, err)
	assert.Equal(t, "Москва", got)

	_, err = Option("issue_location", "Казань", allowed)
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "issue_location", ve.Field)

	got, err = Option("issue_location", "Казань", nil)
	require.NoError(t, err)
	assert.Equal(t, "Казань", got)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"89991234567", "79991234567"},
		{"79991234567", "79991234567"},
		{"+7 (999) 123-45-67", "79991234567"},
		{"9991234567", "79991234567"},
		{"123", ""},
		{"abcdefghijk", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizePhone(tt.input))
	}

	assert.Equal(t, "+79991234567", FormatPhone("8 999 123 45 67"))
}
