package google

import (
	"context"
	"errors"
	"testing"
	"time"

	"loyaltybot/internal/google/sheetstest"
	"loyaltybot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTitle = "Заявки"

// Header variations mimic what sheet owners do by hand.
var testHeaders = []string{
	ColTimestamp, ColTelegramID, ColUsername, "ФИО\nинициатора", ColEmail, ColJobTitle, ColPhone,
	ColOwnerLastName, ColOwnerFirstName, ColReason, ColCardType, " Номер  карты ", ColCategory,
	ColAmount, ColFrequency, ColIssueLocation, ColStatus, ColApprovalStatus, ColRejectionReason,
	ColActivationDate, ColActivated, "Комментарий",
}

func setupFake(t *testing.T, rows ...[]string) (*sheetstest.Server, *SheetsService) {
	t.Helper()
	fake := sheetstest.NewServer(t, "sheet_key")
	fake.AddSheet(0, testTitle, append([][]string{testHeaders}, rows...)...)
	fake.AddSheet(77, "Config",
		[]string{"Категория", "Место выдачи"},
		[]string{"ART", "Москва"},
		[]string{"FOOD", ""},
		[]string{"", "Санкт-Петербург"},
	)
	logger := zerolog.Nop()
	return fake, NewWithService(fake.Service(t), "sheet_key", 0, "Config", &logger)
}

func sampleApplication() *models.Application {
	return &models.Application{
		SubmittedAt: time.Date(2025, 3, 6, 18, 0, 0, 0, models.Moscow),
		Submitter: models.User{
			TelegramID: 42,
			Username:   "ivanov",
			FullName:   "Иванов Иван",
			Email:      "ivan@acme.com",
			JobTitle:   "Менеджер",
			Phone:      "+79991234567",
		},
		OwnerLastName:  "Петров",
		OwnerFirstName: "Пётр",
		Reason:         "Партнёр",
		CardType:       models.CardTypeBarter,
		CardNumber:     "89991234567",
		Category:       "ART",
		Amount:         5000,
		Frequency:      models.FrequencyOneTime,
		IssueLocation:  "Москва",
		Status:         models.StatusPending,
		ApprovalStatus: models.StatusPending,
	}
}

func TestSheetsService_TestConnection(t *testing.T) {
	_, s := setupFake(t)
	require.NoError(t, s.TestConnection(context.Background()))
}

func TestSheetsService_UnknownGID(t *testing.T) {
	fake := sheetstest.NewServer(t, "sheet_key")
	fake.AddSheet(5, "Other", []string{"A"})
	logger := zerolog.Nop()
	s := NewWithService(fake.Service(t), "sheet_key", 0, "Config", &logger)

	err := s.TestConnection(context.Background())
	assert.ErrorIs(t, err, ErrSheetNotFound)
	assert.ErrorIs(t, err, ErrRemote)
}

func TestSheetsService_AppendThenGetRow(t *testing.T) {
	fake, s := setupFake(t)
	ctx := context.Background()

	app := sampleApplication()
	row, err := s.AppendRow(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, 2, row)

	rec, err := s.GetRow(ctx, row)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-06 18:00:00", rec.Get(ColTimestamp))
	assert.Equal(t, "42", rec.Get(ColTelegramID))
	assert.Equal(t, "@ivanov", rec.Get(ColUsername))
	assert.Equal(t, "Иванов Иван", rec.Get(ColFullName))
	assert.Equal(t, "89991234567", rec.Get(ColCardNumber))
	assert.Equal(t, "5000", rec.Get(ColAmount))
	assert.Equal(t, string(models.StatusPending), rec.Get(ColStatus))
	assert.Equal(t, models.ActivatedNo, rec.Get(ColActivated))
	assert.True(t, rec.Has("Комментарий"))
	assert.Empty(t, rec.Get("Комментарий"))

	back := rec.Application()
	assert.Equal(t, app.Submitter, back.Submitter)
	assert.Equal(t, app.CardNumber, back.CardNumber)
	assert.Equal(t, app.Amount, back.Amount)
	assert.Equal(t, app.CardType, back.CardType)
	assert.True(t, app.SubmittedAt.Equal(back.SubmittedAt))

	assert.Equal(t, "Иванов Иван", fake.Cell(testTitle, 2, "ФИО\nинициатора"))

	row, err = s.AppendRow(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, 3, row)
}

func TestSheetsService_AppendWarmsCaches(t *testing.T) {
	fake, s := setupFake(t)
	ctx := context.Background()

	_, err := s.AppendRow(ctx, sampleApplication())
	require.NoError(t, err)

	gets := fake.Calls(sheetstest.OpGet)
	ok, err := s.IsRegistered(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := s.GetInitiator(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "ivan@acme.com", u.Email)
	assert.Equal(t, gets, fake.Calls(sheetstest.OpGet), "cached lookups must not hit the API")
}

func TestSheetsService_AppendFailure(t *testing.T) {
	fake, s := setupFake(t)
	fake.FailNext(sheetstest.OpAppend, 1)

	_, err := s.AppendRow(context.Background(), sampleApplication())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemote)

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "append", re.Op)

	ok, err := s.IsRegistered(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSheetsService_IsRegistered(t *testing.T) {
	noName := make([]string, len(testHeaders))
	noName[1] = "7"

	named := make([]string, len(testHeaders))
	named[1] = "8"
	named[3] = "Сидоров Сидор"

	fake, s := setupFake(t, noName, named)
	ctx := context.Background()

	ok, err := s.IsRegistered(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IsRegistered(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("NegativeNotCached", func(t *testing.T) {
		before := fake.Calls(sheetstest.OpGet)
		_, err := s.IsRegistered(ctx, 7)
		require.NoError(t, err)
		assert.Greater(t, fake.Calls(sheetstest.OpGet), before)
	})

	t.Run("PositiveCached", func(t *testing.T) {
		before := fake.Calls(sheetstest.OpGet)
		ok, err := s.IsRegistered(ctx, 8)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, before, fake.Calls(sheetstest.OpGet))
	})
}

func TestSheetsService_GetInitiatorReverseScan(t *testing.T) {
	older := make([]string, len(testHeaders))
	older[1], older[3], older[4] = "42", "Иванов Иван", "old@acme.com"
	newer := make([]string, len(testHeaders))
	newer[1], newer[3], newer[4] = "42", "Иванов Иван", "new@acme.com"

	_, s := setupFake(t, older, newer)

	u, err := s.GetInitiator(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "new@acme.com", u.Email)

	u, err = s.GetInitiator(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSheetsService_FindCards(t *testing.T) {
	_, s := setupFake(t)
	ctx := context.Background()

	rec, err := s.FindCardByNumber(ctx, "89991234567")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = s.AppendRow(ctx, sampleApplication())
	require.NoError(t, err)
	_, err = s.AppendRow(ctx, sampleApplication())
	require.NoError(t, err)

	rec, err = s.FindCardByNumber(ctx, "89991234567")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Row)

	all, err := s.FindCardsByNumber(ctx, "89991234567")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSheetsService_UpdateCells(t *testing.T) {
	fake, s := setupFake(t)
	ctx := context.Background()

	row, err := s.AppendRow(ctx, sampleApplication())
	require.NoError(t, err)

	require.NoError(t, s.UpdateCells(ctx, row, map[string]string{
		ColStatus:          string(models.StatusRejected),
		ColApprovalStatus:  string(models.StatusRejected),
		ColRejectionReason: "Нет данных",
	}))
	assert.Equal(t, 1, fake.Calls(sheetstest.OpBatch))
	assert.Equal(t, string(models.StatusRejected), fake.Cell(testTitle, row, ColStatus))
	assert.Equal(t, "Нет данных", fake.Cell(testTitle, row, ColRejectionReason))

	require.NoError(t, s.UpdateCells(ctx, row, nil))
	assert.Equal(t, 1, fake.Calls(sheetstest.OpBatch))

	require.NoError(t, s.UpdateCell(ctx, row, ColActivated, models.ActivatedYes))
	assert.Equal(t, models.ActivatedYes, fake.Cell(testTitle, row, ColActivated))

	err = s.UpdateCell(ctx, row, "Несуществующая", "x")
	assert.ErrorIs(t, err, ErrColumnNotFound)

	err = s.UpdateCell(ctx, 1, ColStatus, "x")
	assert.ErrorIs(t, err, ErrRowNotFound)

	fake.FailNext(sheetstest.OpUpdate, 1)
	err = s.UpdateCell(ctx, row, ColStatus, "x")
	assert.ErrorIs(t, err, ErrRemote)

	err = s.UpdateCells(ctx, row, map[string]string{"Несуществующая": "x"})
	assert.ErrorIs(t, err, ErrColumnNotFound)

	err = s.UpdateCells(ctx, 1, map[string]string{ColStatus: "x"})
	assert.ErrorIs(t, err, ErrRowNotFound)

	fake.FailNext(sheetstest.OpBatch, 1)
	err = s.UpdateCells(ctx, row, map[string]string{ColStatus: "x"})
	assert.ErrorIs(t, err, ErrRemote)
}

func TestSheetsService_GetRowMissing(t *testing.T) {
	_, s := setupFake(t)
	_, err := s.GetRow(context.Background(), 50)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestSheetsService_GetConfigOptions(t *testing.T) {
	fake, s := setupFake(t)
	ctx := context.Background()

	cats, err := s.GetConfigOptions(ctx, ConfigColCategory)
	require.NoError(t, err)
	assert.Equal(t, []string{"ART", "FOOD"}, cats)

	locs, err := s.GetConfigOptions(ctx, " место  выдачи")
	require.NoError(t, err)
	assert.Equal(t, []string{"Москва", "Санкт-Петербург"}, locs)

	before := fake.Calls(sheetstest.OpGet)
	_, err = s.GetConfigOptions(ctx, ConfigColCategory)
	require.NoError(t, err)
	assert.Equal(t, before, fake.Calls(sheetstest.OpGet))

	_, err = s.GetConfigOptions(ctx, "Периодичность")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestSheetsService_AllRecordsSkipsBlank(t *testing.T) {
	blank := make([]string, len(testHeaders))
	row := make([]string, len(testHeaders))
	row[1] = "5"
	_, s := setupFake(t, blank, row)

	records, err := s.AllRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Row)
	assert.Equal(t, int64(5), records[0].ChatID())
}

func TestParseUpdatedRow(t *testing.T) {
	row, err := parseUpdatedRow("'Заявки'!A10:V10")
	require.NoError(t, err)
	assert.Equal(t, 10, row)

	row, err = parseUpdatedRow("Sheet1!B7")
	require.NoError(t, err)
	assert.Equal(t, 7, row)

	_, err = parseUpdatedRow("garbage")
	assert.Error(t, err)
}

func TestSheetsService_ApplicationViews(t *testing.T) {
	_, s := setupFake(t)
	ctx := context.Background()

	row, err := s.AppendRow(ctx, sampleApplication())
	require.NoError(t, err)

	app, err := s.GetApplication(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, row, app.SheetRow)
	assert.False(t, app.IsDecided())

	require.NoError(t, s.UpdateCells(ctx, row, map[string]string{ColApprovalStatus: string(models.StatusRejected)}))
	found, err := s.FindApplicationsByCard(ctx, "89991234567")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].IsDecided())

	all, err := s.ListApplications(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
