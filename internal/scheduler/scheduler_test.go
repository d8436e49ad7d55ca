package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"loyaltybot/internal/config"
	"loyaltybot/internal/database"
	"loyaltybot/internal/events"
	"loyaltybot/internal/google"
	"loyaltybot/internal/google/sheetstest"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier/notifiertest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bossID     int64 = 7
	sheetTitle       = "Заявки"
)

var headers = []string{
	google.ColTimestamp, google.ColTelegramID, google.ColUsername, google.ColFullName, google.ColEmail,
	google.ColJobTitle, google.ColPhone, google.ColOwnerLastName, google.ColOwnerFirstName, google.ColReason,
	google.ColCardType, google.ColCardNumber, google.ColCategory, google.ColAmount, google.ColFrequency,
	google.ColIssueLocation, google.ColStatus, google.ColApprovalStatus, google.ColRejectionReason,
	google.ColActivationDate, google.ColActivated,
}

type fixture struct {
	fake  *sheetstest.Server
	sheet *google.SheetsService
	db    *database.DB
	msgr  *notifiertest.Recorder
	sched *Scheduler
	clock time.Time
}

func msk(day, hour, minute int) time.Time {
	// 2025-03-03 понедельник
	return time.Date(2025, 3, day, hour, minute, 0, 0, models.Moscow)
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()

	fake := sheetstest.NewServer(t, "sheet_key")
	// битая дата в первой строке
	garbage := make([]string, len(headers))
	garbage[0] = "вчера"
	garbage[11] = "80000000001"
	garbage[16] = string(models.StatusPending)
	fake.AddSheet(0, sheetTitle, headers, garbage)
	sheet := google.NewWithService(fake.Service(t), "sheet_key", 0, "Config", &logger)

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus()
	events.RegisterActivityRecorder(bus, db, &logger)

	msgr := notifiertest.New()
	cfg := config.SchedulerConfig{
		Enabled:          true,
		DailySummaryHour: 9,
		WeeklyHour:       10,
		WeeklyWeekday:    int(time.Monday),
		ReminderHour:     12,
		InactiveDays:     30,
		TickSeconds:      60,
	}
	f := &fixture{fake: fake, sheet: sheet, db: db, msgr: msgr}
	f.sched = New(cfg, db, sheet, msgr, bus, bossID, &logger)
	f.sched.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) add(t *testing.T, submitted time.Time, chatID int64, status models.Status) {
	t.Helper()
	app := &models.Application{
		SubmittedAt:    submitted,
		Submitter:      models.User{TelegramID: chatID, FullName: "Иванов Иван"},
		OwnerLastName:  "Петров",
		OwnerFirstName: "Пётр",
		CardType:       models.CardTypeBarter,
		CardNumber:     "89991234567",
		Category:       "ART",
		Amount:         1000,
		Frequency:      models.FrequencyOneTime,
		Status:         status,
		ApprovalStatus: status,
	}
	ctx := context.Background()
	id, err := f.db.InsertApplication(ctx, app)
	require.NoError(t, err)
	row, err := f.sheet.AppendRow(ctx, app)
	require.NoError(t, err)
	require.NoError(t, f.db.MarkApplicationSynced(ctx, id, row))
}

func (f *fixture) tick(at time.Time) {
	f.clock = at
	f.sched.Tick(context.Background())
}

func (f *fixture) bossMessages() []string {
	var out []string
	for _, r := range f.msgr.To(bossID) {
		out = append(out, r.Text)
	}
	return out
}

func TestTick_RunsEachJobOncePerPeriod(t *testing.T) {
	f := setup(t)

	f.tick(msk(3, 8, 0))
	assert.Empty(t, f.bossMessages(), "before 09:00 nothing is due")

	f.tick(msk(3, 9, 30))
	require.Len(t, f.bossMessages(), 1)
	assert.Contains(t, f.bossMessages()[0], "Сводка за сутки")

	f.tick(msk(3, 9, 45))
	assert.Len(t, f.bossMessages(), 1, "daily summary already sent today")

	f.tick(msk(3, 10, 5))
	require.Len(t, f.bossMessages(), 2)
	assert.Contains(t, f.bossMessages()[1], "Аналитика за неделю")

	f.tick(msk(4, 9, 1))
	require.Len(t, f.bossMessages(), 3)
	assert.Contains(t, f.bossMessages()[2], "Сводка за сутки")

	f.tick(msk(4, 11, 0))
	assert.Len(t, f.bossMessages(), 3, "weekly report only on its weekday")

	last, ok, err := f.db.LastActivityEvent(context.Background(), models.EventJobPrefix+JobDailySummary)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(msk(4, 9, 1)))
}

func TestTick_FailedJobRetriesNextTick(t *testing.T) {
	f := setup(t)
	f.msgr.Block(bossID)

	f.tick(msk(3, 9, 0))
	_, ok, err := f.db.LastActivityEvent(context.Background(), models.EventJobPrefix+JobDailySummary)
	require.NoError(t, err)
	assert.False(t, ok, "failed run is not recorded")

	delete(f.msgr.Blocked, bossID)
	f.tick(msk(3, 9, 1))
	require.Len(t, f.bossMessages(), 1)
}

func TestReport_FromSheet(t *testing.T) {
	f := setup(t)
	now := msk(5, 9, 0)
	f.add(t, now.Add(-2*time.Hour), 42, models.StatusPending)
	f.add(t, now.Add(-3*time.Hour), 42, models.StatusApproved)
	f.add(t, now.Add(-5*time.Hour), 43, models.StatusRejected)
	f.add(t, now.Add(-48*time.Hour), 43, models.StatusPending)

	r := f.sched.Report(context.Background(), now.Add(-24*time.Hour), now, true)

	assert.Equal(t, models.ReportSourceRemote, r.Source)
	assert.Equal(t, 3, r.New)
	assert.Equal(t, 1, r.Approved)
	assert.Equal(t, 1, r.Rejected)
	// две из окна и вне окна плюс строка с битой датой
	assert.Equal(t, 3, r.Pending)
	require.NotNil(t, r.Totals)
	assert.Equal(t, 5, r.Totals.Total)
	assert.Equal(t, 4, r.Totals.ByCardType[string(models.CardTypeBarter)])
}

func TestReport_FallsBackToLocal(t *testing.T) {
	f := setup(t)
	now := msk(5, 9, 0)
	f.add(t, now.Add(-2*time.Hour), 42, models.StatusPending)
	f.add(t, now.Add(-3*time.Hour), 42, models.StatusApproved)
	f.add(t, now.Add(-72*time.Hour), 43, models.StatusPending)

	f.fake.FailNext(sheetstest.OpGet, -1)
	r := f.sched.Report(context.Background(), now.Add(-24*time.Hour), now, false)

	assert.Equal(t, models.ReportSourceLocal, r.Source)
	assert.Equal(t, 2, r.New)
	assert.Equal(t, 1, r.Approved)
	assert.Equal(t, 2, r.Pending)
	assert.Nil(t, r.Totals)

	f.tick(now)
	require.Len(t, f.bossMessages(), 1)
	assert.Contains(t, f.bossMessages()[0], "данные из локальной базы")
}

func TestInactiveReminder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := msk(5, 12, 30)

	idle := &models.User{TelegramID: 42, FullName: "Иванов Иван", LastActivity: now.AddDate(0, 0, -40)}
	idleNoVerdict := &models.User{TelegramID: 43, FullName: "Сидоров Сидор", LastActivity: now.AddDate(0, 0, -40)}
	active := &models.User{TelegramID: 44, FullName: "Котов Кот", LastActivity: now.AddDate(0, 0, -2)}
	for _, u := range []*models.User{idle, idleNoVerdict, active} {
		require.NoError(t, f.db.UpsertUser(ctx, u))
	}
	f.add(t, now.AddDate(0, 0, -45), 42, models.StatusApproved)
	f.add(t, now.AddDate(0, 0, -45), 43, models.StatusPending)
	f.add(t, now.AddDate(0, 0, -3), 44, models.StatusRejected)

	f.tick(now)

	require.Len(t, f.msgr.To(42), 1)
	assert.True(t, strings.Contains(f.msgr.To(42)[0].Text, "давно не виделись"))
	assert.Empty(t, f.msgr.To(43))
	assert.Empty(t, f.msgr.To(44))

	u, err := f.db.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.True(t, u.LastActivity.After(now.AddDate(0, 0, -30)), "activity bumped after reminder")

	n, err := f.db.CountActivity(ctx, models.EventReminded, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.tick(msk(6, 12, 30))
	assert.Len(t, f.msgr.To(42), 1, "no second nudge")
}
