package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"loyaltybot/internal/approval"
	"loyaltybot/internal/config"
	"loyaltybot/internal/google"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"
	"loyaltybot/internal/notifier/notifiertest"
	"loyaltybot/internal/repository"
	"loyaltybot/internal/service"
	"loyaltybot/internal/validate"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bossID int64 = 7

type chanSource struct{ ch chan models.Inbound }

func (s chanSource) Updates(context.Context) <-chan models.Inbound { return s.ch }

type fakeUsers struct {
	mu      sync.Mutex
	touched []int64
}

func (u *fakeUsers) IsReviewer(chatID int64) bool { return chatID == bossID }

func (u *fakeUsers) Touch(_ context.Context, chatID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.touched = append(u.touched, chatID)
}

type fakeDialog struct {
	mu   sync.Mutex
	seen map[int64][]string
	fn   func(in models.Inbound) error
}

func (d *fakeDialog) Handle(_ context.Context, in models.Inbound) error {
	d.mu.Lock()
	if d.seen == nil {
		d.seen = make(map[int64][]string)
	}
	d.seen[in.ChatID] = append(d.seen[in.ChatID], in.Text+in.Command)
	fn := d.fn
	d.mu.Unlock()
	if fn != nil {
		return fn(in)
	}
	return nil
}

func (d *fakeDialog) texts(chatID int64) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.seen[chatID]...)
}

type fakeApproval struct {
	calls []string
}

func (a *fakeApproval) HandleCallback(_ context.Context, in models.Inbound) error {
	a.calls = append(a.calls, in.Callback.Data)
	return nil
}

type fakeReports struct{ withTotals bool }

func (r *fakeReports) Report(_ context.Context, from, to time.Time, withTotals bool) *models.PeriodReport {
	r.withTotals = withTotals
	return &models.PeriodReport{From: from, To: to, New: 3, Approved: 1, Source: models.ReportSourceRemote}
}

type fakeExporter struct {
	dir    string
	source string
	rows   int
}

func (e *fakeExporter) Applications(apps []*models.Application, source string) (string, error) {
	e.source = source
	e.rows = len(apps)
	path := filepath.Join(e.dir, "export.xlsx")
	return path, os.WriteFile(path, []byte("xlsx"), 0o600)
}

type fakeRemote struct{ err error }

func (r fakeRemote) ListApplications(context.Context) ([]*models.Application, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []*models.Application{{CardNumber: "89991234567"}}, nil
}

type fakeLocal struct{}

func (fakeLocal) ListApplications(context.Context, time.Time, time.Time) ([]*models.Application, error) {
	return []*models.Application{{CardNumber: "1"}, {CardNumber: "2"}}, nil
}

type fixture struct {
	bot      *Bot
	msgr     *notifiertest.Recorder
	users    *fakeUsers
	dialog   *fakeDialog
	approval *fakeApproval
	reports  *fakeReports
	exporter *fakeExporter
	source   chanSource
}

func setup(t *testing.T, remoteErr error) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	f := &fixture{
		msgr:     notifiertest.New(),
		users:    &fakeUsers{},
		dialog:   &fakeDialog{},
		approval: &fakeApproval{},
		reports:  &fakeReports{},
		exporter: &fakeExporter{dir: t.TempDir()},
		source:   chanSource{ch: make(chan models.Inbound, 64)},
	}
	state := service.NewStateService(repository.NewMemoryStateRepository(time.Hour), &logger)
	f.bot = NewBot(Deps{
		Source:    f.source,
		Messenger: f.msgr,
		State:     state,
		Users:     f.users,
		Dialog:    f.dialog,
		Approval:  f.approval,
		Reports:   f.reports,
		Exporter:  f.exporter,
		Remote:    fakeRemote{err: remoteErr},
		Local:     fakeLocal{},
	}, config.BotConfig{RateLimitMessages: 100, RateLimitWindow: 60}, &logger)
	return f
}

// run feeds updates and returns once every chat queue has drained.
func (f *fixture) run(t *testing.T, updates ...models.Inbound) {
	t.Helper()
	for _, in := range updates {
		f.source.ch <- in
	}
	close(f.source.ch)

	done := make(chan struct{})
	go func() {
		f.bot.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
}

func msg(chatID int64, text string) models.Inbound {
	return models.Inbound{ChatID: chatID, UserID: chatID, Text: text}
}

func TestDispatch_KeepsPerChatOrder(t *testing.T) {
	f := setup(t, nil)
	f.dialog.fn = func(models.Inbound) error {
		time.Sleep(time.Millisecond)
		return nil
	}

	var updates []models.Inbound
	for i := 0; i < 10; i++ {
		updates = append(updates, msg(1, fmt.Sprint(i)), msg(2, fmt.Sprint(i)))
	}
	f.run(t, updates...)

	want := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	assert.Equal(t, want, f.dialog.texts(1))
	assert.Equal(t, want, f.dialog.texts(2))
	assert.Equal(t, 0, f.bot.dispatcher.active())
}

func TestDispatch_ChatsRunInParallel(t *testing.T) {
	f := setup(t, nil)
	release := make(chan struct{})
	var blocked bool
	f.dialog.fn = func(in models.Inbound) error {
		if in.ChatID == 1 {
			select {
			case <-release:
			case <-time.After(2 * time.Second):
				blocked = true
			}
			return nil
		}
		close(release)
		return nil
	}

	f.run(t, msg(1, "wait"), msg(2, "go"))
	assert.False(t, blocked, "chat 1 must not block chat 2")
}

func TestProcessUpdate_RecoversFromPanic(t *testing.T) {
	f := setup(t, nil)
	f.dialog.fn = func(in models.Inbound) error {
		if in.Text == "boom" {
			panic("boom")
		}
		return nil
	}

	f.run(t, msg(42, "boom"), msg(42, "after"))

	assert.Equal(t, []string{"boom", "after"}, f.dialog.texts(42))
	assert.True(t, f.msgr.Contains(42, "Произошла ошибка"))
}

func TestProcessUpdate_RateLimit(t *testing.T) {
	f := setup(t, nil)
	f.bot.config.RateLimitMessages = 2

	f.run(t, msg(42, "a"), msg(42, "b"), msg(42, "c"), msg(bossID, "x"), msg(bossID, "y"), msg(bossID, "z"))

	assert.Equal(t, []string{"a", "b"}, f.dialog.texts(42))
	assert.True(t, f.msgr.Contains(42, "слишком часто"))
	assert.Len(t, f.dialog.texts(bossID), 3, "reviewer is not limited")
}

func TestProcessUpdate_TracksActivity(t *testing.T) {
	f := setup(t, nil)
	f.run(t, msg(42, "a"), msg(bossID, "b"))
	assert.Equal(t, []int64{42}, f.users.touched)
}

func TestRoute_Callbacks(t *testing.T) {
	f := setup(t, nil)
	f.run(t,
		models.Inbound{ChatID: bossID, Callback: &models.Callback{ID: "1", Data: "approve:5"}},
		models.Inbound{ChatID: bossID, Callback: &models.Callback{ID: "2", Data: "reject:6"}},
		models.Inbound{ChatID: bossID, Callback: &models.Callback{ID: "3", Data: "page:2"}},
	)

	assert.Equal(t, []string{"approve:5", "reject:6"}, f.approval.calls)
	assert.Contains(t, f.msgr.Answered, "3")
	assert.Empty(t, f.dialog.texts(bossID))
}

func TestRoute_ReviewerStats(t *testing.T) {
	f := setup(t, nil)
	f.run(t,
		models.Inbound{ChatID: bossID, Command: "stats"},
		msg(42, notifier.BtnStats),
	)

	require.Len(t, f.msgr.To(bossID), 1)
	assert.Contains(t, f.msgr.To(bossID)[0].Text, "Статистика за 7 дней")
	assert.True(t, f.reports.withTotals)
	// у обычного пользователя кнопка уходит в диалог
	assert.Equal(t, []string{notifier.BtnStats}, f.dialog.texts(42))
}

func TestRoute_ExportFromSheet(t *testing.T) {
	f := setup(t, nil)
	f.run(t, msg(bossID, notifier.BtnExport))

	require.Len(t, f.msgr.Documents, 1)
	doc := f.msgr.Documents[0]
	assert.Equal(t, bossID, doc.ChatID)
	assert.Equal(t, "📤 Выгрузка заявок: 1", doc.Caption)
	assert.Equal(t, models.ReportSourceRemote, f.exporter.source)

	_, err := os.Stat(doc.Path)
	assert.True(t, os.IsNotExist(err), "export file is removed after sending")
}

func TestRoute_ExportFallsBackToLocal(t *testing.T) {
	f := setup(t, &google.RemoteError{Op: "all_records", Err: errors.New("503")})
	f.run(t, models.Inbound{ChatID: bossID, Command: "export"})

	require.Len(t, f.msgr.Documents, 1)
	assert.Contains(t, f.msgr.Documents[0].Caption, "из локальной базы")
	assert.Equal(t, models.ReportSourceLocal, f.exporter.source)
	assert.Equal(t, 2, f.exporter.rows)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&validate.Error{Field: "email", Message: "bad"}, "validation"},
		{fmt.Errorf("wrap: %w", approval.ErrForbidden), "forbidden"},
		{approval.ErrCallbackFormat, "callback_format"},
		{fmt.Errorf("x: %w", approval.ErrNotify), "notification"},
		{&google.RemoteError{Op: "append", Err: errors.New("boom")}, "remote_store"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorKind(tt.err), tt.err.Error())
	}

	assert.Contains(t, userMessage(&google.RemoteError{Op: "get", Err: errors.New("x")}), "Таблица")
	assert.Contains(t, userMessage(nil), "Произошла ошибка")
}
