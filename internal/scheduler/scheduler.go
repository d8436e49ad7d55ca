// Package scheduler runs the periodic reviewer reports and user reminders from a single ticker.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"loyaltybot/internal/config"
	"loyaltybot/internal/domain"
	"loyaltybot/internal/events"
	"loyaltybot/internal/metrics"
	"loyaltybot/internal/models"
	"loyaltybot/internal/notifier"

	"github.com/rs/zerolog"
)

const (
	JobDailySummary     = "daily_summary"
	JobWeeklyAnalytics  = "weekly_analytics"
	JobInactiveReminder = "inactive_reminder"
)

// Store is the local database view the scheduler needs.
type Store interface {
	ListApplications(ctx context.Context, from, to time.Time) ([]*models.Application, error)
	GetStatistics(ctx context.Context) (*models.Statistics, error)
	GetUsersForReminder(ctx context.Context, cutoff time.Time) ([]*models.User, error)
	UpdateActivity(ctx context.Context, chatID int64) error
	LastActivityEvent(ctx context.Context, event string) (time.Time, bool, error)
	LogActivityAt(ctx context.Context, chatID int64, event string, ts time.Time) error
}

// Source lists every application in the authoritative sheet.
type Source interface {
	ListApplications(ctx context.Context) ([]*models.Application, error)
}

type period int

const (
	daily period = iota
	weekly
)

// job fires once per period, at or after hour (UTC+3), on weekday for weekly jobs.
type job struct {
	name    string
	period  period
	hour    int
	weekday time.Weekday
	run     func(ctx context.Context, now time.Time) error
}

type Scheduler struct {
	local     Store
	remote    Source
	messenger domain.Messenger
	events    domain.EventPublisher
	bossID    int64
	cfg       config.SchedulerConfig
	jobs      []job
	logger    *zerolog.Logger
	now       func() time.Time
}

func New(cfg config.SchedulerConfig, local Store, remote Source, messenger domain.Messenger,
	publisher domain.EventPublisher, bossID int64, logger *zerolog.Logger) *Scheduler {
	if cfg.TickSeconds <= 0 {
		cfg.TickSeconds = 60
	}
	if cfg.InactiveDays <= 0 {
		cfg.InactiveDays = models.InactiveThresholdDays
	}

	s := &Scheduler{
		local:     local,
		remote:    remote,
		messenger: messenger,
		events:    publisher,
		bossID:    bossID,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	s.jobs = []job{
		{name: JobDailySummary, period: daily, hour: cfg.DailySummaryHour, run: s.dailySummary},
		{name: JobWeeklyAnalytics, period: weekly, hour: cfg.WeeklyHour, weekday: time.Weekday(cfg.WeeklyWeekday), run: s.weeklyAnalytics},
		{name: JobInactiveReminder, period: daily, hour: cfg.ReminderHour, run: s.inactiveReminder},
	}
	return s
}

// Start ticks until ctx is done. The first tick happens immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.TickSeconds) * time.Second)
	defer ticker.Stop()

	s.logger.Info().Int("tick_seconds", s.cfg.TickSeconds).Msg("scheduler started")
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every job that is due. A job that fails is retried on the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		due, err := s.due(ctx, j, now)
		if err != nil {
			s.logger.Error().Err(err).Str("job", j.name).Msg("failed to read last run")
			continue
		}
		if !due {
			continue
		}

		log := s.logger.With().Str("job", j.name).Logger()
		if err := j.run(ctx, now); err != nil {
			metrics.IncJob(j.name, "error")
			log.Error().Err(err).Msg("job failed")
			continue
		}
		metrics.IncJob(j.name, "ok")
		if err := s.local.LogActivityAt(ctx, 0, models.EventJobPrefix+j.name, now); err != nil {
			log.Error().Err(err).Msg("failed to record job run")
		}
		log.Info().Msg("job finished")
	}
}

func (s *Scheduler) due(ctx context.Context, j job, now time.Time) (bool, error) {
	local := now.In(models.Moscow)
	if local.Hour() < j.hour {
		return false, nil
	}
	if j.period == weekly && local.Weekday() != j.weekday {
		return false, nil
	}

	last, ok, err := s.local.LastActivityEvent(ctx, models.EventJobPrefix+j.name)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	// on the scheduled weekday the current period starts at midnight for both kinds
	return last.Before(startOfDay(local)), nil
}

func startOfDay(t time.Time) time.Time {
	t = t.In(models.Moscow)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, models.Moscow)
}

func (s *Scheduler) dailySummary(ctx context.Context, now time.Time) error {
	report := s.Report(ctx, now.Add(-24*time.Hour), now, false)
	return s.sendBoss(ctx, notifier.PeriodReport("Сводка за сутки", report))
}

func (s *Scheduler) weeklyAnalytics(ctx context.Context, now time.Time) error {
	report := s.Report(ctx, now.AddDate(0, 0, -7), now, true)
	return s.sendBoss(ctx, notifier.PeriodReport("Аналитика за неделю", report))
}

func (s *Scheduler) sendBoss(ctx context.Context, text string) error {
	if s.bossID == 0 {
		return nil
	}
	if _, err := s.messenger.Send(ctx, s.bossID, models.Reply{Text: text}); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

// inactiveReminder nudges idle users once and bumps their activity.
// Individual delivery failures are logged, the job itself succeeds.
func (s *Scheduler) inactiveReminder(ctx context.Context, now time.Time) error {
	cutoff := now.AddDate(0, 0, -s.cfg.InactiveDays)
	users, err := s.local.GetUsersForReminder(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load users for reminder: %w", err)
	}

	sent := 0
	for _, u := range users {
		if u.TelegramID == s.bossID {
			continue
		}
		if _, err := s.messenger.Send(ctx, u.TelegramID, models.Reply{
			Text:     notifier.Reminder(u),
			Keyboard: notifier.MainMenu(false),
		}); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", u.TelegramID).Msg("reminder not delivered")
			continue
		}
		if err := s.local.UpdateActivity(ctx, u.TelegramID); err != nil {
			s.logger.Error().Err(err).Int64("chat_id", u.TelegramID).Msg("failed to bump activity")
		}
		if s.events != nil {
			_ = s.events.PublishJSON(events.EventUserReminded, events.ApplicationEventPayload{
				ChatID: u.TelegramID,
				At:     now,
			})
		}
		sent++
	}
	s.logger.Info().Int("candidates", len(users)).Int("sent", sent).Msg("inactive reminders sent")
	return nil
}
