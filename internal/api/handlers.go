package api

import (
	"context"
	"net/http"
	"time"

	"loyaltybot/internal/models"
	"loyaltybot/internal/scheduler"

	"github.com/rs/zerolog"
)

// StatsSource is the local database view behind /api/v1/stats.
type StatsSource interface {
	GetStatistics(ctx context.Context) (*models.Statistics, error)
	CountSyncTasks(ctx context.Context) (map[string]int, error)
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
	CountApplicationsSince(ctx context.Context, since time.Time) (map[models.Status]int, error)
	LastActivityEvent(ctx context.Context, event string) (time.Time, bool, error)
}

// Check is one readiness check. A failing optional check only marks the service degraded.
type Check struct {
	Name     string
	Required bool
	Fn       func(ctx context.Context) error
}

const (
	checkTimeout   = 3 * time.Second
	recentWindow   = 24 * time.Hour
	maxFailedShown = 20
)

// failedTask is a dead sync task as shown to operators.
type failedTask struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	RetryCount    int       `json:"retry_count"`
	LastError     string    `json:"last_error"`
	CreatedAt     time.Time `json:"created_at"`
}

var jobNames = []string{scheduler.JobDailySummary, scheduler.JobWeeklyAnalytics, scheduler.JobInactiveReminder}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": statusOK})
}

const (
	statusOK          = "ok"
	statusDegraded    = "degraded"
	statusUnavailable = "unavailable"
)

// runChecks runs every check under its own timeout. Results hold "ok" or the error text per check.
func runChecks(ctx context.Context, checks []Check, logger *zerolog.Logger) (string, map[string]string) {
	status := statusOK
	results := make(map[string]string, len(checks))

	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Fn(checkCtx)
		cancel()

		if err == nil {
			results[c.Name] = statusOK
			continue
		}
		results[c.Name] = err.Error()
		logger.Warn().Err(err).Str("check", c.Name).Msg("readiness check failed")
		if c.Required {
			status = statusUnavailable
		} else if status == statusOK {
			status = statusDegraded
		}
	}
	return status, results
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status, results := runChecks(r.Context(), s.checks, s.logger)
	code := http.StatusOK
	if status == statusUnavailable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": results})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "statistics unavailable")
		return
	}

	ctx := r.Context()
	stats, err := s.stats.GetStatistics(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("stats: load statistics")
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}

	queue, err := s.stats.CountSyncTasks(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("stats: count sync tasks")
		writeError(w, http.StatusInternalServerError, "failed to count sync tasks")
		return
	}

	recent, err := s.stats.CountApplicationsSince(ctx, time.Now().Add(-recentWindow))
	if err != nil {
		s.logger.Error().Err(err).Msg("stats: recent applications")
		writeError(w, http.StatusInternalServerError, "failed to count recent applications")
		return
	}

	failed, err := s.stats.GetFailedSyncTasks(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("stats: failed sync tasks")
		writeError(w, http.StatusInternalServerError, "failed to load failed sync tasks")
		return
	}
	if len(failed) > maxFailedShown {
		failed = failed[:maxFailedShown]
	}
	dead := make([]failedTask, 0, len(failed))
	for _, t := range failed {
		ft := failedTask{ID: t.ID, ApplicationID: t.ApplicationID, RetryCount: t.RetryCount, CreatedAt: t.CreatedAt}
		if t.LastError != nil {
			ft.LastError = *t.LastError
		}
		dead = append(dead, ft)
	}

	jobs := make(map[string]*time.Time, len(jobNames))
	for _, name := range jobNames {
		ts, ok, err := s.stats.LastActivityEvent(ctx, models.EventJobPrefix+name)
		if err != nil {
			s.logger.Warn().Err(err).Str("job", name).Msg("stats: last job run")
		}
		if ok {
			ts := ts
			jobs[name] = &ts
		} else {
			jobs[name] = nil
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"applications": stats,
		"last_24h":     recent,
		"sync_queue":   queue,
		"failed_sync":  dead,
		"jobs":         jobs,
	})
}
