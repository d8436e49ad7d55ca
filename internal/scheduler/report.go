package scheduler

import (
	"context"
	"time"

	"loyaltybot/internal/models"
)

// Report counts applications submitted in [from, to) plus the overall pending count.
// The sheet is read first; if it is unreachable the local database answers and the report says so.
func (s *Scheduler) Report(ctx context.Context, from, to time.Time, withTotals bool) *models.PeriodReport {
	if s.remote != nil {
		apps, err := s.remote.ListApplications(ctx)
		if err == nil {
			return remoteReport(apps, from, to, withTotals)
		}
		s.logger.Warn().Err(err).Msg("sheet unavailable, building report from local store")
	}
	return s.localReport(ctx, from, to, withTotals)
}

func verdict(app *models.Application) models.Status {
	switch {
	case app.Status == models.StatusApproved || app.ApprovalStatus == models.StatusApproved:
		return models.StatusApproved
	case app.Status == models.StatusRejected || app.ApprovalStatus == models.StatusRejected:
		return models.StatusRejected
	default:
		return models.StatusPending
	}
}

func remoteReport(apps []*models.Application, from, to time.Time, withTotals bool) *models.PeriodReport {
	r := &models.PeriodReport{From: from, To: to, Source: models.ReportSourceRemote}
	var totals *models.Statistics
	if withTotals {
		totals = models.NewStatistics()
	}

	for _, app := range apps {
		if totals != nil {
			totals.Add(app)
		}
		if verdict(app) == models.StatusPending {
			r.Pending++
		}
		// пустая или кривая дата не попадает в окно
		if app.SubmittedAt.IsZero() || app.SubmittedAt.Before(from) || !app.SubmittedAt.Before(to) {
			continue
		}
		countWindow(r, app)
	}
	r.Totals = totals
	return r
}

func countWindow(r *models.PeriodReport, app *models.Application) {
	r.New++
	switch verdict(app) {
	case models.StatusApproved:
		r.Approved++
	case models.StatusRejected:
		r.Rejected++
	}
}

func (s *Scheduler) localReport(ctx context.Context, from, to time.Time, withTotals bool) *models.PeriodReport {
	r := &models.PeriodReport{From: from, To: to, Source: models.ReportSourceLocal}

	apps, err := s.local.ListApplications(ctx, from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("local report window query failed")
	}
	for _, app := range apps {
		countWindow(r, app)
	}

	stats, err := s.local.GetStatistics(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("local statistics query failed")
		return r
	}
	r.Pending = stats.ByStatus[string(models.StatusPending)]
	if withTotals {
		r.Totals = stats
	}
	return r
}
