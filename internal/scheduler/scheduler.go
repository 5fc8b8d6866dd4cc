package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"itemwatch/internal/alert"
	"itemwatch/internal/analytics"
	"itemwatch/internal/config"
	cronrunner "itemwatch/internal/cron"
	"itemwatch/internal/notify"
	"itemwatch/internal/repository"
	"itemwatch/internal/service"
	"itemwatch/internal/source"
)

// Scheduler wires the periodic pipeline: ingestion cycles, statistics
// refresh, alert scans, the daily summary, and retention cleanup.
type Scheduler struct {
	Runner    *cronrunner.Runner
	Repo      repository.Repository
	Connector *source.Connector
	Stats     *service.StatsService
	Alerts    *alert.Evaluator
	Analytics *analytics.Engine
	Queue     *notify.Queue
	Logger    *zap.Logger
	Config    config.SchedulerConfig
}

// Register installs all jobs on the runner. The runner must not have been
// started yet.
func (s *Scheduler) Register() error {
	specs := []struct {
		name string
		spec string
		job  func(context.Context)
	}{
		{"ingest", everyMinutes(s.Config.IngestPeriodMin), s.runIngestCycle},
		{"alerts", everyMinutes(s.Config.AlertPeriodMin), s.runAlertScan},
		{"daily_summary", dailyAt(s.Config.DailySummaryHour), s.runDailySummary},
		{"retention", dailyAt(hourAfter(s.Config.DailySummaryHour)), s.runRetention},
	}
	for _, entry := range specs {
		if _, err := s.Runner.Add(entry.spec, entry.job); err != nil {
			return fmt.Errorf("register %s job: %w", entry.name, err)
		}
	}
	return nil
}

func (s *Scheduler) Start() { s.Runner.Start() }
func (s *Scheduler) Stop()  { s.Runner.Stop() }

// runIngestCycle fetches prices for the whole catalog, then refreshes
// statistics and evaluates alerts against the fresh points.
func (s *Scheduler) runIngestCycle(ctx context.Context) {
	items, err := s.Repo.ListItems(ctx)
	if err != nil {
		s.Logger.Error("ingest cycle aborted, catalog unavailable", zap.Error(err))
		return
	}
	if len(items) == 0 {
		s.Logger.Info("ingest cycle skipped, catalog empty")
		return
	}

	result := s.Connector.RunCycle(ctx, items)
	s.Logger.Info("ingest cycle finished",
		zap.Int("total", result.Total),
		zap.Int("persisted", result.Persisted),
		zap.Int("fetch_errors", len(result.FetchErrors)),
		zap.Int("write_errors", len(result.WriteErrors)),
		zap.Duration("duration", result.Duration),
	)

	if ctx.Err() != nil {
		return
	}
	refreshed, err := s.Stats.RefreshAll(ctx)
	if err != nil {
		s.Logger.Warn("statistics refresh incomplete", zap.Int("refreshed", refreshed), zap.Error(err))
	}
	s.runAlertScan(ctx)
}

func (s *Scheduler) runAlertScan(ctx context.Context) {
	result, err := s.Alerts.Scan(ctx)
	if err != nil {
		s.Logger.Warn("alert scan failed", zap.Error(err))
		return
	}
	if result.Fired > 0 || result.Suppressed > 0 {
		s.Logger.Info("alert scan finished",
			zap.Int("evaluated", result.Evaluated),
			zap.Int("fired", result.Fired),
			zap.Int("suppressed", result.Suppressed),
		)
	}
}

func (s *Scheduler) runDailySummary(ctx context.Context) {
	overview, err := s.Analytics.MarketOverview(ctx)
	if err != nil {
		s.Logger.Warn("daily summary skipped", zap.Error(err))
		return
	}
	s.Queue.Publish(notify.Event{
		Type: notify.EventDailySummary,
		Summary: &notify.MarketSummary{
			TotalItems:   overview.TotalItems,
			AveragePrice: overview.AveragePrice,
			Gainers:      overview.Gainers,
			Losers:       overview.Losers,
			Sentiment:    overview.Sentiment,
			LastUpdate:   overview.LastUpdate,
		},
		OccurredAt: time.Now().UTC(),
	})
}

func (s *Scheduler) runRetention(ctx context.Context) {
	days := s.Config.RetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	deleted, err := s.Repo.DeletePricePointsBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Warn("retention cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.Logger.Info("retention cleanup finished",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}

func everyMinutes(minutes int) string {
	if minutes <= 0 {
		minutes = 5
	}
	return fmt.Sprintf("@every %dm", minutes)
}

// dailyAt returns a six-field spec for once a day at the given UTC hour.
func dailyAt(hour int) string {
	if hour < 0 || hour > 23 {
		hour = 0
	}
	return fmt.Sprintf("0 0 %d * * *", hour)
}

func hourAfter(hour int) int {
	return (hour + 1) % 24
}
