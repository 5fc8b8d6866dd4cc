package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"itemwatch/internal/analytics"
	"itemwatch/internal/models"
	"itemwatch/internal/repository"
)

// StatsService refreshes the per-item aggregate rows after each ingestion
// cycle. A failure on one item never blocks the rest.
type StatsService struct {
	Repo      repository.Repository
	Analytics *analytics.Engine
	Logger    *zap.Logger

	now func() time.Time
}

func NewStatsService(repo repository.Repository, engine *analytics.Engine, logger *zap.Logger) *StatsService {
	return &StatsService{
		Repo:      repo,
		Analytics: engine,
		Logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RefreshAll recomputes statistics for every catalog item. Returns the
// number of rows written.
func (s *StatsService) RefreshAll(ctx context.Context) (int, error) {
	if s == nil || s.Repo == nil {
		return 0, nil
	}
	items, err := s.Repo.ListItems(ctx)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if err := s.refreshItem(ctx, item); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("statistics refresh failed for item",
					zap.String("item", item.Name),
					zap.Error(err),
				)
			}
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (s *StatsService) refreshItem(ctx context.Context, item models.Item) error {
	nowUTC := s.now()
	stats := &models.ItemStatistics{
		ItemID:      item.ID,
		LastUpdated: nowUTC,
	}

	latest, err := s.Repo.LatestPrice(ctx, item.ID)
	switch {
	case err == nil:
		price := latest.Price
		stats.CurrentPrice = &price
	case errors.Is(err, repository.ErrNotFound):
		// No history yet: write an empty row so the item still shows up.
	default:
		return err
	}

	points, err := s.Repo.PriceRange(ctx, item.ID, nowUTC.AddDate(0, 0, -30), nowUTC)
	if err != nil {
		return err
	}
	if len(points) > 0 {
		min, max := points[0].Price, points[0].Price
		sum := decimal.Zero
		for _, p := range points {
			if p.Price.LessThan(min) {
				min = p.Price
			}
			if p.Price.GreaterThan(max) {
				max = p.Price
			}
			sum = sum.Add(p.Price)
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(points)))).Round(4)
		stats.MinPrice30d = &min
		stats.MaxPrice30d = &max
		stats.AvgPrice30d = &avg
	}

	if s.Analytics != nil {
		windows := []struct {
			d    time.Duration
			dest **float64
		}{
			{24 * time.Hour, &stats.PriceChange24h},
			{7 * 24 * time.Hour, &stats.PriceChange7d},
			{30 * 24 * time.Hour, &stats.PriceChange30d},
		}
		for _, w := range windows {
			change, err := s.Analytics.PriceChange(ctx, item.ID, w.d)
			if err != nil {
				return err
			}
			*w.dest = change
		}
	}

	return s.Repo.UpsertItemStatistics(ctx, stats)
}
