package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"itemwatch/internal/cache"
	"itemwatch/internal/config"
	"itemwatch/internal/models"
	"itemwatch/internal/repository"
)

// MarketQueryService is the read side handed to outer transports. It only
// composes repository reads and cached history; all heavy computation lives
// in the analytics engine.
type MarketQueryService struct {
	Repo  repository.Repository
	Cache *cache.Cache
	TTL   config.CacheConfig
}

type ItemListing struct {
	Item           models.Item
	CurrentPrice   *decimal.Decimal
	PriceChange24h *float64
	PriceChange7d  *float64
	PriceChange30d *float64
}

type ItemDetail struct {
	Item       models.Item
	Statistics *models.ItemStatistics
	LastPrice  *models.PricePoint
}

type HistoryPoint struct {
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
}

// ListItems returns the catalog joined with the latest aggregate row per
// item. Items without statistics are still listed.
func (s *MarketQueryService) ListItems(ctx context.Context) ([]ItemListing, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	items, err := s.Repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	statsRows, err := s.Repo.ListItemStatistics(ctx)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string]models.ItemStatistics, len(statsRows))
	for _, row := range statsRows {
		byItem[row.ItemID] = row
	}

	listings := make([]ItemListing, 0, len(items))
	for _, item := range items {
		listing := ItemListing{Item: item}
		if row, ok := byItem[item.ID]; ok {
			listing.CurrentPrice = row.CurrentPrice
			listing.PriceChange24h = row.PriceChange24h
			listing.PriceChange7d = row.PriceChange7d
			listing.PriceChange30d = row.PriceChange30d
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (s *MarketQueryService) ItemDetail(ctx context.Context, itemID string) (*ItemDetail, error) {
	if s == nil || s.Repo == nil {
		return nil, repository.ErrNotFound
	}
	item, err := s.Repo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	detail := &ItemDetail{Item: *item}

	stats, err := s.Repo.GetItemStatistics(ctx, itemID)
	if err == nil {
		detail.Statistics = stats
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	last, err := s.Repo.LatestPrice(ctx, itemID)
	if err == nil {
		detail.LastPrice = last
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return detail, nil
}

// History returns the ascending price series for the trailing window. The
// result is cached; ingestion simply outlives the TTL rather than
// invalidating.
func (s *MarketQueryService) History(ctx context.Context, itemID string, days int) ([]HistoryPoint, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if days <= 0 {
		days = 7
	}
	key := cache.Key("history", itemID, days)
	return cache.GetOrCompute(ctx, s.Cache, key, s.TTL.HistoryTTL, func(ctx context.Context) ([]HistoryPoint, error) {
		until := time.Now().UTC()
		points, err := s.Repo.PriceRange(ctx, itemID, until.AddDate(0, 0, -days), until)
		if err != nil {
			return nil, err
		}
		out := make([]HistoryPoint, 0, len(points))
		for _, p := range points {
			out = append(out, HistoryPoint{
				Price:     p.Price,
				Currency:  p.Currency,
				Timestamp: p.Timestamp,
			})
		}
		return out, nil
	})
}

// AlertEvents lists fired alerts, newest first, with optional item/level/time
// filters.
func (s *MarketQueryService) AlertEvents(ctx context.Context, params repository.ListAlertEventsParams) ([]models.AlertEvent, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if params.Level != nil {
		switch *params.Level {
		case "low", "medium", "high":
		default:
			return nil, fmt.Errorf("unknown alert level %q", *params.Level)
		}
	}
	return s.Repo.ListAlertEvents(ctx, params)
}
