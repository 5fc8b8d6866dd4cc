package analytics

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"itemwatch/internal/cache"
	"itemwatch/internal/config"
	"itemwatch/internal/models"
	"itemwatch/internal/repository"
)

// Store is the slice of the repository the engine reads. Every computation
// is a pure function of what the store returns at call time; an in-progress
// ingestion cycle only shifts which points are visible.
type Store interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	CountItems(ctx context.Context) (int64, error)
	CountItemStatistics(ctx context.Context) (int64, error)
	LatestPrice(ctx context.Context, itemID string) (*models.PricePoint, error)
	LatestPrices(ctx context.Context, itemIDs []string) (map[string]models.PricePoint, error)
	PriceRange(ctx context.Context, itemID string, since, until time.Time) ([]models.PricePoint, error)
	PriceAt(ctx context.Context, itemID string, asOf time.Time) (*models.PricePoint, error)
	LatestTimestamp(ctx context.Context) (*time.Time, error)
}

type Engine struct {
	Store  Store
	Cache  *cache.Cache
	Logger *zap.Logger

	Config config.AnalyticsConfig
	TTL    config.CacheConfig
}

type RankedItem struct {
	ItemID       string     `json:"item_id"`
	Name         string     `json:"name"`
	CurrentPrice float64    `json:"current_price"`
	ChangePct    float64    `json:"change_pct"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}

type VolatileItem struct {
	ItemID     string  `json:"item_id"`
	Name       string  `json:"name"`
	Volatility float64 `json:"volatility"`
	AvgPrice   float64 `json:"avg_price"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	Samples    int     `json:"samples"`
}

type Overview struct {
	TotalItems     int64      `json:"total_items"`
	ItemsWithStats int64      `json:"items_with_statistics"`
	AveragePrice   float64    `json:"average_price"`
	Gainers        int        `json:"gainers"`
	Losers         int        `json:"losers"`
	LastUpdate     *time.Time `json:"last_update,omitempty"`
	Sentiment      string     `json:"sentiment"`
}

type Trend struct {
	Direction    string  `json:"direction"`
	ChangePct    float64 `json:"change_pct"`
	Samples      int     `json:"samples"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`
	CurrentPrice float64 `json:"current_price"`
}

type Correlation struct {
	Coefficient   float64 `json:"coefficient"`
	AlignedPoints int     `json:"aligned_points"`
	Defined       bool    `json:"defined"`
}

const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"

	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// PriceChange returns the percentage change over the window ending now, or
// nil when it is undefined: no latest price, no price at the window start,
// or a zero base.
func (e *Engine) PriceChange(ctx context.Context, itemID string, window time.Duration) (*float64, error) {
	latest, err := e.Store.LatestPrice(ctx, itemID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	base, err := e.Store.PriceAt(ctx, itemID, time.Now().UTC().Add(-window))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return changePct(base.Price.InexactFloat64(), latest.Price.InexactFloat64()), nil
}

// TopGainers ranks items by descending price change over the window. Items
// with an undefined change are excluded; ties break on item id ascending.
func (e *Engine) TopGainers(ctx context.Context, days, limit int) ([]RankedItem, error) {
	key := cache.Key("rankings", "gainers", days, limit)
	return cache.GetOrCompute(ctx, e.Cache, key, e.TTL.RankingTTL, func(ctx context.Context) ([]RankedItem, error) {
		return e.rank(ctx, days, limit, false)
	})
}

// TopLosers is the ascending counterpart of TopGainers.
func (e *Engine) TopLosers(ctx context.Context, days, limit int) ([]RankedItem, error) {
	key := cache.Key("rankings", "losers", days, limit)
	return cache.GetOrCompute(ctx, e.Cache, key, e.TTL.RankingTTL, func(ctx context.Context) ([]RankedItem, error) {
		return e.rank(ctx, days, limit, true)
	})
}

func (e *Engine) rank(ctx context.Context, days, limit int, ascending bool) ([]RankedItem, error) {
	items, err := e.Store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	window := time.Duration(days) * 24 * time.Hour
	asOf := time.Now().UTC().Add(-window)

	ranked := make([]RankedItem, 0, len(items))
	for _, item := range items {
		latest, err := e.Store.LatestPrice(ctx, item.ID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		base, err := e.Store.PriceAt(ctx, item.ID, asOf)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		change := changePct(base.Price.InexactFloat64(), latest.Price.InexactFloat64())
		if change == nil {
			continue
		}
		ts := latest.Timestamp
		ranked = append(ranked, RankedItem{
			ItemID:       item.ID,
			Name:         item.Name,
			CurrentPrice: latest.Price.InexactFloat64(),
			ChangePct:    *change,
			LastUpdated:  &ts,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].ChangePct != ranked[j].ChangePct {
			if ascending {
				return ranked[i].ChangePct < ranked[j].ChangePct
			}
			return ranked[i].ChangePct > ranked[j].ChangePct
		}
		return ranked[i].ItemID < ranked[j].ItemID
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// MostVolatile ranks items by (max-min)/avg over the window. Items with
// fewer than two samples are excluded.
func (e *Engine) MostVolatile(ctx context.Context, days, limit int) ([]VolatileItem, error) {
	key := cache.Key("rankings", "volatile", days, limit)
	return cache.GetOrCompute(ctx, e.Cache, key, e.TTL.RankingTTL, func(ctx context.Context) ([]VolatileItem, error) {
		items, err := e.Store.ListItems(ctx)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		since := now.Add(-time.Duration(days) * 24 * time.Hour)

		out := make([]VolatileItem, 0, len(items))
		for _, item := range items {
			points, err := e.Store.PriceRange(ctx, item.ID, since, now)
			if err != nil {
				return nil, err
			}
			vol, avg, min, max, ok := volatilityOf(points)
			if !ok {
				continue
			}
			out = append(out, VolatileItem{
				ItemID:     item.ID,
				Name:       item.Name,
				Volatility: vol,
				AvgPrice:   avg,
				MinPrice:   min,
				MaxPrice:   max,
				Samples:    len(points),
			})
		}

		sort.Slice(out, func(i, j int) bool {
			if out[i].Volatility != out[j].Volatility {
				return out[i].Volatility > out[j].Volatility
			}
			return out[i].ItemID < out[j].ItemID
		})
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
}

// MarketOverview aggregates catalog-wide figures and classifies sentiment
// from the gainer/loser balance over the configured window.
func (e *Engine) MarketOverview(ctx context.Context) (Overview, error) {
	key := cache.Key("overview")
	return cache.GetOrCompute(ctx, e.Cache, key, e.TTL.OverviewTTL, func(ctx context.Context) (Overview, error) {
		var ov Overview

		total, err := e.Store.CountItems(ctx)
		if err != nil {
			return ov, err
		}
		withStats, err := e.Store.CountItemStatistics(ctx)
		if err != nil {
			return ov, err
		}
		ov.TotalItems = total
		ov.ItemsWithStats = withStats

		items, err := e.Store.ListItems(ctx)
		if err != nil {
			return ov, err
		}
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		latest, err := e.Store.LatestPrices(ctx, ids)
		if err != nil {
			return ov, err
		}
		if len(latest) > 0 {
			sum := 0.0
			for _, p := range latest {
				sum += p.Price.InexactFloat64()
			}
			ov.AveragePrice = sum / float64(len(latest))
		}

		window := time.Duration(e.Config.SentimentWindowHours) * time.Hour
		for _, item := range items {
			change, err := e.PriceChange(ctx, item.ID, window)
			if err != nil {
				return ov, err
			}
			if change == nil {
				continue
			}
			if *change > 0 {
				ov.Gainers++
			} else if *change < 0 {
				ov.Losers++
			}
		}
		ov.Sentiment = classifySentiment(ov.Gainers, ov.Losers, e.Config.SentimentMargin)

		ts, err := e.Store.LatestTimestamp(ctx)
		if err != nil {
			return ov, err
		}
		ov.LastUpdate = ts
		return ov, nil
	})
}

// PriceTrend compares the earliest and latest point in the window. Changes
// below the configured epsilon count as flat.
func (e *Engine) PriceTrend(ctx context.Context, itemID string, days int) (Trend, error) {
	key := cache.Key("trend", itemID, days)
	return cache.GetOrCompute(ctx, e.Cache, key, e.TTL.HistoryTTL, func(ctx context.Context) (Trend, error) {
		now := time.Now().UTC()
		points, err := e.Store.PriceRange(ctx, itemID, now.Add(-time.Duration(days)*24*time.Hour), now)
		if err != nil {
			return Trend{}, err
		}
		return trendOf(points, e.Config.TrendEpsilonPct), nil
	})
}

// PriceCorrelation is the Pearson coefficient between two items over the
// window, with the second series aligned to the first one's timestamps by
// nearest-earlier sample within the configured gap tolerance. Fewer than two
// aligned points leaves it undefined.
func (e *Engine) PriceCorrelation(ctx context.Context, itemA, itemB string, days int) (Correlation, error) {
	// Correlation is symmetric; normalize the pair so both argument orders
	// share a cache slot and align on the same timestamp grid.
	first, second := itemA, itemB
	if second < first {
		first, second = second, first
	}
	key := cache.Key("correlation", first, second, days)
	return cache.GetOrCompute(ctx, e.Cache, key, e.TTL.HistoryTTL, func(ctx context.Context) (Correlation, error) {
		now := time.Now().UTC()
		since := now.Add(-time.Duration(days) * 24 * time.Hour)

		seriesA, err := e.Store.PriceRange(ctx, first, since, now)
		if err != nil {
			return Correlation{}, err
		}
		seriesB, err := e.Store.PriceRange(ctx, second, since, now)
		if err != nil {
			return Correlation{}, err
		}

		xs, ys := alignSeries(seriesA, seriesB, e.Config.CorrelationMaxGap)
		coef, ok := pearson(xs, ys)
		return Correlation{
			Coefficient:   coef,
			AlignedPoints: len(xs),
			Defined:       ok,
		}, nil
	})
}

// --- pure helpers -----------------------------------------------------------

func changePct(base, latest float64) *float64 {
	if base == 0 {
		return nil
	}
	v := (latest - base) / base * 100
	return &v
}

func volatilityOf(points []models.PricePoint) (vol, avg, min, max float64, ok bool) {
	if len(points) < 2 {
		return 0, 0, 0, 0, false
	}
	min = math.Inf(1)
	max = math.Inf(-1)
	sum := 0.0
	for _, p := range points {
		v := p.Price.InexactFloat64()
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	avg = sum / float64(len(points))
	if avg == 0 {
		return 0, 0, 0, 0, false
	}
	return (max - min) / avg, avg, min, max, true
}

func trendOf(points []models.PricePoint, epsilonPct float64) Trend {
	if len(points) < 2 {
		return Trend{Direction: TrendFlat, Samples: len(points)}
	}
	first := points[0].Price.InexactFloat64()
	last := points[len(points)-1].Price.InexactFloat64()

	min := math.Inf(1)
	max := math.Inf(-1)
	for _, p := range points {
		v := p.Price.InexactFloat64()
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	t := Trend{
		Samples:      len(points),
		MinPrice:     min,
		MaxPrice:     max,
		CurrentPrice: last,
	}
	change := changePct(first, last)
	if change == nil {
		t.Direction = TrendFlat
		return t
	}
	t.ChangePct = *change
	switch {
	case math.Abs(*change) < epsilonPct:
		t.Direction = TrendFlat
	case *change > 0:
		t.Direction = TrendUp
	default:
		t.Direction = TrendDown
	}
	return t
}

func classifySentiment(gainers, losers, margin int) string {
	if margin < 1 {
		margin = 1
	}
	switch {
	case gainers-losers >= margin:
		return SentimentBullish
	case losers-gainers >= margin:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// alignSeries pairs each point of a with the nearest b sample at or before
// its timestamp, within maxGap. Gaps in ingestion drop the pair rather than
// interpolating.
func alignSeries(a, b []models.PricePoint, maxGap time.Duration) (xs, ys []float64) {
	if maxGap <= 0 {
		maxGap = 12 * time.Hour
	}
	j := 0
	for _, pa := range a {
		for j < len(b) && !b[j].Timestamp.After(pa.Timestamp) {
			j++
		}
		if j == 0 {
			continue
		}
		pb := b[j-1]
		if pa.Timestamp.Sub(pb.Timestamp) > maxGap {
			continue
		}
		xs = append(xs, pa.Price.InexactFloat64())
		ys = append(ys, pb.Price.InexactFloat64())
	}
	return xs, ys
}

func pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0, false
	}
	var sumX, sumY, sumXX, sumYY, sumXY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
		sumXX += xs[i] * xs[i]
		sumYY += ys[i] * ys[i]
		sumXY += xs[i] * ys[i]
	}
	fn := float64(n)
	num := fn*sumXY - sumX*sumY
	den := math.Sqrt((fn*sumXX - sumX*sumX) * (fn*sumYY - sumY*sumY))
	if den == 0 {
		return 0, false
	}
	return num / den, true
}
