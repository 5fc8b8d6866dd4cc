package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"itemwatch/internal/config"
	"itemwatch/internal/models"
	"itemwatch/internal/repository"
)

var decimalHundred = decimal.NewFromInt(100)

// ValidationError rejects malformed input at the boundary before it reaches
// the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Store is what the valuator needs: entries, the catalog, and point-in-time
// price reads.
type Store interface {
	GetItemByID(ctx context.Context, id string) (*models.Item, error)
	InsertPortfolioEntry(ctx context.Context, entry *models.PortfolioEntry) error
	GetPortfolioEntry(ctx context.Context, id, ownerID string) (*models.PortfolioEntry, error)
	ListPortfolioEntries(ctx context.Context, ownerID string) ([]models.PortfolioEntry, error)
	UpdatePortfolioEntry(ctx context.Context, entry *models.PortfolioEntry) error
	DeletePortfolioEntry(ctx context.Context, id, ownerID string) (bool, error)
	UpsertPortfolioStatistics(ctx context.Context, stats *models.PortfolioStatistics) error
	PriceAt(ctx context.Context, itemID string, asOf time.Time) (*models.PricePoint, error)
}

// Service manages portfolio entries and values them against the price
// history.
type Service struct {
	Store  Store
	Logger *zap.Logger
	Config config.PortfolioConfig

	now func() time.Time
}

func NewService(store Store, logger *zap.Logger, cfg config.PortfolioConfig) *Service {
	return &Service{
		Store:  store,
		Logger: logger,
		Config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type AddEntryParams struct {
	OwnerID       string
	ItemID        string
	Quantity      decimal.Decimal
	PurchasePrice decimal.Decimal
	PurchaseDate  time.Time
	Notes         *string
}

type UpdateEntryParams struct {
	Quantity *decimal.Decimal
	Notes    *string
}

// EntryValuation is one entry priced against the freshest usable point.
// Stale is set when no price is fresh enough; the figures then carry the
// most recent known price rather than being omitted.
type EntryValuation struct {
	Entry        models.PortfolioEntry
	CurrentPrice decimal.Decimal
	CurrentValue decimal.Decimal
	Investment   decimal.Decimal
	Profit       decimal.Decimal
	ProfitPct    *decimal.Decimal
	PricedAt     *time.Time
	Stale        bool
}

type Valuation struct {
	OwnerID         string
	Entries         []EntryValuation
	TotalInvestment decimal.Decimal
	CurrentValue    decimal.Decimal
	TotalProfit     decimal.Decimal
	ProfitPct       *decimal.Decimal
	TotalQuantity   decimal.Decimal
	Stale           bool
}

func (s *Service) AddEntry(ctx context.Context, params AddEntryParams) (*models.PortfolioEntry, error) {
	if params.OwnerID == "" {
		return nil, &ValidationError{Field: "owner_id", Reason: "must not be empty"}
	}
	if !params.Quantity.IsPositive() {
		return nil, &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if params.PurchasePrice.IsNegative() {
		return nil, &ValidationError{Field: "purchase_price", Reason: "must not be negative"}
	}
	if _, err := s.Store.GetItemByID(ctx, params.ItemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ValidationError{Field: "item_id", Reason: "unknown item"}
		}
		return nil, err
	}

	purchaseDate := params.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = s.now()
	}
	entry := &models.PortfolioEntry{
		ID:            uuid.NewString(),
		OwnerID:       params.OwnerID,
		ItemID:        params.ItemID,
		Quantity:      params.Quantity,
		PurchasePrice: params.PurchasePrice,
		PurchaseDate:  purchaseDate,
		Notes:         params.Notes,
	}
	if err := s.Store.InsertPortfolioEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) ListEntries(ctx context.Context, ownerID string) ([]models.PortfolioEntry, error) {
	return s.Store.ListPortfolioEntries(ctx, ownerID)
}

func (s *Service) UpdateEntry(ctx context.Context, id, ownerID string, params UpdateEntryParams) (*models.PortfolioEntry, error) {
	entry, err := s.Store.GetPortfolioEntry(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if params.Quantity != nil {
		if !params.Quantity.IsPositive() {
			return nil, &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
		}
		entry.Quantity = *params.Quantity
	}
	if params.Notes != nil {
		entry.Notes = params.Notes
	}
	if err := s.Store.UpdatePortfolioEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) RemoveEntry(ctx context.Context, id, ownerID string) error {
	deleted, err := s.Store.DeletePortfolioEntry(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !deleted {
		return repository.ErrNotFound
	}
	return nil
}

// Valuate prices every entry for an owner. Prices dated in the future are
// never used; resolution is always "latest point at or before now".
func (s *Service) Valuate(ctx context.Context, ownerID string) (*Valuation, error) {
	entries, err := s.Store.ListPortfolioEntries(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	nowUTC := s.now()
	result := &Valuation{OwnerID: ownerID}
	for _, entry := range entries {
		ev := s.valuateEntry(ctx, entry, nowUTC)
		result.Entries = append(result.Entries, ev)
		result.TotalInvestment = result.TotalInvestment.Add(ev.Investment)
		result.CurrentValue = result.CurrentValue.Add(ev.CurrentValue)
		result.TotalQuantity = result.TotalQuantity.Add(entry.Quantity)
		if ev.Stale {
			result.Stale = true
		}
	}
	result.TotalProfit = result.CurrentValue.Sub(result.TotalInvestment)
	if result.TotalInvestment.IsPositive() {
		pct := result.TotalProfit.Div(result.TotalInvestment).Mul(decimalHundred).Round(2)
		result.ProfitPct = &pct
	}
	return result, nil
}

func (s *Service) valuateEntry(ctx context.Context, entry models.PortfolioEntry, nowUTC time.Time) EntryValuation {
	ev := EntryValuation{
		Entry:      entry,
		Investment: entry.Quantity.Mul(entry.PurchasePrice),
	}

	point, err := s.Store.PriceAt(ctx, entry.ItemID, nowUTC)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		ev.Stale = true
	case err != nil:
		if s.Logger != nil {
			s.Logger.Warn("price lookup failed for portfolio entry",
				zap.String("entry", entry.ID),
				zap.String("item", entry.ItemID),
				zap.Error(err),
			)
		}
		ev.Stale = true
	case point.Price.IsNegative():
		ev.Stale = true
	default:
		ev.CurrentPrice = point.Price
		ts := point.Timestamp
		ev.PricedAt = &ts
		staleAfter := s.Config.StaleAfter
		if staleAfter <= 0 {
			staleAfter = 30 * time.Minute
		}
		ev.Stale = nowUTC.Sub(point.Timestamp) > staleAfter
	}

	ev.CurrentValue = entry.Quantity.Mul(ev.CurrentPrice)
	ev.Profit = ev.CurrentValue.Sub(ev.Investment)
	if ev.Investment.IsPositive() {
		pct := ev.Profit.Div(ev.Investment).Mul(decimalHundred).Round(2)
		ev.ProfitPct = &pct
	}
	return ev
}

// Rating buckets for the owner-level profit percentage.
const (
	RatingExcellent = "excellent"
	RatingGood      = "good"
	RatingPositive  = "positive"
	RatingNeutral   = "neutral"
	RatingNegative  = "negative"
)

type Performance struct {
	Valuation  *Valuation
	PeriodDays int
	Rating     string
}

// Performance is the coarse periodic view of an owner's portfolio: the
// current valuation plus a rating bucket derived from the profit percentage.
func (s *Service) Performance(ctx context.Context, ownerID string, days int) (*Performance, error) {
	if days <= 0 {
		days = 30
	}
	valuation, err := s.Valuate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	profitPct := 0.0
	if valuation.ProfitPct != nil {
		profitPct = valuation.ProfitPct.InexactFloat64()
	}
	return &Performance{
		Valuation:  valuation,
		PeriodDays: days,
		Rating:     ratingFor(profitPct),
	}, nil
}

func ratingFor(profitPct float64) string {
	switch {
	case profitPct >= 50:
		return RatingExcellent
	case profitPct >= 20:
		return RatingGood
	case profitPct >= 0:
		return RatingPositive
	case profitPct >= -10:
		return RatingNeutral
	default:
		return RatingNegative
	}
}

// RefreshStatistics recomputes and persists the aggregate row for one owner.
func (s *Service) RefreshStatistics(ctx context.Context, ownerID string) (*models.PortfolioStatistics, error) {
	valuation, err := s.Valuate(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stats := &models.PortfolioStatistics{
		OwnerID:         ownerID,
		TotalInvestment: valuation.TotalInvestment.Round(2),
		CurrentValue:    valuation.CurrentValue.Round(2),
		TotalProfit:     valuation.TotalProfit.Round(2),
		TotalQuantity:   valuation.TotalQuantity,
		LastUpdated:     s.now(),
	}
	if valuation.ProfitPct != nil {
		stats.ProfitPercentage = *valuation.ProfitPct
	}
	if err := s.Store.UpsertPortfolioStatistics(ctx, stats); err != nil {
		return nil, err
	}
	return stats, nil
}
