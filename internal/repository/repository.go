package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"itemwatch/internal/models"
)

var ErrNotFound = errors.New("not found")

// WriteError marks a persistence failure for a single price point. The
// ingestion cycle logs it and moves on; the point is re-fetched next period.
type WriteError struct {
	ItemID string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write failed for item %s: %v", e.ItemID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type ListAlertEventsParams struct {
	ItemID *string
	Level  *string
	Since  *time.Time
	Limit  int
	Offset int
}

// ItemRepository covers the catalog. Items must exist before any price point
// referencing them is accepted (FK enforced in the store).
type ItemRepository interface {
	// UpsertItem merges on name. On conflict the stored row's identity
	// wins and item is rewritten in place with the persisted row, so the
	// caller never holds an id that is not in the table.
	UpsertItem(ctx context.Context, item *models.Item) error
	GetItemByID(ctx context.Context, id string) (*models.Item, error)
	GetItemByName(ctx context.Context, name string) (*models.Item, error)
	ListItems(ctx context.Context) ([]models.Item, error)
	CountItems(ctx context.Context) (int64, error)
}

// PriceRepository is the time-series store contract from the ingestion and
// analytics side.
type PriceRepository interface {
	// UpsertPricePoint is the idempotent append: (item_id, timestamp) is the
	// merge key, last write for an instant wins.
	UpsertPricePoint(ctx context.Context, point *models.PricePoint) error
	LatestPrice(ctx context.Context, itemID string) (*models.PricePoint, error)
	LatestPrices(ctx context.Context, itemIDs []string) (map[string]models.PricePoint, error)
	PriceRange(ctx context.Context, itemID string, since, until time.Time) ([]models.PricePoint, error)
	PriceAt(ctx context.Context, itemID string, asOf time.Time) (*models.PricePoint, error)
	LatestTimestamp(ctx context.Context) (*time.Time, error)
	DeletePricePointsBefore(ctx context.Context, before time.Time) (int64, error)
}

type StatisticsRepository interface {
	UpsertItemStatistics(ctx context.Context, stats *models.ItemStatistics) error
	GetItemStatistics(ctx context.Context, itemID string) (*models.ItemStatistics, error)
	ListItemStatistics(ctx context.Context) ([]models.ItemStatistics, error)
	CountItemStatistics(ctx context.Context) (int64, error)
}

type PortfolioRepository interface {
	InsertPortfolioEntry(ctx context.Context, entry *models.PortfolioEntry) error
	GetPortfolioEntry(ctx context.Context, id, ownerID string) (*models.PortfolioEntry, error)
	ListPortfolioEntries(ctx context.Context, ownerID string) ([]models.PortfolioEntry, error)
	UpdatePortfolioEntry(ctx context.Context, entry *models.PortfolioEntry) error
	DeletePortfolioEntry(ctx context.Context, id, ownerID string) (bool, error)
	UpsertPortfolioStatistics(ctx context.Context, stats *models.PortfolioStatistics) error
	GetPortfolioStatistics(ctx context.Context, ownerID string) (*models.PortfolioStatistics, error)
}

type AlertRepository interface {
	GetAlertState(ctx context.Context, itemID, direction string) (*models.AlertState, error)
	UpsertAlertState(ctx context.Context, state *models.AlertState) error
	InsertAlertEvent(ctx context.Context, event *models.AlertEvent) error
	ListAlertEvents(ctx context.Context, params ListAlertEventsParams) ([]models.AlertEvent, error)
}

// Repository is the unified store handed to services.
type Repository interface {
	ItemRepository
	PriceRepository
	StatisticsRepository
	PortfolioRepository
	AlertRepository

	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
