package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"itemwatch/internal/models"
	"itemwatch/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- catalog ----------------------------------------------------------------

func (s *Store) UpsertItem(ctx context.Context, item *models.Item) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return errors.New("item name is empty")
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"market_url",
			"updated_at",
		}),
	}).Create(item).Error; err != nil {
		return err
	}
	// On a name conflict the table keeps the original row's id; hand the
	// caller the persisted identity, not the one it generated.
	var persisted models.Item
	if err := s.db.WithContext(ctx).First(&persisted, "name = ?", item.Name).Error; err != nil {
		return err
	}
	*item = persisted
	return nil
}

func (s *Store) GetItemByID(ctx context.Context, id string) (*models.Item, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Item
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetItemByName(ctx context.Context, name string) (*models.Item, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Item
	err := s.db.WithContext(ctx).First(&item, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Item
	if err := s.db.WithContext(ctx).
		Model(&models.Item{}).
		Order("name asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountItems(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Item{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// --- price history ----------------------------------------------------------

func (s *Store) UpsertPricePoint(ctx context.Context, point *models.PricePoint) error {
	if s == nil || s.db == nil || point == nil {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"price",
			"currency",
		}),
	}).Create(point).Error
	if err != nil {
		return &repository.WriteError{ItemID: point.ItemID, Err: err}
	}
	return nil
}

func (s *Store) LatestPrice(ctx context.Context, itemID string) (*models.PricePoint, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var point models.PricePoint
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("timestamp desc").
		First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &point, nil
}

func (s *Store) LatestPrices(ctx context.Context, itemIDs []string) (map[string]models.PricePoint, error) {
	if s == nil || s.db == nil || len(itemIDs) == 0 {
		return map[string]models.PricePoint{}, nil
	}
	sub := s.db.WithContext(ctx).
		Model(&models.PricePoint{}).
		Select("item_id, max(timestamp) as timestamp").
		Where("item_id IN ?", itemIDs).
		Group("item_id")
	var points []models.PricePoint
	if err := s.db.WithContext(ctx).
		Model(&models.PricePoint{}).
		Where("(item_id, timestamp) IN (?)", sub).
		Find(&points).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.PricePoint, len(points))
	for _, p := range points {
		out[p.ItemID] = p
	}
	return out, nil
}

func (s *Store) PriceRange(ctx context.Context, itemID string, since, until time.Time) ([]models.PricePoint, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.PricePoint{}).
		Where("item_id = ?", itemID)
	if !since.IsZero() {
		query = query.Where("timestamp >= ?", since)
	}
	if !until.IsZero() {
		query = query.Where("timestamp <= ?", until)
	}
	var points []models.PricePoint
	if err := query.Order("timestamp asc").Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) PriceAt(ctx context.Context, itemID string, asOf time.Time) (*models.PricePoint, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var point models.PricePoint
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Where("timestamp <= ?", asOf).
		Order("timestamp desc").
		First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &point, nil
}

func (s *Store) LatestTimestamp(ctx context.Context) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ts *time.Time
	if err := s.db.WithContext(ctx).
		Model(&models.PricePoint{}).
		Select("max(timestamp)").
		Scan(&ts).Error; err != nil {
		return nil, err
	}
	return ts, nil
}

func (s *Store) DeletePricePointsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&models.PricePoint{})
	return res.RowsAffected, res.Error
}

// --- item statistics --------------------------------------------------------

func (s *Store) UpsertItemStatistics(ctx context.Context, stats *models.ItemStatistics) error {
	if s == nil || s.db == nil || stats == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_price",
			"min_price30d",
			"max_price30d",
			"avg_price30d",
			"price_change24h",
			"price_change7d",
			"price_change30d",
			"last_updated",
		}),
	}).Create(stats).Error
}

func (s *Store) GetItemStatistics(ctx context.Context, itemID string) (*models.ItemStatistics, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var stats models.ItemStatistics
	err := s.db.WithContext(ctx).First(&stats, "item_id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Store) ListItemStatistics(ctx context.Context) ([]models.ItemStatistics, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ItemStatistics
	if err := s.db.WithContext(ctx).
		Model(&models.ItemStatistics{}).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountItemStatistics(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ItemStatistics{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// --- portfolio --------------------------------------------------------------

func (s *Store) InsertPortfolioEntry(ctx context.Context, entry *models.PortfolioEntry) error {
	if s == nil || s.db == nil || entry == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *Store) GetPortfolioEntry(ctx context.Context, id, ownerID string) (*models.PortfolioEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var entry models.PortfolioEntry
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListPortfolioEntries(ctx context.Context, ownerID string) ([]models.PortfolioEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var entries []models.PortfolioEntry
	if err := s.db.WithContext(ctx).
		Preload("Item").
		Where("owner_id = ?", ownerID).
		Order("purchase_date desc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) UpdatePortfolioEntry(ctx context.Context, entry *models.PortfolioEntry) error {
	if s == nil || s.db == nil || entry == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(entry).Error
}

func (s *Store) DeletePortfolioEntry(ctx context.Context, id, ownerID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&models.PortfolioEntry{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpsertPortfolioStatistics(ctx context.Context, stats *models.PortfolioStatistics) error {
	if s == nil || s.db == nil || stats == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_investment",
			"current_value",
			"total_profit",
			"profit_percentage",
			"total_quantity",
			"last_updated",
		}),
	}).Create(stats).Error
}

func (s *Store) GetPortfolioStatistics(ctx context.Context, ownerID string) (*models.PortfolioStatistics, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var stats models.PortfolioStatistics
	err := s.db.WithContext(ctx).First(&stats, "owner_id = ?", ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// --- alert state ------------------------------------------------------------

func (s *Store) GetAlertState(ctx context.Context, itemID, direction string) (*models.AlertState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.AlertState
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND direction = ?", itemID, direction).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) UpsertAlertState(ctx context.Context, state *models.AlertState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}, {Name: "direction"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"level",
			"day",
			"updated_at",
		}),
	}).Create(state).Error
}

func (s *Store) InsertAlertEvent(ctx context.Context, event *models.AlertEvent) error {
	if s == nil || s.db == nil || event == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *Store) ListAlertEvents(ctx context.Context, params repository.ListAlertEventsParams) ([]models.AlertEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.AlertEvent{})
	if params.ItemID != nil && strings.TrimSpace(*params.ItemID) != "" {
		query = query.Where("item_id = ?", strings.TrimSpace(*params.ItemID))
	}
	if params.Level != nil && strings.TrimSpace(*params.Level) != "" {
		query = query.Where("level = ?", strings.TrimSpace(*params.Level))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var events []models.AlertEvent
	if err := query.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
