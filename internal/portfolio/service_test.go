package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"itemwatch/internal/config"
	"itemwatch/internal/models"
	"itemwatch/internal/repository"
)

type fakePortfolioStore struct {
	items   map[string]models.Item
	entries map[string]models.PortfolioEntry
	points  map[string][]models.PricePoint
	stats   map[string]models.PortfolioStatistics
}

func newFakePortfolioStore() *fakePortfolioStore {
	return &fakePortfolioStore{
		items:   map[string]models.Item{},
		entries: map[string]models.PortfolioEntry{},
		points:  map[string][]models.PricePoint{},
		stats:   map[string]models.PortfolioStatistics{},
	}
}

func (f *fakePortfolioStore) GetItemByID(ctx context.Context, id string) (*models.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (f *fakePortfolioStore) InsertPortfolioEntry(ctx context.Context, entry *models.PortfolioEntry) error {
	f.entries[entry.ID] = *entry
	return nil
}

func (f *fakePortfolioStore) GetPortfolioEntry(ctx context.Context, id, ownerID string) (*models.PortfolioEntry, error) {
	entry, ok := f.entries[id]
	if !ok || entry.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &entry, nil
}

func (f *fakePortfolioStore) ListPortfolioEntries(ctx context.Context, ownerID string) ([]models.PortfolioEntry, error) {
	var out []models.PortfolioEntry
	for _, entry := range f.entries {
		if entry.OwnerID == ownerID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakePortfolioStore) UpdatePortfolioEntry(ctx context.Context, entry *models.PortfolioEntry) error {
	f.entries[entry.ID] = *entry
	return nil
}

func (f *fakePortfolioStore) DeletePortfolioEntry(ctx context.Context, id, ownerID string) (bool, error) {
	entry, ok := f.entries[id]
	if !ok || entry.OwnerID != ownerID {
		return false, nil
	}
	delete(f.entries, id)
	return true, nil
}

func (f *fakePortfolioStore) UpsertPortfolioStatistics(ctx context.Context, stats *models.PortfolioStatistics) error {
	f.stats[stats.OwnerID] = *stats
	return nil
}

func (f *fakePortfolioStore) GetPortfolioStatistics(ctx context.Context, ownerID string) (*models.PortfolioStatistics, error) {
	stats, ok := f.stats[ownerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &stats, nil
}

func (f *fakePortfolioStore) PriceAt(ctx context.Context, itemID string, asOf time.Time) (*models.PricePoint, error) {
	pts := f.points[itemID]
	for i := len(pts) - 1; i >= 0; i-- {
		if !pts[i].Timestamp.After(asOf) {
			p := pts[i]
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func newTestService(store Store) *Service {
	return NewService(store, zap.NewNop(), config.PortfolioConfig{StaleAfter: 30 * time.Minute})
}

func TestAddEntryValidation(t *testing.T) {
	store := newFakePortfolioStore()
	store.items["knife"] = models.Item{ID: "knife", Name: "Karambit"}
	svc := newTestService(store)
	ctx := context.Background()

	var verr *ValidationError

	_, err := svc.AddEntry(ctx, AddEntryParams{OwnerID: "alice", ItemID: "knife", Quantity: decimal.Zero, PurchasePrice: decimal.NewFromInt(10)})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "quantity", verr.Field)

	_, err = svc.AddEntry(ctx, AddEntryParams{OwnerID: "alice", ItemID: "knife", Quantity: decimal.NewFromInt(1), PurchasePrice: decimal.NewFromInt(-1)})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "purchase_price", verr.Field)

	_, err = svc.AddEntry(ctx, AddEntryParams{OwnerID: "alice", ItemID: "missing", Quantity: decimal.NewFromInt(1), PurchasePrice: decimal.NewFromInt(10)})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "item_id", verr.Field)

	entry, err := svc.AddEntry(ctx, AddEntryParams{OwnerID: "alice", ItemID: "knife", Quantity: decimal.NewFromInt(1), PurchasePrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.PurchaseDate.IsZero())
}

func TestValuateProfit(t *testing.T) {
	store := newFakePortfolioStore()
	store.items["knife"] = models.Item{ID: "knife", Name: "Karambit"}
	svc := newTestService(store)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	entry, err := svc.AddEntry(context.Background(), AddEntryParams{
		OwnerID:       "alice",
		ItemID:        "knife",
		Quantity:      decimal.NewFromInt(2),
		PurchasePrice: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	store.points["knife"] = []models.PricePoint{
		{ItemID: "knife", Price: decimal.NewFromInt(15), Timestamp: now.Add(-5 * time.Minute)},
	}

	valuation, err := svc.Valuate(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, valuation.Entries, 1)

	ev := valuation.Entries[0]
	require.Equal(t, entry.ID, ev.Entry.ID)
	require.True(t, ev.CurrentValue.Equal(decimal.NewFromInt(30)), "current_value=%s", ev.CurrentValue)
	require.True(t, ev.Profit.Equal(decimal.NewFromInt(10)), "profit=%s", ev.Profit)
	require.NotNil(t, ev.ProfitPct)
	require.True(t, ev.ProfitPct.Equal(decimal.NewFromInt(50)), "profit_pct=%s", ev.ProfitPct)
	require.False(t, ev.Stale)

	require.True(t, valuation.TotalProfit.Equal(decimal.NewFromInt(10)))
	require.False(t, valuation.Stale)
}

func TestValuateIgnoresFutureAndMarksStale(t *testing.T) {
	store := newFakePortfolioStore()
	store.items["knife"] = models.Item{ID: "knife", Name: "Karambit"}
	svc := newTestService(store)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.AddEntry(context.Background(), AddEntryParams{
		OwnerID:       "alice",
		ItemID:        "knife",
		Quantity:      decimal.NewFromInt(1),
		PurchasePrice: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	// Only an old point plus a future-dated one: the future point must be
	// skipped and the old one flagged stale.
	store.points["knife"] = []models.PricePoint{
		{ItemID: "knife", Price: decimal.NewFromInt(12), Timestamp: now.Add(-2 * time.Hour)},
		{ItemID: "knife", Price: decimal.NewFromInt(99), Timestamp: now.Add(time.Hour)},
	}

	valuation, err := svc.Valuate(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, valuation.Entries, 1)

	ev := valuation.Entries[0]
	require.True(t, ev.CurrentPrice.Equal(decimal.NewFromInt(12)))
	require.True(t, ev.Stale)
	require.True(t, valuation.Stale)
}

func TestValuateNoHistory(t *testing.T) {
	store := newFakePortfolioStore()
	store.items["knife"] = models.Item{ID: "knife", Name: "Karambit"}
	svc := newTestService(store)

	_, err := svc.AddEntry(context.Background(), AddEntryParams{
		OwnerID:       "alice",
		ItemID:        "knife",
		Quantity:      decimal.NewFromInt(3),
		PurchasePrice: decimal.Zero,
	})
	require.NoError(t, err)

	valuation, err := svc.Valuate(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, valuation.Entries, 1)

	ev := valuation.Entries[0]
	require.True(t, ev.Stale)
	require.True(t, ev.CurrentValue.IsZero())
	// Zero investment: percentage is undefined, not a division by zero.
	require.Nil(t, ev.ProfitPct)
	require.Nil(t, valuation.ProfitPct)
}

func TestUpdateAndRemoveEntry(t *testing.T) {
	store := newFakePortfolioStore()
	store.items["knife"] = models.Item{ID: "knife", Name: "Karambit"}
	svc := newTestService(store)
	ctx := context.Background()

	entry, err := svc.AddEntry(ctx, AddEntryParams{
		OwnerID:       "alice",
		ItemID:        "knife",
		Quantity:      decimal.NewFromInt(1),
		PurchasePrice: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	qty := decimal.NewFromInt(4)
	note := "restocked"
	updated, err := svc.UpdateEntry(ctx, entry.ID, "alice", UpdateEntryParams{Quantity: &qty, Notes: &note})
	require.NoError(t, err)
	require.True(t, updated.Quantity.Equal(qty))
	require.Equal(t, &note, updated.Notes)

	bad := decimal.NewFromInt(-1)
	_, err = svc.UpdateEntry(ctx, entry.ID, "alice", UpdateEntryParams{Quantity: &bad})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// Owner scoping: bob cannot touch alice's entry.
	_, err = svc.UpdateEntry(ctx, entry.ID, "bob", UpdateEntryParams{Notes: &note})
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, svc.RemoveEntry(ctx, entry.ID, "bob"), repository.ErrNotFound)

	require.NoError(t, svc.RemoveEntry(ctx, entry.ID, "alice"))
	require.ErrorIs(t, svc.RemoveEntry(ctx, entry.ID, "alice"), repository.ErrNotFound)
}

func TestPerformanceRating(t *testing.T) {
	cases := []struct {
		profitPct float64
		want      string
	}{
		{75, RatingExcellent},
		{50, RatingExcellent},
		{20, RatingGood},
		{5, RatingPositive},
		{0, RatingPositive},
		{-5, RatingNeutral},
		{-10, RatingNeutral},
		{-30, RatingNegative},
	}
	for _, tc := range cases {
		if got := ratingFor(tc.profitPct); got != tc.want {
			t.Fatalf("ratingFor(%.1f)=%s want=%s", tc.profitPct, got, tc.want)
		}
	}
}

func TestPerformance(t *testing.T) {
	store := newFakePortfolioStore()
	store.items["knife"] = models.Item{ID: "knife", Name: "Karambit"}
	svc := newTestService(store)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.AddEntry(context.Background(), AddEntryParams{
		OwnerID:       "alice",
		ItemID:        "knife",
		Quantity:      decimal.NewFromInt(2),
		PurchasePrice: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	store.points["knife"] = []models.PricePoint{
		{ItemID: "knife", Price: decimal.NewFromInt(15), Timestamp: now.Add(-5 * time.Minute)},
	}

	perf, err := svc.Performance(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Equal(t, 30, perf.PeriodDays)
	// +50% profit lands in the top bucket.
	require.Equal(t, RatingExcellent, perf.Rating)
	require.True(t, perf.Valuation.TotalProfit.Equal(decimal.NewFromInt(10)))

	// An empty portfolio has undefined profit and reads as positive-zero.
	empty, err := svc.Performance(context.Background(), "nobody", 7)
	require.NoError(t, err)
	require.Equal(t, 7, empty.PeriodDays)
	require.Equal(t, RatingPositive, empty.Rating)
}

func TestRefreshStatistics(t *testing.T) {
	store := newFakePortfolioStore()
	store.items["knife"] = models.Item{ID: "knife", Name: "Karambit"}
	store.items["glove"] = models.Item{ID: "glove", Name: "Sport Gloves"}
	svc := newTestService(store)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	for _, p := range []AddEntryParams{
		{OwnerID: "alice", ItemID: "knife", Quantity: decimal.NewFromInt(2), PurchasePrice: decimal.NewFromInt(10)},
		{OwnerID: "alice", ItemID: "glove", Quantity: decimal.NewFromInt(1), PurchasePrice: decimal.NewFromInt(50)},
	} {
		_, err := svc.AddEntry(ctx, p)
		require.NoError(t, err)
	}
	store.points["knife"] = []models.PricePoint{{ItemID: "knife", Price: decimal.NewFromInt(15), Timestamp: now}}
	store.points["glove"] = []models.PricePoint{{ItemID: "glove", Price: decimal.NewFromInt(40), Timestamp: now}}

	stats, err := svc.RefreshStatistics(ctx, "alice")
	require.NoError(t, err)
	require.True(t, stats.TotalInvestment.Equal(decimal.NewFromInt(70)), "investment=%s", stats.TotalInvestment)
	require.True(t, stats.CurrentValue.Equal(decimal.NewFromInt(70)))
	require.True(t, stats.TotalProfit.IsZero())
	require.True(t, stats.TotalQuantity.Equal(decimal.NewFromInt(3)))

	persisted, err := store.GetPortfolioStatistics(ctx, "alice")
	require.NoError(t, err)
	require.True(t, persisted.CurrentValue.Equal(decimal.NewFromInt(70)))
}
