package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"itemwatch/internal/config"
	"itemwatch/internal/models"
	"itemwatch/internal/repository"
)

type fakeFetcher struct {
	mu       sync.Mutex
	prices   map[string]decimal.Decimal
	failing  map[string]error
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeFetcher) FetchPrice(ctx context.Context, name string) (decimal.Decimal, error) {
	cur := f.inFlight.Add(1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[name]; ok {
		return decimal.Zero, err
	}
	return f.prices[name], nil
}

type fakePriceRepo struct {
	mu     sync.Mutex
	points []models.PricePoint
	fail   bool
}

func (r *fakePriceRepo) UpsertPricePoint(ctx context.Context, p *models.PricePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return &repository.WriteError{ItemID: p.ItemID, Err: errors.New("disk full")}
	}
	r.points = append(r.points, *p)
	return nil
}

func (r *fakePriceRepo) LatestPrice(ctx context.Context, itemID string) (*models.PricePoint, error) {
	return nil, repository.ErrNotFound
}

func (r *fakePriceRepo) LatestPrices(ctx context.Context, itemIDs []string) (map[string]models.PricePoint, error) {
	return nil, nil
}

func (r *fakePriceRepo) PriceRange(ctx context.Context, itemID string, since, until time.Time) ([]models.PricePoint, error) {
	return nil, nil
}

func (r *fakePriceRepo) PriceAt(ctx context.Context, itemID string, asOf time.Time) (*models.PricePoint, error) {
	return nil, repository.ErrNotFound
}

func (r *fakePriceRepo) LatestTimestamp(ctx context.Context) (*time.Time, error) {
	return nil, nil
}

func (r *fakePriceRepo) DeletePricePointsBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func testItems(n int) []models.Item {
	items := make([]models.Item, 0, n)
	names := []string{"Alpha Case", "Bravo Case", "Charlie Case", "Delta Case", "Echo Case"}
	for i := 0; i < n; i++ {
		items = append(items, models.Item{ID: names[i], Name: names[i]})
	}
	return items
}

func testConnector(fetcher PriceFetcher, repo repository.PriceRepository) *Connector {
	return &Connector{
		Fetcher: fetcher,
		Repo:    repo,
		Logger:  zap.NewNop(),
		Config: config.SourceConfig{
			Concurrency: 2,
			RetryCount:  2,
			RetryDelay:  time.Millisecond,
			Currency:    "5",
		},
	}
}

func TestRunCycle_FailingItemDoesNotAbortBatch(t *testing.T) {
	fetcher := &fakeFetcher{
		prices: map[string]decimal.Decimal{
			"Alpha Case":   decimal.NewFromInt(10),
			"Bravo Case":   decimal.NewFromInt(20),
			"Delta Case":   decimal.NewFromInt(40),
			"Echo Case":    decimal.NewFromInt(50),
			"Charlie Case": decimal.Zero,
		},
		failing: map[string]error{
			"Charlie Case": context.DeadlineExceeded,
		},
	}
	repo := &fakePriceRepo{}
	conn := testConnector(fetcher, repo)

	result := conn.RunCycle(context.Background(), testItems(5))

	if result.Persisted != 4 {
		t.Fatalf("persisted=%d want=4", result.Persisted)
	}
	if len(result.FetchErrors) != 1 {
		t.Fatalf("fetch errors=%d want=1", len(result.FetchErrors))
	}
	fe := result.FetchErrors[0]
	if fe.ItemName != "Charlie Case" {
		t.Fatalf("failed item=%q want Charlie Case", fe.ItemName)
	}
	if fe.Attempts != 2 {
		t.Fatalf("attempts=%d want=2", fe.Attempts)
	}
	if !errors.Is(fe, context.DeadlineExceeded) {
		t.Fatalf("fetch error should wrap the cause, got %v", fe.Err)
	}
	if len(repo.points) != 4 {
		t.Fatalf("repo points=%d want=4", len(repo.points))
	}
	for _, p := range repo.points {
		if p.ItemID == "Charlie Case" {
			t.Fatalf("failed item must not be persisted")
		}
		if p.Currency != "RUB" {
			t.Fatalf("currency=%q want RUB", p.Currency)
		}
	}
}

func TestRunCycle_BoundsConcurrency(t *testing.T) {
	fetcher := &fakeFetcher{prices: map[string]decimal.Decimal{}}
	for _, it := range testItems(5) {
		fetcher.prices[it.Name] = decimal.NewFromInt(1)
	}
	conn := testConnector(fetcher, &fakePriceRepo{})

	conn.RunCycle(context.Background(), testItems(5))

	if max := fetcher.maxSeen.Load(); max > 2 {
		t.Fatalf("max in-flight=%d exceeds concurrency bound 2", max)
	}
}

func TestRunCycle_WriteErrorReportedNotFatal(t *testing.T) {
	fetcher := &fakeFetcher{prices: map[string]decimal.Decimal{}}
	for _, it := range testItems(3) {
		fetcher.prices[it.Name] = decimal.NewFromInt(1)
	}
	repo := &fakePriceRepo{fail: true}
	conn := testConnector(fetcher, repo)

	result := conn.RunCycle(context.Background(), testItems(3))

	if result.Persisted != 0 {
		t.Fatalf("persisted=%d want=0", result.Persisted)
	}
	if len(result.WriteErrors) != 3 {
		t.Fatalf("write errors=%d want=3", len(result.WriteErrors))
	}
	if result.Skipped() != 3 {
		t.Fatalf("skipped=%d want=3", result.Skipped())
	}
}

func TestRunCycle_CanceledContextStopsAdmission(t *testing.T) {
	fetcher := &fakeFetcher{prices: map[string]decimal.Decimal{}}
	for _, it := range testItems(5) {
		fetcher.prices[it.Name] = decimal.NewFromInt(1)
	}
	conn := testConnector(fetcher, &fakePriceRepo{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := conn.RunCycle(ctx, testItems(5))

	// Cancellation before admission: nothing starts, nothing is reported
	// as failed either.
	if result.Persisted != 0 {
		t.Fatalf("persisted=%d after pre-cancel, want=0", result.Persisted)
	}
	if len(result.FetchErrors) != 0 {
		t.Fatalf("fetch errors=%d after pre-cancel, want=0", len(result.FetchErrors))
	}
}
