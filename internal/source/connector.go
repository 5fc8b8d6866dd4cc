package source

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"itemwatch/internal/config"
	"itemwatch/internal/models"
	"itemwatch/internal/repository"
)

// FetchError marks one item whose price could not be fetched this cycle
// after all retries. The cycle continues for every other item.
type FetchError struct {
	ItemID   string
	ItemName string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q failed after %d attempts: %v", e.ItemName, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PriceFetcher is what the connector needs from the market client.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, itemName string) (decimal.Decimal, error)
}

// Connector runs one ingestion cycle: fetch the current price for every
// item with bounded concurrency and persist each price as soon as its fetch
// succeeds. A slow or failing item never blocks the rest of the batch.
type Connector struct {
	Fetcher PriceFetcher
	Repo    repository.PriceRepository
	Logger  *zap.Logger

	Config config.SourceConfig
}

type CycleResult struct {
	Total       int
	Persisted   int
	FetchErrors []*FetchError
	WriteErrors []*repository.WriteError
	StartedAt   time.Time
	Duration    time.Duration
}

func (r CycleResult) Skipped() int {
	return len(r.FetchErrors) + len(r.WriteErrors)
}

func (c *Connector) RunCycle(ctx context.Context, items []models.Item) CycleResult {
	start := time.Now().UTC()
	result := CycleResult{Total: len(items), StartedAt: start}
	if len(items) == 0 || c == nil || c.Fetcher == nil {
		return result
	}

	concurrency := c.Config.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, item := range items {
		// Shutdown: stop admitting new fetches. Completed items are already
		// persisted.
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(item models.Item) {
			defer wg.Done()
			defer func() { <-sem }()

			price, err := c.fetchWithRetry(ctx, item.Name)
			if err != nil {
				var fe *FetchError
				if !errors.As(err, &fe) {
					fe = &FetchError{ItemName: item.Name, Attempts: 1, Err: err}
				}
				fe.ItemID = item.ID
				mu.Lock()
				result.FetchErrors = append(result.FetchErrors, fe)
				mu.Unlock()
				if c.Logger != nil {
					c.Logger.Warn("fetch failed, item skipped this cycle",
						zap.String("item", item.Name),
						zap.Int("attempts", fe.Attempts),
						zap.Error(fe.Err),
					)
				}
				return
			}

			point := &models.PricePoint{
				ItemID:    item.ID,
				Price:     price,
				Currency:  CurrencyName(c.Config.Currency),
				Timestamp: time.Now().UTC().Truncate(time.Second),
			}
			if err := c.Repo.UpsertPricePoint(ctx, point); err != nil {
				var we *repository.WriteError
				if !errors.As(err, &we) {
					we = &repository.WriteError{ItemID: item.ID, Err: err}
				}
				mu.Lock()
				result.WriteErrors = append(result.WriteErrors, we)
				mu.Unlock()
				if c.Logger != nil {
					c.Logger.Warn("price write failed, retried next cycle",
						zap.String("item", item.Name),
						zap.Error(we.Err),
					)
				}
				return
			}

			mu.Lock()
			result.Persisted++
			mu.Unlock()
		}(item)
	}

	wg.Wait()
	result.Duration = time.Since(start)
	return result
}

func (c *Connector) fetchWithRetry(ctx context.Context, itemName string) (decimal.Decimal, error) {
	attempts := c.Config.RetryCount
	if attempts <= 0 {
		attempts = 3
	}
	delay := c.Config.RetryDelay
	if delay <= 0 {
		delay = 1200 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		price, err := c.Fetcher.FetchPrice(ctx, itemName)
		if err == nil {
			return price, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		// Exponential backoff with jitter so retries do not align across
		// the worker pool.
		jitter := time.Duration(rand.Int63n(int64(400 * time.Millisecond)))
		select {
		case <-ctx.Done():
			return decimal.Zero, &FetchError{ItemName: itemName, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return decimal.Zero, &FetchError{ItemName: itemName, Attempts: attempts, Err: lastErr}
}
