package alert

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"itemwatch/internal/config"
	"itemwatch/internal/models"
	"itemwatch/internal/notify"
	"itemwatch/internal/repository"
)

type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	default:
		return "none"
	}
}

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

var decimalHundred = decimal.NewFromInt(100)

// Store is what the evaluator needs from the repository.
type Store interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	LatestPrice(ctx context.Context, itemID string) (*models.PricePoint, error)
	PriceAt(ctx context.Context, itemID string, asOf time.Time) (*models.PricePoint, error)
	GetAlertState(ctx context.Context, itemID, direction string) (*models.AlertState, error)
	UpsertAlertState(ctx context.Context, state *models.AlertState) error
	InsertAlertEvent(ctx context.Context, event *models.AlertEvent) error
}

// Evaluator classifies windowed price changes into severity levels and fires
// one event per (item, direction, day) severity escalation. Equal or lower
// severities on the same day are suppressed; the per-day watermark implicitly
// resets at UTC day rollover because stale rows stop matching.
type Evaluator struct {
	Store  Store
	Queue  *notify.Queue
	Logger *zap.Logger

	Config config.AlertsConfig

	// now is swappable for day-rollover tests.
	now func() time.Time
}

func NewEvaluator(store Store, queue *notify.Queue, logger *zap.Logger, cfg config.AlertsConfig) *Evaluator {
	return &Evaluator{
		Store:  store,
		Queue:  queue,
		Logger: logger,
		Config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type ScanResult struct {
	Evaluated  int
	Fired      int
	Suppressed int
}

// Scan evaluates every catalog item once. Store failures for one item are
// logged and skipped; the scan always completes.
func (e *Evaluator) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult
	items, err := e.Store.ListItems(ctx)
	if err != nil {
		return result, err
	}
	for _, item := range items {
		fired, suppressed, err := e.evaluateItem(ctx, item)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Warn("alert evaluation failed for item",
					zap.String("item", item.Name),
					zap.Error(err),
				)
			}
			continue
		}
		result.Evaluated++
		if fired {
			result.Fired++
		}
		if suppressed {
			result.Suppressed++
		}
	}
	return result, nil
}

func (e *Evaluator) evaluateItem(ctx context.Context, item models.Item) (fired, suppressed bool, err error) {
	window := time.Duration(e.Config.WindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	nowUTC := e.now()

	latest, err := e.Store.LatestPrice(ctx, item.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	base, err := e.Store.PriceAt(ctx, item.ID, nowUTC.Add(-window))
	if errors.Is(err, repository.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	if base.Price.IsZero() {
		return false, false, nil
	}

	changePct, _ := latest.Price.Sub(base.Price).
		Div(base.Price).
		Mul(decimalHundred).
		Round(4).
		Float64()

	direction := DirectionUp
	magnitude := changePct
	if changePct < 0 {
		direction = DirectionDown
		magnitude = -changePct
	}

	level := e.levelFor(magnitude)
	if level == LevelNone {
		return false, false, nil
	}

	day := nowUTC.Format("2006-01-02")
	stored := LevelNone
	state, err := e.Store.GetAlertState(ctx, item.ID, direction)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, false, err
	}
	if state != nil && state.Day == day {
		stored = Level(state.Level)
	}

	if level <= stored {
		return false, true, nil
	}

	if err := e.Store.UpsertAlertState(ctx, &models.AlertState{
		ItemID:    item.ID,
		Direction: direction,
		Level:     int(level),
		Day:       day,
	}); err != nil {
		return false, false, err
	}

	alertPayload := notify.PriceAlert{
		ItemID:    item.ID,
		ItemName:  item.Name,
		OldPrice:  base.Price,
		NewPrice:  latest.Price,
		ChangePct: changePct,
		Level:     level.String(),
		Direction: direction,
	}
	payload, _ := json.Marshal(alertPayload)
	if err := e.Store.InsertAlertEvent(ctx, &models.AlertEvent{
		ItemID:    item.ID,
		Direction: direction,
		Level:     level.String(),
		Payload:   payload,
	}); err != nil && e.Logger != nil {
		// Event row is audit only; the alert still goes out.
		e.Logger.Warn("alert event insert failed", zap.Error(err))
	}

	e.Queue.Publish(notify.Event{
		Type:       notify.EventPriceAlert,
		Alert:      &alertPayload,
		OccurredAt: nowUTC,
	})
	if e.Logger != nil {
		e.Logger.Info("alert fired",
			zap.String("item", item.Name),
			zap.String("level", level.String()),
			zap.String("direction", direction),
			zap.Float64("change_pct", changePct),
		)
	}
	return true, false, nil
}

func (e *Evaluator) levelFor(magnitudePct float64) Level {
	switch {
	case magnitudePct >= e.Config.HighPct:
		return LevelHigh
	case magnitudePct >= e.Config.MediumPct:
		return LevelMedium
	case magnitudePct >= e.Config.LowPct:
		return LevelLow
	default:
		return LevelNone
	}
}
