package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EventType string

const (
	EventPriceAlert   EventType = "price_alert"
	EventDailySummary EventType = "daily_summary"
)

// PriceAlert describes one severity escalation for an item.
type PriceAlert struct {
	ItemID    string          `json:"item_id"`
	ItemName  string          `json:"item_name"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangePct float64         `json:"change_pct"`
	Level     string          `json:"level"`
	Direction string          `json:"direction"`
}

// MarketSummary is the once-a-day market digest.
type MarketSummary struct {
	TotalItems   int64      `json:"total_items"`
	AveragePrice float64    `json:"average_price"`
	Gainers      int        `json:"gainers"`
	Losers       int        `json:"losers"`
	Sentiment    string     `json:"sentiment"`
	LastUpdate   *time.Time `json:"last_update,omitempty"`
}

type Event struct {
	Type       EventType      `json:"type"`
	Alert      *PriceAlert    `json:"alert,omitempty"`
	Summary    *MarketSummary `json:"summary,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier is the delivery collaborator (console, messenger bot, webhook).
// Formatting and transport live outside this module.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Queue decouples the core from delivery: producers enqueue and move on,
// a background consumer drains. A delivery failure is logged and dropped,
// never propagated back into ingestion or alert-state transitions.
type Queue struct {
	ch       chan Event
	notifier Notifier
	logger   *zap.Logger
}

func NewQueue(size int, notifier Notifier, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		ch:       make(chan Event, size),
		notifier: notifier,
		logger:   logger,
	}
}

// Publish enqueues without blocking. When the queue is full the event is
// dropped and counted against us in the log; alert state has already moved
// on, which is the documented at-least-once-within-a-day trade-off.
func (q *Queue) Publish(event Event) bool {
	if q == nil {
		return false
	}
	select {
	case q.ch <- event:
		return true
	default:
		if q.logger != nil {
			q.logger.Warn("notify queue full, event dropped",
				zap.String("type", string(event.Type)),
			)
		}
		return false
	}
}

// Run consumes until ctx is canceled, then drains what is already queued.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case event := <-q.ch:
			q.deliver(ctx, event)
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case event := <-q.ch:
			q.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, event Event) {
	if q.notifier == nil {
		return
	}
	if err := q.notifier.Notify(ctx, event); err != nil && q.logger != nil {
		q.logger.Warn("notification delivery failed",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// LogNotifier is the default delivery target when no external notifier is
// configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Logger == nil {
		return nil
	}
	switch event.Type {
	case EventPriceAlert:
		a := event.Alert
		if a == nil {
			return nil
		}
		n.Logger.Info("price alert",
			zap.String("item", a.ItemName),
			zap.String("level", a.Level),
			zap.String("direction", a.Direction),
			zap.Float64("change_pct", a.ChangePct),
			zap.String("old_price", a.OldPrice.StringFixed(2)),
			zap.String("new_price", a.NewPrice.StringFixed(2)),
		)
	case EventDailySummary:
		s := event.Summary
		if s == nil {
			return nil
		}
		n.Logger.Info("daily market summary",
			zap.Int64("total_items", s.TotalItems),
			zap.Float64("average_price", s.AveragePrice),
			zap.Int("gainers", s.Gainers),
			zap.Int("losers", s.Losers),
			zap.String("sentiment", s.Sentiment),
		)
	}
	return nil
}
