package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PortfolioStatistics struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement"`
	OwnerID          string          `gorm:"type:varchar(255);not null;uniqueIndex"`
	TotalInvestment  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	CurrentValue     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	TotalProfit      decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	ProfitPercentage decimal.Decimal `gorm:"type:numeric(8,2);not null;default:0"`
	TotalQuantity    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	LastUpdated      time.Time       `gorm:"type:timestamptz;not null"`
}

func (PortfolioStatistics) TableName() string {
	return "portfolio_statistics"
}
