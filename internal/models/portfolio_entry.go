package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioEntry is one held position: quantity bought at a purchase price.
// Total investment is always derived as quantity * purchase price, never
// stored.
type PortfolioEntry struct {
	ID            string          `gorm:"primaryKey;type:text"`
	OwnerID       string          `gorm:"type:varchar(255);not null;index"`
	ItemID        string          `gorm:"type:text;not null;index"`
	Item          *Item           `gorm:"foreignKey:ItemID"`
	Quantity      decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	PurchasePrice decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	PurchaseDate  time.Time       `gorm:"type:timestamptz;not null;index"`
	Notes         *string         `gorm:"type:varchar(500)"`
	CreatedAt     time.Time       `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PortfolioEntry) TableName() string {
	return "portfolio_entries"
}
