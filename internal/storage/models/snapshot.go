// internal/storage/models/snapshot.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// APRSnapshot is the state of one vault at the moment of a report.
type APRSnapshot struct {
	BaseModel
	Contract string              `gorm:"index:idx_apr_vault,priority:1;not null;type:varchar(64)"`
	VaultID  int64               `gorm:"index:idx_apr_vault,priority:2;not null"`
	Name     string              `gorm:"type:varchar(100)"`
	APR      decimal.NullDecimal `gorm:"type:numeric(20,2)"`
	Fill     decimal.NullDecimal `gorm:"type:numeric(10,2)"`
	Filled   string              `gorm:"type:varchar(80)"`
	Capacity string              `gorm:"type:varchar(80)"`
	Status   string              `gorm:"not null;type:varchar(20)"`
	TakenAt  time.Time           `gorm:"index:idx_apr_vault,priority:3;not null"`
}

// PriceSnapshot is one row of the price table at the moment of a fetch.
type PriceSnapshot struct {
	BaseModel
	Contract string          `gorm:"index:idx_price_token,priority:1;not null;type:varchar(64)"`
	Symbol   string          `gorm:"type:varchar(32)"`
	Price    decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	TakenAt  time.Time       `gorm:"index:idx_price_token,priority:2;not null"`
}
