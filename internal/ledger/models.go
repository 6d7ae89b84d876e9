package ledger

import (
	"time"

	"gorm.io/gorm"
)

// Holding is one owner's position in one asset. Unique assets have a
// single row with quantity one; fractional assets may have many rows.
type Holding struct {
	gorm.Model `json:"-"`
	AssetKey   string `gorm:"index:idx_holding,unique" json:"asset_key"`
	Owner      string `gorm:"index:idx_holding,unique" json:"owner"`
	Collection string `json:"collection"`
	TokenID    uint64 `json:"token_id"`
	Kind       uint8  `json:"kind"`
	Quantity   uint64 `json:"quantity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Approval lets an operator move an asset on the owner's behalf.
type Approval struct {
	gorm.Model `json:"-"`
	AssetKey   string    `gorm:"index:idx_approval,unique" json:"asset_key"`
	Owner      string    `gorm:"index:idx_approval,unique" json:"owner"`
	Operator   string    `gorm:"index:idx_approval,unique" json:"operator"`
	CreatedAt  time.Time `json:"created_at"`
}

// Balance is one account's balance in one payment token. The zero
// address token is the native currency.
type Balance struct {
	gorm.Model `json:"-"`
	Token      string    `gorm:"index:idx_balance,unique" json:"token"`
	Account    string    `gorm:"index:idx_balance,unique" json:"account"`
	Amount     int64     `json:"amount"`
	UpdatedAt  time.Time `json:"updated_at"`
}
