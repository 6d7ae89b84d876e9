package fees

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

// SmartRoyalty overrides the default single-recipient royalty for one
// asset. Recipients are stored as a JSON array in creation order.
type SmartRoyalty struct {
	gorm.Model `json:"-"`
	AssetKey   string    `gorm:"uniqueIndex" json:"asset_key"`
	Recipients string    `json:"recipients"`
	TotalBps   int64     `json:"total_bps"`
	SetBy      string    `json:"set_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RoyaltyShare is one recipient's cut in basis points.
type RoyaltyShare struct {
	Recipient common.Address `json:"recipient"`
	Bps       int64          `json:"bps"`
}

// Payout is a computed royalty leg.
type Payout struct {
	Recipient common.Address `json:"recipient"`
	Amount    int64          `json:"amount"`
}
