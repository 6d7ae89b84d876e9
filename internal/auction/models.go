package auction

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusActive    = "ACTIVE"
	StatusEnded     = "ENDED"
	StatusCancelled = "CANCELLED"
)

// Auction is a time-bound English auction for one asset. Bids are
// escrowed; the highest bid at the end wins.
type Auction struct {
	gorm.Model    `json:"-"`
	AuctionID     string    `gorm:"uniqueIndex" json:"auction_id"`
	Authority     string    `json:"authority"`
	AssetKey      string    `gorm:"index" json:"asset_key"`
	Collection    string    `json:"collection"`
	TokenID       uint64    `json:"token_id"`
	AssetKind     uint8     `json:"asset_kind"`
	Quantity      uint64    `json:"quantity"`
	PaymentToken  string    `json:"payment_token"`
	MinimumPrice  int64     `json:"minimum_price"`
	CurrentPrice  int64     `json:"current_price"`
	EndTime       int64     `json:"end_time"`
	HighestBidder string    `json:"highest_bidder,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Bid is one escrowed bid against an auction.
type Bid struct {
	gorm.Model `json:"-"`
	BidID      string    `gorm:"uniqueIndex" json:"bid_id"`
	AuctionID  string    `gorm:"index" json:"auction_id"`
	Bidder     string    `json:"bidder"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

// Settlement reports how an ended auction resolved.
type Settlement struct {
	AuctionID     string    `json:"auction_id"`
	Winner        string    `json:"winner,omitempty"`
	FinalPrice    int64     `json:"final_price"`
	HouseFee      int64     `json:"house_fee"`
	SellerProceed int64     `json:"seller_proceeds"`
	Timestamp     time.Time `json:"timestamp"`
}
