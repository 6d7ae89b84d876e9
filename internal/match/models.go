package match

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/seismic-labs/exchange-api/internal/fees"
)

const (
	OfferStatusOpen      = "OPEN"
	OfferStatusConsumed  = "CONSUMED"
	OfferStatusCancelled = "CANCELLED"
)

// Trade is the persisted record of a completed settlement.
type Trade struct {
	gorm.Model     `json:"-"`
	TradeID        string    `gorm:"uniqueIndex" json:"trade_id"`
	BuyDigest      string    `json:"buy_digest"`
	SellDigest     string    `json:"sell_digest"`
	Buyer          string    `json:"buyer"`
	Seller         string    `json:"seller"`
	AssetKey       string    `json:"asset_key"`
	PaymentToken   string    `json:"payment_token"`
	Price          int64     `json:"price"`
	ProtocolFee    int64     `json:"protocol_fee"`
	RoyaltyTotal   int64     `json:"royalty_total"`
	SellerProceeds int64     `json:"seller_proceeds"`
	Refund         int64     `json:"refund"`
	CreatedAt      time.Time `json:"created_at"`
}

// StandingOffer is one row of the price-ordered offer index used for
// instant liquidation. The signed buy order itself is stored alongside
// so a floor flip can replay it through the normal match path.
type StandingOffer struct {
	gorm.Model   `json:"-"`
	OfferID        string    `gorm:"uniqueIndex" json:"offer_id"`
	Digest         string    `gorm:"uniqueIndex" json:"digest"`
	AssetKey       string    `gorm:"index" json:"asset_key"`
	Maker          string    `json:"maker"`
	PaymentToken   string    `json:"payment_token"`
	Price          int64     `json:"price"`
	ExpirationTime int64     `gorm:"index" json:"expiration_time"`
	FeatureFlags   uint64    `json:"feature_flags"`
	OrderJSON      string    `json:"-"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PaymentLeg is one executed payment during settlement.
type PaymentLeg struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Token  common.Address `json:"token"`
	Amount int64          `json:"amount"`
}

// SettlementResult reports a completed match to the caller: both order
// digests, the parties, the settled price and every payment leg.
type SettlementResult struct {
	TradeID        string         `json:"trade_id"`
	BuyDigest      common.Hash    `json:"buy_digest"`
	SellDigest     common.Hash    `json:"sell_digest"`
	Buyer          common.Address `json:"buyer"`
	Seller         common.Address `json:"seller"`
	Price          int64          `json:"price"`
	ProtocolFee    int64          `json:"protocol_fee"`
	RoyaltyTotal   int64          `json:"royalty_total"`
	Royalties      []fees.Payout  `json:"royalties,omitempty"`
	SellerProceeds int64          `json:"seller_proceeds"`
	Refund         int64          `json:"refund"`
	Legs           []PaymentLeg   `json:"legs"`
	Timestamp      time.Time      `json:"timestamp"`
}
