package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Side is the direction of an order.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// SaleKind selects the pricing behaviour of a sell order.
type SaleKind uint8

const (
	SaleKindFixedPrice SaleKind = iota
	SaleKindDutchAuction
	SaleKindFloorFlip
)

// AssetKind is resolved once by the ownership oracle and carried on the
// order; the matching logic never re-probes the asset standard.
type AssetKind uint8

const (
	// AssetKindUnique is a single-owner, quantity-one asset.
	AssetKindUnique AssetKind = iota
	// AssetKindFractional is a quantity-bearing, semi-fungible asset.
	AssetKindFractional
)

// AssetRef identifies one asset unit within a collection.
type AssetRef struct {
	Collection common.Address `json:"collection"`
	TokenID    uint64         `json:"token_id"`
	Kind       AssetKind      `json:"kind"`
	Quantity   uint64         `json:"quantity"`
}

// Key is the stable identity used by registries keyed per asset.
func (a AssetRef) Key() string {
	return fmt.Sprintf("%s:%d", a.Collection.Hex(), a.TokenID)
}

// FeatureFlags is a capability bitmask. An order opts into optional
// behaviour by setting bits; a bit may only be set if it is enabled
// globally or for the order's maker.
type FeatureFlags uint64

const (
	FeatureInstantLiquidation FeatureFlags = 1 << iota
	FeatureMultiRoyalty
	FeatureFraudGating
	FeatureCrossChain
	FeatureReputationGating
)

// Has reports whether every bit of flag is set.
func (f FeatureFlags) Has(flag FeatureFlags) bool {
	return f&flag == flag
}

// SubsetOf reports whether all set bits of f are contained in mask.
func (f FeatureFlags) SubsetOf(mask FeatureFlags) bool {
	return f&^mask == 0
}

// Order is an off-chain signed intent to buy or sell one asset unit at a
// price. Its digest is computed once from all fields and doubles as its
// identity; any field change yields a different order.
type Order struct {
	Maker common.Address `json:"maker"`
	// Taker, when non-zero, restricts who may fill the order.
	Taker    common.Address `json:"taker"`
	Side     Side           `json:"side"`
	SaleKind SaleKind       `json:"sale_kind"`
	Asset    AssetRef       `json:"asset"`
	// PaymentToken is the fungible token the trade settles in; the zero
	// address means the native currency.
	PaymentToken common.Address `json:"payment_token"`
	// BasePrice is in the smallest payment unit.
	BasePrice int64 `json:"base_price"`
	// Extra is the total Dutch-auction decay over the listing window.
	Extra          int64  `json:"extra"`
	ListingTime    int64  `json:"listing_time"`
	ExpirationTime int64  `json:"expiration_time"`
	Salt           uint64 `json:"salt"`
	FeatureFlags   FeatureFlags `json:"feature_flags"`
	// CallData and ReplacementPattern describe the exact transfer call the
	// order authorizes. They must encode the same asset as Asset.
	CallData           hexutil.Bytes `json:"call_data"`
	ReplacementPattern hexutil.Bytes `json:"replacement_pattern"`
}

// CurrentPrice returns the order's price at time now. Fixed-price and
// floor-flip orders are flat at BasePrice; Dutch auctions decay linearly
// from BasePrice by Extra across the listing window.
func (o *Order) CurrentPrice(now int64) int64 {
	if o.SaleKind != SaleKindDutchAuction || o.Extra == 0 {
		return o.BasePrice
	}
	if now <= o.ListingTime {
		return o.BasePrice
	}
	if now >= o.ExpirationTime || o.ExpirationTime <= o.ListingTime {
		return o.BasePrice - o.Extra
	}
	elapsed := now - o.ListingTime
	window := o.ExpirationTime - o.ListingTime
	return o.BasePrice - o.Extra*elapsed/window
}

// IsNativePayment reports whether the order settles in native currency.
func (o *Order) IsNativePayment() bool {
	return o.PaymentToken == (common.Address{})
}

// SignedOrder is an order together with its maker's 65-byte r||s||v
// signature over the order digest.
type SignedOrder struct {
	Order     Order         `json:"order"`
	Signature hexutil.Bytes `json:"signature"`
}
