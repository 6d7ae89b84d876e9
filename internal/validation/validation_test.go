package validation

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/seismic-labs/exchange-api/internal/types"
)

type stubFeatures struct {
	mask types.FeatureFlags
}

func (s stubFeatures) MaskFor(common.Address) (types.FeatureFlags, error) {
	return s.mask, nil
}

const now = int64(1_700_000_000)

func liveOrder() types.Order {
	return types.Order{
		Maker:          common.HexToAddress("0x11"),
		Side:           types.SideSell,
		Asset:          types.AssetRef{Collection: common.HexToAddress("0x22"), TokenID: 1},
		BasePrice:      100,
		ListingTime:    now - 100,
		ExpirationTime: now + 100,
		Salt:           1,
	}
}

func TestValidateParameters(t *testing.T) {
	v := NewValidator(stubFeatures{})

	order := liveOrder()
	assert.NoError(t, v.ValidateParameters(&order, now))
}

func TestValidateParametersZeroSalt(t *testing.T) {
	v := NewValidator(stubFeatures{})

	order := liveOrder()
	order.Salt = 0
	assert.ErrorIs(t, v.ValidateParameters(&order, now), ErrZeroSalt)
}

func TestValidateParametersTiming(t *testing.T) {
	v := NewValidator(stubFeatures{})

	notListed := liveOrder()
	notListed.ListingTime = now + 1
	assert.ErrorIs(t, v.ValidateParameters(&notListed, now), ErrNotYetListed)

	expired := liveOrder()
	expired.ExpirationTime = now
	assert.ErrorIs(t, v.ValidateParameters(&expired, now), ErrExpired,
		"expiration exactly at now is expired")
}

func TestValidateParametersFeatureGate(t *testing.T) {
	order := liveOrder()
	order.FeatureFlags = types.FeatureInstantLiquidation | types.FeatureFraudGating

	disabled := NewValidator(stubFeatures{mask: types.FeatureInstantLiquidation})
	assert.ErrorIs(t, disabled.ValidateParameters(&order, now), ErrFeatureDisabled)

	enabled := NewValidator(stubFeatures{mask: order.FeatureFlags | types.FeatureMultiRoyalty})
	assert.NoError(t, enabled.ValidateParameters(&order, now))
}

func matchedPair() (types.Order, types.Order) {
	sell := liveOrder()
	buy := sell
	buy.Maker = common.HexToAddress("0x33")
	buy.Side = types.SideBuy
	buy.BasePrice = 100
	return buy, sell
}

func TestOrdersCanMatch(t *testing.T) {
	v := NewValidator(stubFeatures{})
	buy, sell := matchedPair()
	assert.NoError(t, v.OrdersCanMatch(&buy, &sell, now))
}

func TestOrdersCanMatchSides(t *testing.T) {
	v := NewValidator(stubFeatures{})
	buy, sell := matchedPair()

	assert.ErrorIs(t, v.OrdersCanMatch(&sell, &buy, now), ErrSidesInvalid)
	assert.ErrorIs(t, v.OrdersCanMatch(&buy, &buy, now), ErrSidesInvalid)
}

func TestOrdersCanMatchAsset(t *testing.T) {
	v := NewValidator(stubFeatures{})
	buy, sell := matchedPair()
	buy.Asset.TokenID = 2

	assert.ErrorIs(t, v.OrdersCanMatch(&buy, &sell, now), ErrAssetMismatch)
}

func TestOrdersCanMatchPaymentToken(t *testing.T) {
	v := NewValidator(stubFeatures{})
	buy, sell := matchedPair()
	buy.PaymentToken = common.HexToAddress("0x44")

	assert.ErrorIs(t, v.OrdersCanMatch(&buy, &sell, now), ErrPaymentMismatch)
}

func TestOrdersCanMatchPriceCross(t *testing.T) {
	v := NewValidator(stubFeatures{})
	buy, sell := matchedPair()
	buy.BasePrice = 99

	assert.ErrorIs(t, v.OrdersCanMatch(&buy, &sell, now), ErrPriceCross)
}

func TestOrdersCanMatchDutchPrice(t *testing.T) {
	v := NewValidator(stubFeatures{})
	buy, sell := matchedPair()

	// Sell decays from 100 by 40 over the window; halfway in, the price
	// is 80 and a buy ceiling of 80 clears.
	sell.SaleKind = types.SaleKindDutchAuction
	sell.Extra = 40
	sell.ListingTime = now - 100
	sell.ExpirationTime = now + 100
	buy.BasePrice = 80

	assert.NoError(t, v.OrdersCanMatch(&buy, &sell, now))

	buy.BasePrice = 79
	assert.ErrorIs(t, v.OrdersCanMatch(&buy, &sell, now), ErrPriceCross)
}

func TestOrdersCanMatchFlagSymmetry(t *testing.T) {
	v := NewValidator(stubFeatures{})
	buy, sell := matchedPair()
	sell.FeatureFlags = types.FeatureFraudGating

	assert.ErrorIs(t, v.OrdersCanMatch(&buy, &sell, now), ErrFeatureAsymmetry)

	// A superset on one side is still asymmetric.
	buy.FeatureFlags = types.FeatureFraudGating | types.FeatureReputationGating
	assert.ErrorIs(t, v.OrdersCanMatch(&buy, &sell, now), ErrFeatureAsymmetry)

	buy.FeatureFlags = types.FeatureFraudGating
	assert.NoError(t, v.OrdersCanMatch(&buy, &sell, now))
}

func TestOrdersCanMatchCounterparty(t *testing.T) {
	v := NewValidator(stubFeatures{})
	buy, sell := matchedPair()

	sell.Taker = common.HexToAddress("0x99")
	assert.ErrorIs(t, v.OrdersCanMatch(&buy, &sell, now), ErrCounterpartyInvalid)

	sell.Taker = buy.Maker
	assert.NoError(t, v.OrdersCanMatch(&buy, &sell, now))

	buy.Taker = common.HexToAddress("0x99")
	assert.ErrorIs(t, v.OrdersCanMatch(&buy, &sell, now), ErrCounterpartyInvalid)

	buy.Taker = sell.Maker
	assert.NoError(t, v.OrdersCanMatch(&buy, &sell, now))
}
