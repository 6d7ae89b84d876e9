package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismic-labs/exchange-api/internal/ledger"
	"github.com/seismic-labs/exchange-api/internal/types"
)

func standingOffer(maker actor, asset types.AssetRef, price int64) types.Order {
	now := time.Now().Unix()
	return types.Order{
		Maker:          maker.address,
		Side:           types.SideBuy,
		SaleKind:       types.SaleKindFixedPrice,
		Asset:          asset,
		BasePrice:      price,
		ListingTime:    now - 60,
		ExpirationTime: now + 3600,
		Salt:           uint64(time.Now().UnixNano()),
		FeatureFlags:   types.FeatureInstantLiquidation,
	}
}

func floorFlipSell(maker actor, asset types.AssetRef, floor int64) types.Order {
	order := standingOffer(maker, asset, floor)
	order.Side = types.SideSell
	order.SaleKind = types.SaleKindFloorFlip
	return order
}

func TestPlaceOffer(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	bidder := newActor(t)
	asset := types.AssetRef{Collection: collection, TokenID: 1, Kind: types.AssetKindUnique, Quantity: 1}

	offer := h.sign(bidder, standingOffer(bidder, asset, 70))
	row, err := h.engine.PlaceOffer(offer)
	require.NoError(t, err)

	assert.NotEmpty(t, row.OfferID)
	assert.Equal(t, OfferStatusOpen, row.Status)
	assert.Equal(t, int64(70), row.Price)
	assert.Equal(t, asset.Key(), row.AssetKey)
}

func TestPlaceOfferRequiresBuySide(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	bidder := newActor(t)
	asset := h.mintUnique(2, bidder.address)

	order := standingOffer(bidder, asset, 70)
	order.Side = types.SideSell
	_, err := h.engine.PlaceOffer(h.sign(bidder, order))
	assertCode(t, err, CodeOrdersIncompatible)
}

func TestPlaceOfferRequiresInstantLiquidation(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	bidder := newActor(t)
	asset := types.AssetRef{Collection: collection, TokenID: 3}

	order := standingOffer(bidder, asset, 70)
	order.FeatureFlags = 0
	_, err := h.engine.PlaceOffer(h.sign(bidder, order))
	assertCode(t, err, CodeFeatureDisabled)
}

func TestExecuteFloorFlipPicksBestOffer(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	seller := newActor(t)
	low := newActor(t)
	high := newActor(t)
	mid := newActor(t)

	asset := h.mintUnique(4, seller.address)
	for _, bidder := range []actor{low, high, mid} {
		h.fund(native, bidder.address, 1000)
	}

	_, err := h.engine.PlaceOffer(h.sign(low, standingOffer(low, asset, 70)))
	require.NoError(t, err)
	best, err := h.engine.PlaceOffer(h.sign(high, standingOffer(high, asset, 75)))
	require.NoError(t, err)
	_, err = h.engine.PlaceOffer(h.sign(mid, standingOffer(mid, asset, 72)))
	require.NoError(t, err)

	result, err := h.engine.ExecuteFloorFlip(h.sign(seller, floorFlipSell(seller, asset, 50)))
	require.NoError(t, err)

	// The flip settles at the best standing bid, not at the floor.
	assert.Equal(t, int64(75), result.Price)
	assert.Equal(t, high.address, result.Buyer)
	assert.True(t, h.owner(asset, high.address))

	var row StandingOffer
	require.NoError(t, h.db.Where("offer_id = ?", best.OfferID).First(&row).Error)
	assert.Equal(t, OfferStatusConsumed, row.Status)
}

func TestExecuteFloorFlipHonoursFloor(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	seller := newActor(t)
	bidder := newActor(t)

	asset := h.mintUnique(5, seller.address)
	h.fund(native, bidder.address, 1000)

	_, err := h.engine.PlaceOffer(h.sign(bidder, standingOffer(bidder, asset, 70)))
	require.NoError(t, err)

	_, err = h.engine.ExecuteFloorFlip(h.sign(seller, floorFlipSell(seller, asset, 71)))
	assertCode(t, err, CodeNoMatchingOffer)
	assert.True(t, h.owner(asset, seller.address))
}

func TestExecuteFloorFlipNoOffers(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	seller := newActor(t)
	asset := h.mintUnique(6, seller.address)

	_, err := h.engine.ExecuteFloorFlip(h.sign(seller, floorFlipSell(seller, asset, 50)))
	assertCode(t, err, CodeNoMatchingOffer)
}

func TestExecuteFloorFlipRequiresFloorFlipKind(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	seller := newActor(t)
	asset := h.mintUnique(7, seller.address)

	order := floorFlipSell(seller, asset, 50)
	order.SaleKind = types.SaleKindFixedPrice
	_, err := h.engine.ExecuteFloorFlip(h.sign(seller, order))
	assertCode(t, err, CodeOrdersIncompatible)
}

func TestExecuteFloorFlipSettlesAtomically(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	seller := newActor(t)
	bidder := newActor(t)

	asset := h.mintUnique(8, seller.address)
	h.fund(native, bidder.address, 1000)

	_, err := h.engine.PlaceOffer(h.sign(bidder, standingOffer(bidder, asset, 100)))
	require.NoError(t, err)

	result, err := h.engine.ExecuteFloorFlip(h.sign(seller, floorFlipSell(seller, asset, 90)))
	require.NoError(t, err)

	// 100 settles as 2 fee, 5 royalty, 93 proceeds; escrow drains fully.
	assert.Equal(t, int64(2), result.ProtocolFee)
	assert.Equal(t, int64(5), result.RoyaltyTotal)
	assert.Equal(t, int64(93), h.balance(native, seller.address))
	assert.Equal(t, int64(900), h.balance(native, bidder.address))
	assert.Equal(t, int64(0), h.balance(native, ledger.EscrowAccount))
}

func TestExecuteFloorFlipReplayLeavesOtherOffersOpen(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	seller := newActor(t)
	first := newActor(t)
	second := newActor(t)

	asset := h.mintUnique(10, seller.address)
	h.fund(native, first.address, 1000)
	h.fund(native, second.address, 1000)

	_, err := h.engine.PlaceOffer(h.sign(first, standingOffer(first, asset, 100)))
	require.NoError(t, err)
	remaining, err := h.engine.PlaceOffer(h.sign(second, standingOffer(second, asset, 80)))
	require.NoError(t, err)

	flip := h.sign(seller, floorFlipSell(seller, asset, 50))
	result, err := h.engine.ExecuteFloorFlip(flip)
	require.NoError(t, err)
	require.Equal(t, int64(100), result.Price)

	// Replaying the consumed sell fails on the sell order and must not
	// retire the second bidder's untraded offer.
	_, err = h.engine.ExecuteFloorFlip(flip)
	assertCode(t, err, CodeOrderAlreadyConsumed)

	var row StandingOffer
	require.NoError(t, h.db.Where("offer_id = ?", remaining.OfferID).First(&row).Error)
	assert.Equal(t, OfferStatusOpen, row.Status)
}

func TestExecuteFloorFlipRetiresStaleOffer(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	seller := newActor(t)
	first := newActor(t)
	second := newActor(t)

	asset := h.mintUnique(11, seller.address)
	h.fund(native, first.address, 1000)
	h.fund(native, second.address, 1000)

	staleOrder := standingOffer(first, asset, 100)
	stale, err := h.engine.PlaceOffer(h.sign(first, staleOrder))
	require.NoError(t, err)
	_, err = h.engine.PlaceOffer(h.sign(second, standingOffer(second, asset, 80)))
	require.NoError(t, err)

	// The stored buy order goes terminal behind the index's back.
	_, err = h.engine.CancelOrder(&staleOrder, first.address)
	require.NoError(t, err)

	result, err := h.engine.ExecuteFloorFlip(h.sign(seller, floorFlipSell(seller, asset, 50)))
	require.NoError(t, err)

	// The stale row is retired and the next live offer settles.
	assert.Equal(t, int64(80), result.Price)
	assert.Equal(t, second.address, result.Buyer)

	var row StandingOffer
	require.NoError(t, h.db.Where("offer_id = ?", stale.OfferID).First(&row).Error)
	assert.Equal(t, OfferStatusConsumed, row.Status)
}

func TestExecuteFloorFlipSkipsExpiredOffer(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	seller := newActor(t)
	lapsed := newActor(t)
	live := newActor(t)

	asset := h.mintUnique(12, seller.address)
	h.fund(native, live.address, 1000)

	high, err := h.engine.PlaceOffer(h.sign(lapsed, standingOffer(lapsed, asset, 90)))
	require.NoError(t, err)
	_, err = h.engine.PlaceOffer(h.sign(live, standingOffer(live, asset, 80)))
	require.NoError(t, err)

	require.NoError(t, h.db.Model(&StandingOffer{}).
		Where("offer_id = ?", high.OfferID).
		Update("expiration_time", time.Now().Unix()-10).Error)

	// An expired high bid cannot shadow the live lower one.
	result, err := h.engine.ExecuteFloorFlip(h.sign(seller, floorFlipSell(seller, asset, 75)))
	require.NoError(t, err)
	assert.Equal(t, int64(80), result.Price)
	assert.Equal(t, live.address, result.Buyer)
}

func TestMarkOfferSurfacesIndexFailure(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	bidder := newActor(t)
	asset := types.AssetRef{Collection: collection, TokenID: 13, Kind: types.AssetKindUnique, Quantity: 1}

	row, err := h.engine.PlaceOffer(h.sign(bidder, standingOffer(bidder, asset, 70)))
	require.NoError(t, err)

	require.NoError(t, h.db.Migrator().DropTable(&StandingOffer{}))

	err = h.engine.markOffer(row, OfferStatusConsumed)
	assertCode(t, err, CodeInternal)
}

func TestCancelOffer(t *testing.T) {
	h := newHarness(t, types.FeatureInstantLiquidation)
	seller := newActor(t)
	bidder := newActor(t)

	asset := h.mintUnique(9, seller.address)
	h.fund(native, bidder.address, 1000)

	row, err := h.engine.PlaceOffer(h.sign(bidder, standingOffer(bidder, asset, 70)))
	require.NoError(t, err)

	err = h.engine.CancelOffer(row.OfferID, seller.address)
	assertCode(t, err, CodeNotMaker)

	require.NoError(t, h.engine.CancelOffer(row.OfferID, bidder.address))

	var stored StandingOffer
	require.NoError(t, h.db.Where("offer_id = ?", row.OfferID).First(&stored).Error)
	assert.Equal(t, OfferStatusCancelled, stored.Status)

	// The cancelled offer is invisible to later flips.
	_, err = h.engine.ExecuteFloorFlip(h.sign(seller, floorFlipSell(seller, asset, 50)))
	assertCode(t, err, CodeNoMatchingOffer)
}
