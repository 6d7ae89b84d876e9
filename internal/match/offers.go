package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/seismic-labs/exchange-api/internal/types"
)

// PlaceOffer adds a signed buy order to the standing-offer index so it
// can be filled later by a floor flip. The order must opt into instant
// liquidation and pass the usual parameter and signature checks.
func (e *Engine) PlaceOffer(offer types.SignedOrder) (*StandingOffer, error) {
	now := time.Now().Unix()
	order := &offer.Order

	if order.Side != types.SideBuy {
		return nil, newError(CodeOrdersIncompatible, "buy",
			fmt.Errorf("standing offers must be buy orders"))
	}
	if !order.FeatureFlags.Has(types.FeatureInstantLiquidation) {
		return nil, newError(CodeFeatureDisabled, "buy",
			fmt.Errorf("standing offers require the instant-liquidation feature"))
	}
	if err := e.c.Validator.ValidateParameters(order, now); err != nil {
		return nil, parameterError("buy", err)
	}

	digest := e.c.Codec.Digest(order)
	if err := e.c.Verifier.Verify(order, digest, offer.Signature); err != nil {
		return nil, verifyError("buy", err)
	}

	encoded, err := json.Marshal(offer)
	if err != nil {
		return nil, newError(CodeInternal, "buy", err)
	}

	row := &StandingOffer{
		OfferID:        "OFR_" + uuid.New().String(),
		Digest:         digest.Hex(),
		AssetKey:       order.Asset.Key(),
		Maker:          order.Maker.Hex(),
		PaymentToken:   order.PaymentToken.Hex(),
		Price:          order.BasePrice,
		ExpirationTime: order.ExpirationTime,
		FeatureFlags:   uint64(order.FeatureFlags),
		OrderJSON:      string(encoded),
		Status:         OfferStatusOpen,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := e.db.Create(row).Error; err != nil {
		return nil, newError(CodeInternal, "buy", err)
	}

	log.Info().
		Str("service", "match").
		Str("offer_id", row.OfferID).
		Str("asset", row.AssetKey).
		Int64("price", row.Price).
		Msg("standing offer placed")
	return row, nil
}

// bestOffer returns the highest-priced live open offer for the asset at
// or above floor, in the same payment token and with the same feature
// flags. Expired offers never surface, so a lapsed high bid cannot
// shadow a live lower one. Ties break towards the oldest offer.
func (e *Engine) bestOffer(sell *types.Order, floor, now int64) (*StandingOffer, error) {
	var row StandingOffer
	err := e.db.
		Where("asset_key = ? AND status = ? AND payment_token = ? AND feature_flags = ? AND price >= ? AND expiration_time > ?",
			sell.Asset.Key(), OfferStatusOpen, sell.PaymentToken.Hex(), uint64(sell.FeatureFlags), floor, now).
		Order("price DESC, created_at ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ExecuteFloorFlip instantly liquidates a signed sell order against the
// best standing offer at or above the seller's floor. The stored buy
// order replays through the normal atomic match path, so every check
// and the full settlement atomicity apply unchanged.
func (e *Engine) ExecuteFloorFlip(sell types.SignedOrder) (*SettlementResult, error) {
	if sell.Order.SaleKind != types.SaleKindFloorFlip {
		return nil, newError(CodeOrdersIncompatible, "sell",
			fmt.Errorf("floor flip requires a floor-flip sell order"))
	}
	if !sell.Order.FeatureFlags.Has(types.FeatureInstantLiquidation) {
		return nil, newError(CodeFeatureDisabled, "sell",
			fmt.Errorf("floor flip requires the instant-liquidation feature"))
	}

	now := time.Now().Unix()
	for {
		row, err := e.bestOffer(&sell.Order, sell.Order.BasePrice, now)
		if err != nil {
			return nil, newError(CodeInternal, "", err)
		}
		if row == nil {
			return nil, newError(CodeNoMatchingOffer, "",
				fmt.Errorf("no open offer for %s at or above %d", sell.Order.Asset.Key(), sell.Order.BasePrice))
		}

		var buy types.SignedOrder
		if err := json.Unmarshal([]byte(row.OrderJSON), &buy); err != nil {
			return nil, newError(CodeInternal, "", fmt.Errorf("corrupt stored offer %s: %w", row.OfferID, err))
		}

		// A floor-flip sell settles at the offer's price; its own BasePrice
		// is only the floor. Token offers draw from the buyer's balance,
		// native offers draw the price into escrow.
		result, err := e.AtomicMatch(buy, sell, buy.Order.BasePrice)
		if err != nil {
			// Only a stale index row, whose stored buy order is already
			// terminal, gets retired here. A consumed sell order or any
			// settlement failure must leave the offer open for the next
			// flip.
			var matchErr *Error
			if errors.As(err, &matchErr) && matchErr.Code == CodeOrderAlreadyConsumed && matchErr.Side == "buy" {
				if markErr := e.markOffer(row, OfferStatusConsumed); markErr != nil {
					return nil, markErr
				}
				continue
			}
			return nil, err
		}

		if markErr := e.markOffer(row, OfferStatusConsumed); markErr != nil {
			// The settlement already committed; the caller gets the result
			// together with the index failure.
			return result, markErr
		}
		return result, nil
	}
}

// CancelOffer cancels the standing offer's underlying order and retires
// its index row.
func (e *Engine) CancelOffer(offerID string, requester common.Address) error {
	var row StandingOffer
	if err := e.db.Where("offer_id = ?", offerID).First(&row).Error; err != nil {
		return err
	}

	var buy types.SignedOrder
	if err := json.Unmarshal([]byte(row.OrderJSON), &buy); err != nil {
		return newError(CodeInternal, "", fmt.Errorf("corrupt stored offer %s: %w", row.OfferID, err))
	}

	if _, err := e.CancelOrder(&buy.Order, requester); err != nil {
		return err
	}
	return e.markOffer(&row, OfferStatusCancelled)
}

// markOffer retires an index row. The registry already holds the
// authoritative order state, so a failure here means the index is stale
// and the caller must surface it.
func (e *Engine) markOffer(row *StandingOffer, status string) error {
	row.Status = status
	row.UpdatedAt = time.Now()
	if err := e.db.Save(row).Error; err != nil {
		return newError(CodeInternal, "",
			fmt.Errorf("updating offer %s to %s: %w", row.OfferID, status, err))
	}
	return nil
}
