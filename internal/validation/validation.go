// Package validation holds the stateless order rule checks: parameter
// validation for a single order and the matching predicate for a
// buy/sell pair. Nothing here mutates state.
package validation

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seismic-labs/exchange-api/internal/types"
)

var (
	ErrExpired         = errors.New("order has expired")
	ErrNotYetListed    = errors.New("order is not yet listed")
	ErrZeroSalt        = errors.New("order salt must be non-zero")
	ErrFeatureDisabled = errors.New("order declares a feature flag that is not enabled")

	ErrSidesInvalid        = errors.New("orders must be one buy and one sell")
	ErrAssetMismatch       = errors.New("orders reference different assets")
	ErrPaymentMismatch     = errors.New("orders use different payment tokens")
	ErrPriceCross          = errors.New("buy price does not cover sell price")
	ErrFeatureAsymmetry    = errors.New("buy and sell feature flags differ")
	ErrCounterpartyInvalid = errors.New("order restricts its counterparty to someone else")
)

// FeatureSource yields the effective enabled-capability mask for an
// identity (global mask OR'd with the identity's override). Satisfied by
// the feature gate.
type FeatureSource interface {
	MaskFor(identity common.Address) (types.FeatureFlags, error)
}

type Validator struct {
	features FeatureSource
}

func NewValidator(features FeatureSource) *Validator {
	return &Validator{features: features}
}

// ValidateParameters checks the order's timing window, salt, and that
// any declared feature flags are enabled for its maker.
func (v *Validator) ValidateParameters(order *types.Order, now int64) error {
	if order.Salt == 0 {
		return ErrZeroSalt
	}
	if order.ListingTime > now {
		return fmt.Errorf("%w: listing time %d is after %d", ErrNotYetListed, order.ListingTime, now)
	}
	if order.ExpirationTime <= now {
		return fmt.Errorf("%w: expiration time %d is not after %d", ErrExpired, order.ExpirationTime, now)
	}

	if order.FeatureFlags != 0 {
		mask, err := v.features.MaskFor(order.Maker)
		if err != nil {
			return fmt.Errorf("failed to resolve feature mask: %w", err)
		}
		if !order.FeatureFlags.SubsetOf(mask) {
			return fmt.Errorf("%w: declared %#x, enabled %#x", ErrFeatureDisabled, order.FeatureFlags, mask)
		}
	}

	return nil
}

// OrdersCanMatch is the matching predicate: one buy and one sell on the
// same asset and payment token, buyer's ceiling covering the seller's
// current price, identical feature flags, and any counterparty
// restriction satisfied. Flag symmetry is deliberately literal equality;
// a subset rule would let one side opt the other into gated behaviour.
func (v *Validator) OrdersCanMatch(buy, sell *types.Order, now int64) error {
	if buy.Side != types.SideBuy || sell.Side != types.SideSell {
		return ErrSidesInvalid
	}
	if buy.Asset.Collection != sell.Asset.Collection || buy.Asset.TokenID != sell.Asset.TokenID {
		return ErrAssetMismatch
	}
	if buy.PaymentToken != sell.PaymentToken {
		return ErrPaymentMismatch
	}
	if price := sell.CurrentPrice(now); buy.BasePrice < price {
		return fmt.Errorf("%w: buy ceiling %d, sell price %d", ErrPriceCross, buy.BasePrice, price)
	}
	if buy.FeatureFlags != sell.FeatureFlags {
		return fmt.Errorf("%w: buy %#x, sell %#x", ErrFeatureAsymmetry, buy.FeatureFlags, sell.FeatureFlags)
	}
	if buy.Taker != (common.Address{}) && buy.Taker != sell.Maker {
		return fmt.Errorf("%w: buy order is reserved for %s", ErrCounterpartyInvalid, buy.Taker.Hex())
	}
	if sell.Taker != (common.Address{}) && sell.Taker != buy.Maker {
		return fmt.Errorf("%w: sell order is reserved for %s", ErrCounterpartyInvalid, sell.Taker.Hex())
	}
	return nil
}
