// Package match is the order-matching and settlement orchestrator. Its
// one externally-triggered hot-path operation is AtomicMatch, which
// validates a signed buy/sell pair and settles it as an indivisible
// unit: both orders finalized, the asset moved and every payment leg
// executed inside a single database transaction, or nothing at all.
package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/seismic-labs/exchange-api/internal/codec"
	"github.com/seismic-labs/exchange-api/internal/fees"
	"github.com/seismic-labs/exchange-api/internal/ledger"
	"github.com/seismic-labs/exchange-api/internal/registry"
	"github.com/seismic-labs/exchange-api/internal/reputation"
	"github.com/seismic-labs/exchange-api/internal/signature"
	"github.com/seismic-labs/exchange-api/internal/types"
	"github.com/seismic-labs/exchange-api/internal/validation"
)

// AssetTransferExecutor performs the actual asset ownership change.
type AssetTransferExecutor interface {
	TransferAssetTx(tx *gorm.DB, from, to common.Address, asset types.AssetRef) error
}

// PaymentExecutor performs a single payment leg.
type PaymentExecutor interface {
	PayTx(tx *gorm.DB, from, to, token common.Address, amount int64) error
}

// FraudRadar reports whether an asset carries an active fraud flag.
type FraudRadar interface {
	IsFlagged(asset types.AssetRef) (bool, error)
}

// Config is the injected engine configuration; administrative knobs
// live here rather than in ambient global state.
type Config struct {
	// ReputationThreshold is the number of fraud reports above which a
	// reputation-gated maker is rejected.
	ReputationThreshold int64
}

// DefaultConfig matches the protocol defaults.
func DefaultConfig() Config {
	return Config{ReputationThreshold: 5}
}

// Collaborators bundles the engine's dependencies.
type Collaborators struct {
	Codec      *codec.Codec
	Verifier   *signature.Verifier
	Validator  *validation.Validator
	Registry   *registry.Service
	Fees       *fees.Engine
	Reputation *reputation.Service
	Assets     AssetTransferExecutor
	Payments   PaymentExecutor
	Radar      FraudRadar
}

// Engine composes the codec, verifier, validator, registry and fee
// engine into the atomic match state machine.
type Engine struct {
	db  *gorm.DB
	c   Collaborators
	cfg Config

	// mu guards the registry's check-then-commit critical section: two
	// concurrent attempts referencing the same digest must not both
	// observe it as non-terminal.
	mu sync.Mutex
}

func NewEngine(gormDB *gorm.DB, collaborators Collaborators, cfg Config) *Engine {
	if cfg.ReputationThreshold == 0 {
		cfg.ReputationThreshold = DefaultConfig().ReputationThreshold
	}
	return &Engine{
		db:  gormDB,
		c:   collaborators,
		cfg: cfg,
	}
}

// HashOrder exposes the canonical digest so external signers can compute
// the payload to sign off-chain.
func (e *Engine) HashOrder(order *types.Order) common.Hash {
	return e.c.Codec.Digest(order)
}

// ValidateOrderParameters is the read-only parameter check.
func (e *Engine) ValidateOrderParameters(order *types.Order) error {
	if err := e.c.Validator.ValidateParameters(order, time.Now().Unix()); err != nil {
		return parameterError(order.Side.String(), err)
	}
	return nil
}

// IsOrderFinalizedOrCancelled reports whether a digest is terminal.
func (e *Engine) IsOrderFinalizedOrCancelled(digest common.Hash) (bool, error) {
	return e.c.Registry.IsTerminal(digest)
}

// GetTrade returns a settled trade record by id.
func (e *Engine) GetTrade(tradeID string) (*Trade, error) {
	var trade Trade
	if err := e.db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		return nil, err
	}
	return &trade, nil
}

// AtomicMatch validates the signed buy/sell pair and executes the
// settlement. Steps before the transaction are pure validation and
// leave no trace on failure; the transaction itself either commits the
// complete settlement or rolls every effect back.
func (e *Engine) AtomicMatch(buy, sell types.SignedOrder, attachedPayment int64) (*SettlementResult, error) {
	now := time.Now().Unix()

	buyDigest := e.c.Codec.Digest(&buy.Order)
	sellDigest := e.c.Codec.Digest(&sell.Order)

	logger := log.With().
		Str("service", "match").
		Str("buy_digest", buyDigest.Hex()).
		Str("sell_digest", sellDigest.Hex()).
		Logger()

	logger.Info().Msg("starting atomic match")

	if err := e.c.Validator.ValidateParameters(&buy.Order, now); err != nil {
		logger.Warn().Err(err).Msg("buy order failed parameter validation")
		return nil, parameterError("buy", err)
	}
	if err := e.c.Validator.ValidateParameters(&sell.Order, now); err != nil {
		logger.Warn().Err(err).Msg("sell order failed parameter validation")
		return nil, parameterError("sell", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.c.Verifier.Verify(&buy.Order, buyDigest, buy.Signature); err != nil {
		logger.Warn().Err(err).Msg("buy order failed verification")
		return nil, verifyError("buy", err)
	}
	if err := e.c.Verifier.Verify(&sell.Order, sellDigest, sell.Signature); err != nil {
		logger.Warn().Err(err).Msg("sell order failed verification")
		return nil, verifyError("sell", err)
	}

	if err := e.c.Validator.OrdersCanMatch(&buy.Order, &sell.Order, now); err != nil {
		logger.Warn().Err(err).Msg("orders are incompatible")
		return nil, newError(CodeOrdersIncompatible, "", err)
	}

	if err := e.gatedChecks(&buy.Order, &sell.Order); err != nil {
		logger.Warn().Err(err).Msg("gated check rejected match")
		return nil, err
	}

	// A floor flip liquidates into the standing bid, so it settles at the
	// buyer's offered price; everything else settles at the sell order's
	// current price.
	price := sell.Order.CurrentPrice(now)
	if sell.Order.SaleKind == types.SaleKindFloorFlip {
		price = buy.Order.BasePrice
	}

	fee, err := e.c.Fees.ProtocolFee(price)
	if err != nil {
		return nil, newError(CodeArithmeticOverflow, "", err)
	}
	royaltyTotal, royalties, err := e.c.Fees.Royalty(sell.Order.Asset, price)
	if err != nil {
		if errors.Is(err, fees.ErrOverflow) {
			return nil, newError(CodeArithmeticOverflow, "", err)
		}
		return nil, newError(CodeInternal, "", err)
	}
	if len(royalties) > 1 && !sell.Order.FeatureFlags.Has(types.FeatureMultiRoyalty) {
		return nil, newError(CodeFeatureDisabled, "",
			fmt.Errorf("multi-recipient royalty split requires the multi-royalty feature"))
	}
	if fee+royaltyTotal > price {
		return nil, newError(CodeArithmeticOverflow, "",
			fmt.Errorf("fee %d + royalty %d exceeds price %d", fee, royaltyTotal, price))
	}

	proceeds := price - fee - royaltyTotal
	refund := int64(0)
	if sell.Order.IsNativePayment() {
		if attachedPayment < price {
			return nil, newError(CodeInsufficientFunds, "",
				fmt.Errorf("attached payment %d below price %d", attachedPayment, price))
		}
		refund = attachedPayment - price
	}

	result := &SettlementResult{
		TradeID:        "TRD_" + uuid.New().String(),
		BuyDigest:      buyDigest,
		SellDigest:     sellDigest,
		Buyer:          buy.Order.Maker,
		Seller:         sell.Order.Maker,
		Price:          price,
		ProtocolFee:    fee,
		RoyaltyTotal:   royaltyTotal,
		Royalties:      royalties,
		SellerProceeds: proceeds,
		Refund:         refund,
		Timestamp:      time.Now(),
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := e.c.Registry.FinalizeTx(tx, buyDigest, buy.Order.Maker); err != nil {
			return err
		}
		if err := e.c.Registry.FinalizeTx(tx, sellDigest, sell.Order.Maker); err != nil {
			return err
		}

		if err := e.c.Assets.TransferAssetTx(tx, sell.Order.Maker, buy.Order.Maker, sell.Order.Asset); err != nil {
			return err
		}

		legs, err := e.payLegs(tx, &buy.Order, &sell.Order, attachedPayment, result)
		if err != nil {
			return err
		}
		result.Legs = legs

		if buy.Order.FeatureFlags.Has(types.FeatureReputationGating) {
			if err := e.c.Reputation.RecordTradeTx(tx, buy.Order.Maker); err != nil {
				return err
			}
			if err := e.c.Reputation.RecordTradeTx(tx, sell.Order.Maker); err != nil {
				return err
			}
		}

		trade := &Trade{
			TradeID:        result.TradeID,
			BuyDigest:      buyDigest.Hex(),
			SellDigest:     sellDigest.Hex(),
			Buyer:          buy.Order.Maker.Hex(),
			Seller:         sell.Order.Maker.Hex(),
			AssetKey:       sell.Order.Asset.Key(),
			PaymentToken:   sell.Order.PaymentToken.Hex(),
			Price:          price,
			ProtocolFee:    fee,
			RoyaltyTotal:   royaltyTotal,
			SellerProceeds: proceeds,
			Refund:         refund,
			CreatedAt:      time.Now(),
		}
		return tx.Create(trade).Error
	})
	if err != nil {
		logger.Error().Err(err).Msg("settlement aborted, all effects rolled back")
		return nil, settlementError(err)
	}

	logger.Info().
		Str("trade_id", result.TradeID).
		Str("buyer", result.Buyer.Hex()).
		Str("seller", result.Seller.Hex()).
		Int64("price", price).
		Int64("protocol_fee", fee).
		Int64("royalty_total", royaltyTotal).
		Int64("seller_proceeds", proceeds).
		Int64("refund", refund).
		Msg("orders matched")

	return result, nil
}

// gatedChecks runs the optional feature-gated rejections. Both orders
// carry identical flags at this point.
func (e *Engine) gatedChecks(buy, sell *types.Order) error {
	flags := sell.FeatureFlags

	if flags.Has(types.FeatureFraudGating) {
		if e.c.Radar == nil {
			return newError(CodeInternal, "",
				fmt.Errorf("orders request fraud gating but no fraud radar is configured"))
		}
		flagged, err := e.c.Radar.IsFlagged(sell.Asset)
		if err != nil {
			return newError(CodeInternal, "", err)
		}
		if flagged {
			return newError(CodeAssetFlagged, "",
				fmt.Errorf("asset %s carries an active fraud flag", sell.Asset.Key()))
		}
	}

	if flags.Has(types.FeatureReputationGating) {
		for _, party := range []struct {
			side  string
			maker common.Address
		}{
			{"buy", buy.Maker},
			{"sell", sell.Maker},
		} {
			reports, err := e.c.Reputation.FraudReports(party.maker)
			if err != nil {
				return newError(CodeInternal, party.side, err)
			}
			if reports > e.cfg.ReputationThreshold {
				return newError(CodeReputationTooLow, party.side,
					fmt.Errorf("maker %s has %d fraud reports, threshold %d",
						party.maker.Hex(), reports, e.cfg.ReputationThreshold))
			}
		}
	}

	return nil
}

// payLegs executes every payment leg of the settlement. Native payments
// route through the escrow account so the legs out of escrow sum to
// exactly what the buyer paid in; token payments draw directly from the
// buyer's balance.
func (e *Engine) payLegs(tx *gorm.DB, buy, sell *types.Order, attachedPayment int64, result *SettlementResult) ([]PaymentLeg, error) {
	token := sell.PaymentToken
	legs := make([]PaymentLeg, 0, 4+len(result.Royalties))

	pay := func(from, to common.Address, amount int64) error {
		if amount == 0 {
			return nil
		}
		if err := e.c.Payments.PayTx(tx, from, to, token, amount); err != nil {
			return err
		}
		legs = append(legs, PaymentLeg{From: from, To: to, Token: token, Amount: amount})
		return nil
	}

	payer := buy.Maker
	if sell.IsNativePayment() {
		if err := pay(buy.Maker, ledger.EscrowAccount, attachedPayment); err != nil {
			return nil, err
		}
		payer = ledger.EscrowAccount
	}

	if err := pay(payer, sell.Maker, result.SellerProceeds); err != nil {
		return nil, err
	}
	if err := pay(payer, e.c.Fees.FeeRecipient(), result.ProtocolFee); err != nil {
		return nil, err
	}
	for _, royalty := range result.Royalties {
		if err := pay(payer, royalty.Recipient, royalty.Amount); err != nil {
			return nil, err
		}
	}
	if sell.IsNativePayment() {
		if err := pay(payer, buy.Maker, result.Refund); err != nil {
			return nil, err
		}
	}

	return legs, nil
}

// CancelOrder marks an order cancelled on behalf of requester. Only the
// maker may cancel; a terminal order cannot be cancelled again.
func (e *Engine) CancelOrder(order *types.Order, requester common.Address) (common.Hash, error) {
	digest := e.c.Codec.Digest(order)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.c.Registry.Cancel(digest, order.Maker, requester); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotMaker):
			return digest, newError(CodeNotMaker, "", err)
		case errors.Is(err, registry.ErrAlreadyTerminal):
			return digest, newError(CodeAlreadyTerminal, "", err)
		default:
			return digest, newError(CodeInternal, "", err)
		}
	}

	log.Info().
		Str("service", "match").
		Str("digest", digest.Hex()).
		Str("maker", order.Maker.Hex()).
		Msg("order cancelled")
	return digest, nil
}
