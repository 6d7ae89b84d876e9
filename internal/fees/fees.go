// Package fees computes the protocol fee and royalty distribution for a
// trade price. All arithmetic is integer basis points with floor
// division; per-recipient dust stays with the seller's proceeds via the
// price - fee - royalty settlement formula.
package fees

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/seismic-labs/exchange-api/internal/types"
)

const (
	// BpsDenominator is the basis-point scale: 10000 bps = 100%.
	BpsDenominator = 10000
	// MaxProtocolFeeBps caps the protocol fee at 10% at configuration time.
	MaxProtocolFeeBps = 1000
	// MaxRoyaltyRecipients bounds a smart royalty split.
	MaxRoyaltyRecipients = 10
)

var (
	ErrFeeTooHigh         = errors.New("protocol fee exceeds maximum basis points")
	ErrPercentageExceeded = errors.New("royalty percentages exceed 10000 basis points")
	ErrNoRecipients       = errors.New("royalty split needs at least one recipient")
	ErrTooManyRecipients  = errors.New("royalty split has too many recipients")
	ErrInvalidShare       = errors.New("royalty share must be a positive percentage")
	ErrNotAuthorized      = errors.New("identity is not authorized for this asset")
	ErrOverflow           = errors.New("fee arithmetic would overflow")
)

// RoyaltyRegistry is the external default-royalty collaborator, queried
// when no smart royalty override exists. A nil payout means no default
// royalty is configured; that is a designed fallback, not an error.
type RoyaltyRegistry interface {
	DefaultRoyalty(asset types.AssetRef, price int64) (*Payout, error)
}

// OwnershipOracle gates who may set a smart royalty for an asset.
type OwnershipOracle interface {
	IsApprovedOrOwner(identity common.Address, asset types.AssetRef) (bool, error)
}

// Engine computes fee and royalty legs. The protocol fee rate is fixed
// at construction and capped administratively.
type Engine struct {
	db           *gorm.DB
	registry     RoyaltyRegistry
	oracle       OwnershipOracle
	feeBps       int64
	feeRecipient common.Address
}

func NewEngine(gormDB *gorm.DB, registry RoyaltyRegistry, oracle OwnershipOracle, feeBps int64, feeRecipient common.Address) (*Engine, error) {
	if feeBps < 0 || feeBps > MaxProtocolFeeBps {
		return nil, fmt.Errorf("%w: %d bps", ErrFeeTooHigh, feeBps)
	}
	return &Engine{
		db:           gormDB,
		registry:     registry,
		oracle:       oracle,
		feeBps:       feeBps,
		feeRecipient: feeRecipient,
	}, nil
}

// FeeRecipient is where protocol fees are paid.
func (e *Engine) FeeRecipient() common.Address {
	return e.feeRecipient
}

// mulBps computes amount*bps/10000 with an explicit overflow guard.
// Configuration invariants should make overflow impossible, but a match
// must fail rather than settle a nonsensical amount.
func mulBps(amount, bps int64) (int64, error) {
	if amount < 0 || bps < 0 {
		return 0, fmt.Errorf("%w: negative operand", ErrOverflow)
	}
	if bps != 0 && amount > math.MaxInt64/bps {
		return 0, ErrOverflow
	}
	return amount * bps / BpsDenominator, nil
}

// ProtocolFee is price*feeBps/10000, rounded down.
func (e *Engine) ProtocolFee(price int64) (int64, error) {
	return mulBps(price, e.feeBps)
}

// Royalty returns the total royalty and the per-recipient payouts for a
// sale at price. A smart royalty override wins; otherwise the default
// registry is consulted; otherwise royalty is zero.
func (e *Engine) Royalty(asset types.AssetRef, price int64) (int64, []Payout, error) {
	override, err := e.getSmartRoyalty(asset)
	if err != nil {
		return 0, nil, err
	}

	if override != nil {
		var shares []RoyaltyShare
		if err := json.Unmarshal([]byte(override.Recipients), &shares); err != nil {
			return 0, nil, fmt.Errorf("corrupt royalty split for %s: %w", asset.Key(), err)
		}

		var total int64
		payouts := make([]Payout, 0, len(shares))
		for _, share := range shares {
			amount, err := mulBps(price, share.Bps)
			if err != nil {
				return 0, nil, err
			}
			if amount == 0 {
				continue
			}
			payouts = append(payouts, Payout{Recipient: share.Recipient, Amount: amount})
			total += amount
		}
		return total, payouts, nil
	}

	payout, err := e.registry.DefaultRoyalty(asset, price)
	if err != nil {
		return 0, nil, fmt.Errorf("default royalty lookup failed: %w", err)
	}
	if payout == nil || payout.Amount <= 0 {
		return 0, nil, nil
	}
	return payout.Amount, []Payout{*payout}, nil
}

// SetSmartRoyalty installs or replaces the royalty split for an asset.
// Only the asset's owner or an approved operator may set it; shares are
// validated here so match-time arithmetic can rely on the invariants.
func (e *Engine) SetSmartRoyalty(asset types.AssetRef, setter common.Address, shares []RoyaltyShare) error {
	ok, err := e.oracle.IsApprovedOrOwner(setter, asset)
	if err != nil {
		return fmt.Errorf("ownership query failed: %w", err)
	}
	if !ok {
		return ErrNotAuthorized
	}

	if len(shares) == 0 {
		return ErrNoRecipients
	}
	if len(shares) > MaxRoyaltyRecipients {
		return fmt.Errorf("%w: %d recipients", ErrTooManyRecipients, len(shares))
	}

	var totalBps int64
	for _, share := range shares {
		if share.Bps <= 0 || share.Bps > BpsDenominator {
			return fmt.Errorf("%w: %d bps for %s", ErrInvalidShare, share.Bps, share.Recipient.Hex())
		}
		totalBps += share.Bps
	}
	if totalBps > BpsDenominator {
		return fmt.Errorf("%w: %d bps total", ErrPercentageExceeded, totalBps)
	}

	encoded, err := json.Marshal(shares)
	if err != nil {
		return fmt.Errorf("failed to encode royalty split: %w", err)
	}

	existing, err := e.getSmartRoyalty(asset)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = &SmartRoyalty{
			AssetKey:  asset.Key(),
			CreatedAt: time.Now(),
		}
	}
	existing.Recipients = string(encoded)
	existing.TotalBps = totalBps
	existing.SetBy = setter.Hex()
	existing.UpdatedAt = time.Now()

	if err := e.db.Save(existing).Error; err != nil {
		return err
	}

	log.Info().
		Str("service", "fees").
		Str("asset", asset.Key()).
		Str("set_by", setter.Hex()).
		Int64("total_bps", totalBps).
		Int("recipients", len(shares)).
		Msg("smart royalty updated")
	return nil
}

// GetSmartRoyalty returns the split for an asset, or nil if none is set.
func (e *Engine) GetSmartRoyalty(asset types.AssetRef) ([]RoyaltyShare, error) {
	override, err := e.getSmartRoyalty(asset)
	if err != nil || override == nil {
		return nil, err
	}
	var shares []RoyaltyShare
	if err := json.Unmarshal([]byte(override.Recipients), &shares); err != nil {
		return nil, fmt.Errorf("corrupt royalty split for %s: %w", asset.Key(), err)
	}
	return shares, nil
}

func (e *Engine) getSmartRoyalty(asset types.AssetRef) (*SmartRoyalty, error) {
	var royalty SmartRoyalty
	if err := e.db.Where("asset_key = ?", asset.Key()).First(&royalty).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &royalty, nil
}

// StaticRoyaltyRegistry is a RoyaltyRegistry with one fixed recipient
// and rate for every asset. It backs deployments that have no external
// royalty registry wired in.
type StaticRoyaltyRegistry struct {
	Recipient common.Address
	Bps       int64
}

func (r *StaticRoyaltyRegistry) DefaultRoyalty(_ types.AssetRef, price int64) (*Payout, error) {
	if r == nil || r.Bps <= 0 {
		return nil, nil
	}
	amount, err := mulBps(price, r.Bps)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, nil
	}
	return &Payout{Recipient: r.Recipient, Amount: amount}, nil
}

// NoRoyaltyRegistry never yields a default royalty.
type NoRoyaltyRegistry struct{}

func (NoRoyaltyRegistry) DefaultRoyalty(types.AssetRef, int64) (*Payout, error) {
	return nil, nil
}
