// Package ledger is the in-process implementation of the settlement
// collaborators: the ownership oracle, the asset transfer executor and
// the payment executor, all over the same database so a settlement
// transaction covers every leg. A real deployment would swap these for
// chain-backed executors; the interfaces consumed by the match engine
// stay the same.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/seismic-labs/exchange-api/internal/types"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientAsset   = errors.New("insufficient asset quantity")
	ErrNotOwner            = errors.New("identity does not own the asset")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// EscrowAccount holds native payments in flight during settlement and
// auction bids awaiting resolution.
var EscrowAccount = common.BytesToAddress(crypto.Keccak256([]byte("seismic.exchange.escrow"))[12:])

type Service struct {
	db *gorm.DB
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: gormDB}
}

// DB exposes the underlying handle for callers that open transactions
// spanning the ledger and other stores.
func (s *Service) DB() *gorm.DB {
	return s.db
}

// Mint creates owner's position in an asset. Setup/admin path.
func (s *Service) Mint(asset types.AssetRef, owner common.Address) error {
	holding := &Holding{
		AssetKey:   asset.Key(),
		Owner:      owner.Hex(),
		Collection: asset.Collection.Hex(),
		TokenID:    asset.TokenID,
		Kind:       uint8(asset.Kind),
		Quantity:   asset.Quantity,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if holding.Quantity == 0 {
		holding.Quantity = 1
	}
	if err := s.db.Create(holding).Error; err != nil {
		return err
	}

	log.Debug().
		Str("service", "ledger").
		Str("asset", asset.Key()).
		Str("owner", owner.Hex()).
		Uint64("quantity", holding.Quantity).
		Msg("asset minted")
	return nil
}

// Credit adds funds to an account. Setup/admin path.
func (s *Service) Credit(token, account common.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.credit(s.db, token, account, amount)
}

// Approve records operator approval for an asset. Only the owner may
// grant it.
func (s *Service) Approve(asset types.AssetRef, owner, operator common.Address) error {
	holding, err := s.getHolding(s.db, asset.Key(), owner)
	if err != nil {
		return err
	}
	if holding == nil {
		return ErrNotOwner
	}

	approval := &Approval{
		AssetKey:  asset.Key(),
		Owner:     owner.Hex(),
		Operator:  operator.Hex(),
		CreatedAt: time.Now(),
	}
	return s.db.Create(approval).Error
}

// IsApprovedOrOwner reports whether identity owns enough of the asset or
// is an approved operator for an owner who does.
func (s *Service) IsApprovedOrOwner(identity common.Address, asset types.AssetRef) (bool, error) {
	holding, err := s.getHolding(s.db, asset.Key(), identity)
	if err != nil {
		return false, err
	}
	required := asset.Quantity
	if required == 0 {
		required = 1
	}
	if holding != nil && holding.Quantity >= required {
		return true, nil
	}

	var count int64
	err = s.db.Model(&Approval{}).
		Where("asset_key = ? AND operator = ?", asset.Key(), identity.Hex()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TransferAssetTx moves the asset from one owner to another inside an
// open transaction. Unique assets change hands whole; fractional assets
// move the order's quantity.
func (s *Service) TransferAssetTx(tx *gorm.DB, from, to common.Address, asset types.AssetRef) error {
	fromHolding, err := s.getHolding(tx, asset.Key(), from)
	if err != nil {
		return err
	}
	if fromHolding == nil {
		return fmt.Errorf("%w: %s has no position in %s", ErrNotOwner, from.Hex(), asset.Key())
	}

	quantity := asset.Quantity
	if quantity == 0 || asset.Kind == types.AssetKindUnique {
		quantity = fromHolding.Quantity
	}
	if fromHolding.Quantity < quantity {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientAsset, fromHolding.Quantity, quantity)
	}

	fromHolding.Quantity -= quantity
	fromHolding.UpdatedAt = time.Now()
	if fromHolding.Quantity == 0 {
		if err := tx.Delete(fromHolding).Error; err != nil {
			return err
		}
	} else {
		if err := tx.Save(fromHolding).Error; err != nil {
			return err
		}
	}

	toHolding, err := s.getHolding(tx, asset.Key(), to)
	if err != nil {
		return err
	}
	if toHolding == nil {
		toHolding = &Holding{
			AssetKey:   asset.Key(),
			Owner:      to.Hex(),
			Collection: asset.Collection.Hex(),
			TokenID:    asset.TokenID,
			Kind:       uint8(asset.Kind),
			CreatedAt:  time.Now(),
		}
	}
	toHolding.Quantity += quantity
	toHolding.UpdatedAt = time.Now()
	return tx.Save(toHolding).Error
}

// PayTx moves amount of token from one account to another inside an
// open transaction. A zero amount is a no-op so callers can emit
// optional legs unconditionally.
func (s *Service) PayTx(tx *gorm.DB, from, to, token common.Address, amount int64) error {
	if amount == 0 {
		return nil
	}
	if amount < 0 {
		return ErrInvalidAmount
	}

	fromBalance, err := s.getBalance(tx, token, from)
	if err != nil {
		return err
	}
	if fromBalance == nil || fromBalance.Amount < amount {
		have := int64(0)
		if fromBalance != nil {
			have = fromBalance.Amount
		}
		return fmt.Errorf("%w: %s has %d of %s, needs %d",
			ErrInsufficientBalance, from.Hex(), have, token.Hex(), amount)
	}

	fromBalance.Amount -= amount
	fromBalance.UpdatedAt = time.Now()
	if err := tx.Save(fromBalance).Error; err != nil {
		return err
	}

	return s.credit(tx, token, to, amount)
}

// Balance returns an account's balance in a token; missing rows read as
// zero.
func (s *Service) Balance(token, account common.Address) (int64, error) {
	balance, err := s.getBalance(s.db, token, account)
	if err != nil {
		return 0, err
	}
	if balance == nil {
		return 0, nil
	}
	return balance.Amount, nil
}

// OwnedQuantity returns how much of the asset the identity holds.
func (s *Service) OwnedQuantity(identity common.Address, asset types.AssetRef) (uint64, error) {
	holding, err := s.getHolding(s.db, asset.Key(), identity)
	if err != nil {
		return 0, err
	}
	if holding == nil {
		return 0, nil
	}
	return holding.Quantity, nil
}

func (s *Service) credit(tx *gorm.DB, token, account common.Address, amount int64) error {
	balance, err := s.getBalance(tx, token, account)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = &Balance{
			Token:   token.Hex(),
			Account: account.Hex(),
		}
	}
	balance.Amount += amount
	balance.UpdatedAt = time.Now()
	return tx.Save(balance).Error
}

func (s *Service) getHolding(tx *gorm.DB, assetKey string, owner common.Address) (*Holding, error) {
	var holding Holding
	err := tx.Where("asset_key = ? AND owner = ?", assetKey, owner.Hex()).First(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &holding, nil
}

func (s *Service) getBalance(tx *gorm.DB, token, account common.Address) (*Balance, error) {
	var balance Balance
	err := tx.Where("token = ? AND account = ?", token.Hex(), account.Hex()).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}
