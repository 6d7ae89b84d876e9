// Package auction runs escrowed English auctions alongside the order
// matching core: an authority lists an asset with a minimum price and an
// end time, bids beat the current price into escrow, and the auction
// settles to the highest bidder with a house fee taken off the top.
package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/seismic-labs/exchange-api/internal/fees"
	"github.com/seismic-labs/exchange-api/internal/ledger"
	"github.com/seismic-labs/exchange-api/internal/types"
)

var (
	ErrNotActive    = errors.New("auction is not active")
	ErrEnded        = errors.New("auction has ended")
	ErrNotEnded     = errors.New("auction has not ended yet")
	ErrBidTooLow    = errors.New("bid amount is too low")
	ErrUnauthorized = errors.New("not the auction authority")
	ErrNotOwner     = errors.New("authority does not control the asset")
	ErrFeeTooHigh   = errors.New("house fee exceeds maximum basis points")
)

// Config is the auction house configuration, fixed at construction.
type Config struct {
	// SellerFeeBps is the house cut of the winning bid.
	SellerFeeBps int64
	// Treasury receives house fees.
	Treasury common.Address
}

type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
	cfg    Config

	// mu guards the check-then-commit sections of PlaceBid, End and
	// Cancel: two concurrent bids must not both observe the same highest
	// bidder and both refund it out of escrow.
	mu sync.Mutex
}

func NewService(gormDB *gorm.DB, ledgerService *ledger.Service, cfg Config) (*Service, error) {
	if cfg.SellerFeeBps < 0 || cfg.SellerFeeBps > fees.BpsDenominator {
		return nil, fmt.Errorf("%w: %d bps", ErrFeeTooHigh, cfg.SellerFeeBps)
	}
	return &Service{
		db:     gormDB,
		ledger: ledgerService,
		cfg:    cfg,
	}, nil
}

// Create lists an asset for auction. The authority must own or control
// the asset at listing time.
func (s *Service) Create(authority common.Address, asset types.AssetRef, paymentToken common.Address, minimumPrice, endTime int64) (*Auction, error) {
	ok, err := s.ledger.IsApprovedOrOwner(authority, asset)
	if err != nil {
		return nil, fmt.Errorf("ownership query failed: %w", err)
	}
	if !ok {
		return nil, ErrNotOwner
	}
	if endTime <= time.Now().Unix() {
		return nil, fmt.Errorf("%w: end time %d is in the past", ErrEnded, endTime)
	}

	auction := &Auction{
		AuctionID:    "AUC_" + uuid.New().String(),
		Authority:    authority.Hex(),
		AssetKey:     asset.Key(),
		Collection:   asset.Collection.Hex(),
		TokenID:      asset.TokenID,
		AssetKind:    uint8(asset.Kind),
		Quantity:     asset.Quantity,
		PaymentToken: paymentToken.Hex(),
		MinimumPrice: minimumPrice,
		CurrentPrice: minimumPrice,
		EndTime:      endTime,
		Status:       StatusActive,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.db.Create(auction).Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "auction").
		Str("auction_id", auction.AuctionID).
		Str("asset", auction.AssetKey).
		Int64("minimum_price", minimumPrice).
		Int64("end_time", endTime).
		Msg("auction created")
	return auction, nil
}

// Get returns an auction by id.
func (s *Service) Get(auctionID string) (*Auction, error) {
	var auction Auction
	if err := s.db.Where("auction_id = ?", auctionID).First(&auction).Error; err != nil {
		return nil, err
	}
	return &auction, nil
}

// PlaceBid escrows a bid that beats the current price and refunds the
// previous highest bidder. The whole step commits or rolls back as one.
func (s *Service) PlaceBid(auctionID string, bidder common.Address, amount int64) (*Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, err := s.Get(auctionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	if auction.Status != StatusActive {
		return nil, ErrNotActive
	}
	if now >= auction.EndTime {
		return nil, ErrEnded
	}
	if amount <= auction.CurrentPrice {
		return nil, fmt.Errorf("%w: bid %d, current price %d", ErrBidTooLow, amount, auction.CurrentPrice)
	}

	token := common.HexToAddress(auction.PaymentToken)
	bid := &Bid{
		BidID:     "BID_" + uuid.New().String(),
		AuctionID: auction.AuctionID,
		Bidder:    bidder.Hex(),
		Amount:    amount,
		CreatedAt: time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.PayTx(tx, bidder, ledger.EscrowAccount, token, amount); err != nil {
			return err
		}
		if auction.HighestBidder != "" {
			previous := common.HexToAddress(auction.HighestBidder)
			if err := s.ledger.PayTx(tx, ledger.EscrowAccount, previous, token, auction.CurrentPrice); err != nil {
				return err
			}
		}

		auction.CurrentPrice = amount
		auction.HighestBidder = bidder.Hex()
		auction.UpdatedAt = time.Now()
		if err := tx.Save(auction).Error; err != nil {
			return err
		}
		return tx.Create(bid).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "auction").
		Str("auction_id", auction.AuctionID).
		Str("bidder", bidder.Hex()).
		Int64("amount", amount).
		Msg("bid placed")
	return bid, nil
}

// End settles an auction whose end time has passed: the asset goes to
// the highest bidder, the house fee to the treasury, and the remainder
// to the authority. With no bids the auction simply ends.
func (s *Service) End(auctionID string) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, err := s.Get(auctionID)
	if err != nil {
		return nil, err
	}

	if time.Now().Unix() < auction.EndTime {
		return nil, ErrNotEnded
	}
	if auction.Status != StatusActive {
		return nil, ErrNotActive
	}

	settlement := &Settlement{
		AuctionID: auction.AuctionID,
		Timestamp: time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		auction.Status = StatusEnded
		auction.UpdatedAt = time.Now()
		if err := tx.Save(auction).Error; err != nil {
			return err
		}

		if auction.HighestBidder == "" {
			return nil
		}

		winner := common.HexToAddress(auction.HighestBidder)
		authority := common.HexToAddress(auction.Authority)
		token := common.HexToAddress(auction.PaymentToken)
		asset := types.AssetRef{
			Collection: common.HexToAddress(auction.Collection),
			TokenID:    auction.TokenID,
			Kind:       types.AssetKind(auction.AssetKind),
			Quantity:   auction.Quantity,
		}

		if err := s.ledger.TransferAssetTx(tx, authority, winner, asset); err != nil {
			return err
		}

		houseFee := auction.CurrentPrice * s.cfg.SellerFeeBps / fees.BpsDenominator
		proceeds := auction.CurrentPrice - houseFee

		if err := s.ledger.PayTx(tx, ledger.EscrowAccount, s.cfg.Treasury, token, houseFee); err != nil {
			return err
		}
		if err := s.ledger.PayTx(tx, ledger.EscrowAccount, authority, token, proceeds); err != nil {
			return err
		}

		settlement.Winner = auction.HighestBidder
		settlement.FinalPrice = auction.CurrentPrice
		settlement.HouseFee = houseFee
		settlement.SellerProceed = proceeds
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "auction").
		Str("auction_id", auction.AuctionID).
		Str("winner", settlement.Winner).
		Int64("final_price", settlement.FinalPrice).
		Int64("house_fee", settlement.HouseFee).
		Msg("auction ended")
	return settlement, nil
}

// Cancel cancels an active auction. Only the authority may cancel, and
// the current highest bid is refunded from escrow.
func (s *Service) Cancel(auctionID string, requester common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, err := s.Get(auctionID)
	if err != nil {
		return err
	}

	if auction.Authority != requester.Hex() {
		return ErrUnauthorized
	}
	if auction.Status != StatusActive {
		return ErrNotActive
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if auction.HighestBidder != "" {
			bidder := common.HexToAddress(auction.HighestBidder)
			token := common.HexToAddress(auction.PaymentToken)
			if err := s.ledger.PayTx(tx, ledger.EscrowAccount, bidder, token, auction.CurrentPrice); err != nil {
				return err
			}
		}

		auction.Status = StatusCancelled
		auction.UpdatedAt = time.Now()
		return tx.Save(auction).Error
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("service", "auction").
		Str("auction_id", auction.AuctionID).
		Msg("auction cancelled")
	return nil
}
