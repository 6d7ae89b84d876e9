// Package registry tracks per-digest order lifecycle state and enforces
// that an order is consumed at most once. A digest transitions at most
// once into a terminal state (cancelled or finalized); both flags are
// checked before any transition.
package registry

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrNotMaker        = errors.New("requester is not the order maker")
	ErrAlreadyTerminal = errors.New("order is already cancelled or finalized")
)

// Service mediates all order-state transitions. Callers must provide
// their own mutual exclusion around check-then-commit sequences; the
// match engine holds a single lock across both digests involved in a
// settlement.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// IsTerminal reports whether the digest has been cancelled or finalized.
func (s *Service) IsTerminal(digest common.Hash) (bool, error) {
	state, err := s.db.GetState(digest.Hex())
	if err != nil {
		return false, err
	}
	return state != nil && state.Terminal(), nil
}

// State returns the lifecycle row for a digest, or nil if the order has
// never been touched.
func (s *Service) State(digest common.Hash) (*OrderState, error) {
	return s.db.GetState(digest.Hex())
}

// Cancel marks the digest cancelled on behalf of requester. Only the
// order's maker may cancel, and a terminal order cannot be cancelled
// again.
func (s *Service) Cancel(digest common.Hash, maker, requester common.Address) error {
	if requester != maker {
		return ErrNotMaker
	}

	state, err := s.db.GetState(digest.Hex())
	if err != nil {
		return err
	}
	if state != nil && state.Terminal() {
		return ErrAlreadyTerminal
	}
	if state == nil {
		state = &OrderState{
			Digest:    digest.Hex(),
			Maker:     maker.Hex(),
			CreatedAt: time.Now(),
		}
	}

	state.Cancelled = true
	state.UpdatedAt = time.Now()
	if err := s.db.SaveState(state); err != nil {
		return err
	}

	log.Info().
		Str("service", "registry").
		Str("digest", digest.Hex()).
		Str("maker", maker.Hex()).
		Msg("order cancelled")
	return nil
}

// FinalizeTx marks the digest finalized within an open transaction. It
// re-checks terminality so a stale caller cannot double-consume; the
// enclosing transaction rolls the marking back if any later settlement
// step fails.
func (s *Service) FinalizeTx(tx *gorm.DB, digest common.Hash, maker common.Address) error {
	state, err := getState(tx, digest.Hex())
	if err != nil {
		return err
	}
	if state != nil && state.Terminal() {
		return ErrAlreadyTerminal
	}
	if state == nil {
		state = &OrderState{
			Digest:    digest.Hex(),
			Maker:     maker.Hex(),
			CreatedAt: time.Now(),
		}
	}

	state.Finalized = true
	state.UpdatedAt = time.Now()
	return tx.Save(state).Error
}
