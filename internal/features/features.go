// Package features implements the capability bitmask gate. A capability
// is active for an identity when its bit is set in the global mask or in
// that identity's override row. Mutation is administrative configuration,
// not hot-path protocol logic.
package features

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/seismic-labs/exchange-api/internal/types"
)

// Override is a per-identity opt-in mask.
type Override struct {
	gorm.Model `json:"-"`
	Identity   string    `gorm:"uniqueIndex" json:"identity"`
	Mask       uint64    `json:"mask"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Gate struct {
	db *gorm.DB

	mu     sync.RWMutex
	global types.FeatureFlags
}

func NewGate(gormDB *gorm.DB, global types.FeatureFlags) *Gate {
	return &Gate{
		db:     gormDB,
		global: global,
	}
}

// GlobalMask returns the protocol-wide capability mask.
func (g *Gate) GlobalMask() types.FeatureFlags {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.global
}

// SetGlobalFlags replaces the protocol-wide mask.
func (g *Gate) SetGlobalFlags(mask types.FeatureFlags) {
	g.mu.Lock()
	g.global = mask
	g.mu.Unlock()

	log.Info().
		Str("service", "features").
		Uint64("mask", uint64(mask)).
		Msg("global feature mask updated")
}

// SetUserFlags replaces the override mask for one identity.
func (g *Gate) SetUserFlags(identity common.Address, mask types.FeatureFlags) error {
	var override Override
	err := g.db.Where("identity = ?", identity.Hex()).First(&override).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		override = Override{
			Identity:  identity.Hex(),
			Mask:      uint64(mask),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := g.db.Create(&override).Error; err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		override.Mask = uint64(mask)
		override.UpdatedAt = time.Now()
		if err := g.db.Save(&override).Error; err != nil {
			return err
		}
	}

	log.Info().
		Str("service", "features").
		Str("identity", identity.Hex()).
		Uint64("mask", uint64(mask)).
		Msg("user feature mask updated")
	return nil
}

// MaskFor returns the effective mask for an identity: the global mask
// OR'd with the identity's override, if any.
func (g *Gate) MaskFor(identity common.Address) (types.FeatureFlags, error) {
	mask := g.GlobalMask()

	var override Override
	err := g.db.Where("identity = ?", identity.Hex()).First(&override).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return mask, nil
	}
	if err != nil {
		return 0, err
	}
	return mask | types.FeatureFlags(override.Mask), nil
}

// Enabled reports whether flag is active for identity.
func (g *Gate) Enabled(flag types.FeatureFlags, identity common.Address) (bool, error) {
	mask, err := g.MaskFor(identity)
	if err != nil {
		return false, err
	}
	return mask.Has(flag), nil
}
