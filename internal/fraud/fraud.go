// Package fraud is the minimal in-process stand-in for the external
// fraud-reporting subsystem: it stores per-asset fraud flags and answers
// the radar query the match engine makes when fraud gating is active.
package fraud

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/seismic-labs/exchange-api/internal/types"
)

// Flag marks one asset as reported fraudulent.
type Flag struct {
	gorm.Model `json:"-"`
	AssetKey   string    `gorm:"uniqueIndex" json:"asset_key"`
	Active     bool      `json:"active"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Radar struct {
	db *gorm.DB
}

func NewRadar(gormDB *gorm.DB) *Radar {
	return &Radar{db: gormDB}
}

// IsFlagged reports whether the asset carries an active fraud flag.
func (r *Radar) IsFlagged(asset types.AssetRef) (bool, error) {
	var flag Flag
	err := r.db.Where("asset_key = ?", asset.Key()).First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return flag.Active, nil
}

// SetFlag raises or clears the fraud flag for an asset.
func (r *Radar) SetFlag(asset types.AssetRef, active bool, reason string) error {
	var flag Flag
	err := r.db.Where("asset_key = ?", asset.Key()).First(&flag).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		flag = Flag{
			AssetKey:  asset.Key(),
			CreatedAt: time.Now(),
		}
	case err != nil:
		return err
	}

	flag.Active = active
	flag.Reason = reason
	flag.UpdatedAt = time.Now()
	if err := r.db.Save(&flag).Error; err != nil {
		return err
	}

	log.Warn().
		Str("service", "fraud").
		Str("asset", asset.Key()).
		Bool("active", active).
		Str("reason", reason).
		Msg("fraud flag updated")
	return nil
}
