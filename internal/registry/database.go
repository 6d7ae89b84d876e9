package registry

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetState returns the state row for a digest, or nil if none exists.
func (d *Database) GetState(digest string) (*OrderState, error) {
	return getState(d.db, digest)
}

func getState(db *gorm.DB, digest string) (*OrderState, error) {
	var state OrderState
	if err := db.Where("digest = ?", digest).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (d *Database) SaveState(state *OrderState) error {
	return d.db.Save(state).Error
}

func (d *Database) CreateState(state *OrderState) error {
	return d.db.Create(state).Error
}
