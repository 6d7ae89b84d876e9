package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/seismic-labs/exchange-api/internal/auction"
	"github.com/seismic-labs/exchange-api/internal/features"
	"github.com/seismic-labs/exchange-api/internal/fees"
	"github.com/seismic-labs/exchange-api/internal/fraud"
	"github.com/seismic-labs/exchange-api/internal/ledger"
	"github.com/seismic-labs/exchange-api/internal/match"
	"github.com/seismic-labs/exchange-api/internal/registry"
	"github.com/seismic-labs/exchange-api/internal/reputation"
)

// NewDatabase opens the sqlite database at path (":memory:" in tests)
// and migrates every store the exchange core persists.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// An in-memory sqlite database exists per connection, so the pool
	// must be pinned to a single connection to see one database.
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	err = db.AutoMigrate(
		&registry.OrderState{},
		&features.Override{},
		&fees.SmartRoyalty{},
		&reputation.Record{},
		&ledger.Holding{},
		&ledger.Approval{},
		&ledger.Balance{},
		&match.Trade{},
		&match.StandingOffer{},
		&fraud.Flag{},
		&auction.Auction{},
		&auction.Bid{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
