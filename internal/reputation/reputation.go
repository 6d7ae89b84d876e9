// Package reputation keeps per-identity trade history counters. The
// matching core reads them for gating and bumps them after a settled
// trade; fraud reports arrive from the external fraud subsystem.
package reputation

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Record is one identity's trading history.
type Record struct {
	gorm.Model          `json:"-"`
	Identity            string    `gorm:"uniqueIndex" json:"identity"`
	Score               int64     `json:"score"`
	TotalTx             int64     `json:"total_tx"`
	SuccessfulTx        int64     `json:"successful_tx"`
	FraudReportsAgainst int64     `json:"fraud_reports_against"`
	LastUpdated         time.Time `json:"last_updated"`
}

type Service struct {
	db *gorm.DB
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: gormDB}
}

// Get returns the record for an identity, creating nothing. A missing
// record reads as all-zero history.
func (s *Service) Get(identity common.Address) (*Record, error) {
	return getRecord(s.db, identity)
}

func getRecord(db *gorm.DB, identity common.Address) (*Record, error) {
	var record Record
	if err := db.Where("identity = ?", identity.Hex()).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Record{Identity: identity.Hex()}, nil
		}
		return nil, err
	}
	return &record, nil
}

// RecordTradeTx bumps an identity's counters inside an open settlement
// transaction so the increment rolls back with a failed settlement.
func (s *Service) RecordTradeTx(tx *gorm.DB, identity common.Address) error {
	record, err := getRecord(tx, identity)
	if err != nil {
		return err
	}

	record.TotalTx++
	record.SuccessfulTx++
	record.Score = score(record)
	record.LastUpdated = time.Now()
	return tx.Save(record).Error
}

// ReportFraud registers one fraud report against an identity. Called by
// the external fraud subsystem, never by the matching hot path.
func (s *Service) ReportFraud(identity common.Address) error {
	record, err := getRecord(s.db, identity)
	if err != nil {
		return err
	}

	record.FraudReportsAgainst++
	record.Score = score(record)
	record.LastUpdated = time.Now()
	if err := s.db.Save(record).Error; err != nil {
		return err
	}

	log.Warn().
		Str("service", "reputation").
		Str("identity", identity.Hex()).
		Int64("fraud_reports", record.FraudReportsAgainst).
		Msg("fraud report recorded")
	return nil
}

// FraudReports returns the number of fraud reports against an identity.
func (s *Service) FraudReports(identity common.Address) (int64, error) {
	record, err := s.Get(identity)
	if err != nil {
		return 0, err
	}
	return record.FraudReportsAgainst, nil
}

// score weighs successful trades against fraud reports, floored at zero.
func score(r *Record) int64 {
	value := r.SuccessfulTx*2 - r.FraudReportsAgainst*10
	if value < 0 {
		return 0
	}
	return value
}
