package auction

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor sweeps expired auctions in the background and settles them,
// so an auction ends on time without anyone calling End.
type Processor struct {
	service      *Service
	processDelay time.Duration
}

func NewProcessor(service *Service) *Processor {
	return &Processor{
		service:      service,
		processDelay: 30 * time.Second,
	}
}

// Start begins the sweep loop and blocks until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "auction_processor").Logger()
	logger.Info().Msg("starting auction processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down auction processor")
			return
		case <-ticker.C:
			if err := p.settleExpired(); err != nil {
				logger.Error().Err(err).Msg("failed to settle expired auctions")
			}
		}
	}
}

func (p *Processor) settleExpired() error {
	logger := log.With().Str("component", "auction_processor").Logger()

	var expired []Auction
	err := p.service.db.
		Where("status = ? AND end_time <= ?", StatusActive, time.Now().Unix()).
		Find(&expired).Error
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	logger.Info().Int("expired_count", len(expired)).Msg("settling expired auctions")

	for _, auction := range expired {
		if _, err := p.service.End(auction.AuctionID); err != nil {
			logger.Error().
				Err(err).
				Str("auction_id", auction.AuctionID).
				Msg("failed to end auction")
			continue
		}
	}
	return nil
}
