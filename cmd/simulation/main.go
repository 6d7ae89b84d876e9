package main

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seismic-labs/exchange-api/internal/auction"
	"github.com/seismic-labs/exchange-api/internal/codec"
	"github.com/seismic-labs/exchange-api/internal/database"
	"github.com/seismic-labs/exchange-api/internal/features"
	"github.com/seismic-labs/exchange-api/internal/fees"
	"github.com/seismic-labs/exchange-api/internal/fraud"
	"github.com/seismic-labs/exchange-api/internal/ledger"
	"github.com/seismic-labs/exchange-api/internal/match"
	"github.com/seismic-labs/exchange-api/internal/registry"
	"github.com/seismic-labs/exchange-api/internal/reputation"
	"github.com/seismic-labs/exchange-api/internal/signature"
	"github.com/seismic-labs/exchange-api/internal/types"
	"github.com/seismic-labs/exchange-api/internal/validation"
)

const (
	numTraders    = 8
	numMatches    = 40
	startingFunds = int64(10_000_000)
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// opStats tracks performance statistics for one engine operation
type opStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (s *opStats) record(d time.Duration, err error) {
	s.durations = append(s.durations, d)
	s.totalCalls++
	if err != nil {
		s.failures++
	}
}

// calculate computes min, max, mean and median durations
func (s *opStats) calculate() (min, max, mean, median time.Duration) {
	if len(s.durations) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(s.durations, func(i, j int) bool {
		return s.durations[i] < s.durations[j]
	})
	min = s.durations[0]
	max = s.durations[len(s.durations)-1]
	var sum time.Duration
	for _, d := range s.durations {
		sum += d
	}
	mean = sum / time.Duration(len(s.durations))
	median = s.durations[len(s.durations)/2]
	return
}

// trader is one simulated participant with a local signing key
type trader struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func newTrader() trader {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate key")
	}
	return trader{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func (t trader) sign(oc *codec.Codec, order types.Order) types.SignedOrder {
	digest := oc.Digest(&order)
	sig, err := crypto.Sign(digest.Bytes(), t.key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign order")
	}
	return types.SignedOrder{Order: order, Signature: sig}
}

// world bundles the wired services for the simulation run
type world struct {
	codec   *codec.Codec
	ledger  *ledger.Service
	engine  *match.Engine
	auction *auction.Service
	gate    *features.Gate
	stats   map[string]*opStats
}

func buildWorld() *world {
	db, err := database.NewDatabase(":memory:")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	feeRecipient := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	royaltyArtist := common.HexToAddress("0x000000000000000000000000000000000000a1ae")

	ledgerService := ledger.NewService(db)
	registryService := registry.NewService(db)
	gate := features.NewGate(db, types.FeatureInstantLiquidation|types.FeatureMultiRoyalty|types.FeatureReputationGating|types.FeatureFraudGating)
	feeEngine, err := fees.NewEngine(db, &fees.StaticRoyaltyRegistry{Recipient: royaltyArtist, Bps: 500}, ledgerService, 250, feeRecipient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize fee engine")
	}

	orderCodec := codec.New(big.NewInt(1), common.HexToAddress("0x0000000000000000000000000000000000000001"))
	engine := match.NewEngine(db, match.Collaborators{
		Codec:      orderCodec,
		Verifier:   signature.NewVerifier(registryService, ledgerService),
		Validator:  validation.NewValidator(gate),
		Registry:   registryService,
		Fees:       feeEngine,
		Reputation: reputation.NewService(db),
		Assets:     ledgerService,
		Payments:   ledgerService,
		Radar:      fraud.NewRadar(db),
	}, match.Config{})

	auctionService, err := auction.NewService(db, ledgerService, auction.Config{
		SellerFeeBps: 250,
		Treasury:     feeRecipient,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auction house")
	}

	return &world{
		codec:   orderCodec,
		ledger:  ledgerService,
		engine:  engine,
		auction: auctionService,
		gate:    gate,
		stats: map[string]*opStats{
			"match":   {name: "Atomic Match"},
			"offer":   {name: "Place Offer"},
			"flip":    {name: "Floor Flip"},
			"auction": {name: "Auction Cycle"},
		},
	}
}

func fixedPriceSell(maker common.Address, asset types.AssetRef, price int64, now int64) types.Order {
	return types.Order{
		Maker:          maker,
		Side:           types.SideSell,
		SaleKind:       types.SaleKindFixedPrice,
		Asset:          asset,
		BasePrice:      price,
		ListingTime:    now - 60,
		ExpirationTime: now + 3600,
		Salt:           rand.Uint64() | 1,
	}
}

func matchingBuy(maker common.Address, sell types.Order, price int64) types.Order {
	buy := sell
	buy.Maker = maker
	buy.Taker = common.Address{}
	buy.Side = types.SideBuy
	buy.SaleKind = types.SaleKindFixedPrice
	buy.BasePrice = price
	buy.Salt = rand.Uint64() | 1
	return buy
}

// runMatches trades unique assets between random buyer/seller pairs
func (w *world) runMatches(traders []trader, collection common.Address) {
	now := time.Now().Unix()
	for i := 0; i < numMatches; i++ {
		seller := traders[rand.Intn(len(traders))]
		buyer := traders[rand.Intn(len(traders))]
		if buyer.address == seller.address {
			continue
		}

		asset := types.AssetRef{Collection: collection, TokenID: uint64(1000 + i), Kind: types.AssetKindUnique, Quantity: 1}
		if err := w.ledger.Mint(asset, seller.address); err != nil {
			log.Fatal().Err(err).Msg("mint failed")
		}

		price := int64(50_000 + rand.Intn(100_000))
		sell := w.sign(seller, fixedPriceSell(seller.address, asset, price, now))
		buy := w.sign(buyer, matchingBuy(buyer.address, sell.Order, price))

		start := time.Now()
		result, err := w.engine.AtomicMatch(buy, sell, price)
		w.stats["match"].record(time.Since(start), err)
		if err != nil {
			log.Warn().Err(err).Str("asset", asset.Key()).Msg("match rejected")
			continue
		}
		log.Info().
			Str("trade_id", result.TradeID).
			Str("asset", asset.Key()).
			Int64("price", result.Price).
			Int64("protocol_fee", result.ProtocolFee).
			Int64("royalty", result.RoyaltyTotal).
			Msg("match settled")
	}
}

func (w *world) sign(t trader, order types.Order) types.SignedOrder {
	return t.sign(w.codec, order)
}

// runFloorFlips places standing offers and liquidates a listing into the best one
func (w *world) runFloorFlips(traders []trader, collection common.Address) {
	now := time.Now().Unix()
	asset := types.AssetRef{Collection: collection, TokenID: 9001, Kind: types.AssetKindUnique, Quantity: 1}

	seller := traders[0]
	if err := w.ledger.Mint(asset, seller.address); err != nil {
		log.Fatal().Err(err).Msg("mint failed")
	}

	// Three collectors bid under the standing-offer book at different levels
	var best int64
	for i := 1; i <= 3; i++ {
		bidder := traders[i]
		price := int64(60_000 + 5_000*i)
		if price > best {
			best = price
		}
		offer := matchingBuy(bidder.address, fixedPriceSell(seller.address, asset, price, now), price)
		offer.FeatureFlags = types.FeatureInstantLiquidation
		signed := w.sign(bidder, offer)

		start := time.Now()
		placed, err := w.engine.PlaceOffer(signed)
		w.stats["offer"].record(time.Since(start), err)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to place offer")
		}
		log.Info().Str("offer_id", placed.OfferID).Int64("price", price).Msg("standing offer placed")
	}

	flip := fixedPriceSell(seller.address, asset, 50_000, now)
	flip.SaleKind = types.SaleKindFloorFlip
	flip.FeatureFlags = types.FeatureInstantLiquidation
	signed := w.sign(seller, flip)

	start := time.Now()
	result, err := w.engine.ExecuteFloorFlip(signed)
	w.stats["flip"].record(time.Since(start), err)
	if err != nil {
		log.Fatal().Err(err).Msg("floor flip failed")
	}
	log.Info().
		Str("trade_id", result.TradeID).
		Int64("settled_at", result.Price).
		Int64("best_offer", best).
		Msg("floor flip settled against best standing offer")
}

// runAuction walks one timed auction from creation through settlement
func (w *world) runAuction(traders []trader, collection common.Address) {
	asset := types.AssetRef{Collection: collection, TokenID: 9100, Kind: types.AssetKindUnique, Quantity: 1}
	authority := traders[0]
	if err := w.ledger.Mint(asset, authority.address); err != nil {
		log.Fatal().Err(err).Msg("mint failed")
	}

	start := time.Now()
	created, err := w.auction.Create(authority.address, asset, common.Address{}, 10_000, time.Now().Add(2*time.Second).Unix())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create auction")
	}
	log.Info().Str("auction_id", created.AuctionID).Msg("auction created")

	for i := 1; i <= 3; i++ {
		bid, err := w.auction.PlaceBid(created.AuctionID, traders[i].address, int64(10_000+2_500*i))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to place bid")
		}
		log.Info().Str("bid_id", bid.BidID).Int64("amount", bid.Amount).Msg("bid placed")
	}

	time.Sleep(2500 * time.Millisecond)
	settlement, err := w.auction.End(created.AuctionID)
	w.stats["auction"].record(time.Since(start), err)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to end auction")
	}
	log.Info().
		Str("winner", settlement.Winner).
		Int64("price", settlement.FinalPrice).
		Int64("house_fee", settlement.HouseFee).
		Msg("auction settled")
}

func (w *world) printSummary() {
	fmt.Println("\nOperation Performance Statistics:")
	fmt.Println("=================================")
	for _, key := range []string{"match", "offer", "flip", "auction"} {
		s := w.stats[key]
		if s.totalCalls == 0 {
			continue
		}
		min, max, mean, median := s.calculate()
		fmt.Printf("\n%s:\n", s.name)
		fmt.Printf("  Calls:    %d (%d failed)\n", s.totalCalls, s.failures)
		fmt.Printf("  Min:      %v\n", min)
		fmt.Printf("  Max:      %v\n", max)
		fmt.Printf("  Mean:     %v\n", mean)
		fmt.Printf("  Median:   %v\n", median)
	}
}

func main() {
	log.Info().Msg("Starting exchange simulation")

	w := buildWorld()
	collection := common.HexToAddress("0x000000000000000000000000000000000000c011")

	traders := make([]trader, numTraders)
	for i := range traders {
		traders[i] = newTrader()
		if err := w.ledger.Credit(common.Address{}, traders[i].address, startingFunds); err != nil {
			log.Fatal().Err(err).Msg("failed to fund trader")
		}
	}
	log.Info().Int("traders", numTraders).Msg("traders funded")

	w.runMatches(traders, collection)
	w.runFloorFlips(traders, collection)
	w.runAuction(traders, collection)

	w.printSummary()
	log.Info().Msg("Simulation complete")
}
