package main

import (
	"context"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/seismic-labs/exchange-api/internal/auction"
	"github.com/seismic-labs/exchange-api/internal/auth"
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
	"github.com/seismic-labs/exchange-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func envInt64(key string, fallback int64) int64 {
	if raw := os.Getenv(key); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return value
		}
	}
	return fallback
}

func envAddress(key string, fallback common.Address) common.Address {
	if raw := os.Getenv(key); raw != "" {
		return common.HexToAddress(raw)
	}
	return fallback
}

// main initializes and runs the exchange API server with graceful shutdown
// support. It wires the matching engine, the auction house and their
// collaborators against a shared database.
func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "exchange.db"
	}

	// Initialize database
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	chainID := big.NewInt(envInt64("CHAIN_ID", 1))
	verifyingContract := envAddress("VERIFYING_CONTRACT", common.HexToAddress("0x0000000000000000000000000000000000000001"))
	feeRecipient := envAddress("FEE_RECIPIENT", common.HexToAddress("0x00000000000000000000000000000000000000fe"))

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService("seismic-secret-key")
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	ledgerService := ledger.NewService(db)
	registryService := registry.NewService(db)
	gate := features.NewGate(db, types.FeatureFlags(envInt64("GLOBAL_FEATURE_MASK", 0)))
	reputationService := reputation.NewService(db)
	radar := fraud.NewRadar(db)

	var royaltyRegistry fees.RoyaltyRegistry = fees.NoRoyaltyRegistry{}
	if bps := envInt64("DEFAULT_ROYALTY_BPS", 0); bps > 0 {
		royaltyRegistry = &fees.StaticRoyaltyRegistry{
			Recipient: envAddress("DEFAULT_ROYALTY_RECIPIENT", feeRecipient),
			Bps:       bps,
		}
	}

	feeEngine, err := fees.NewEngine(db, royaltyRegistry, ledgerService,
		envInt64("PROTOCOL_FEE_BPS", 250), feeRecipient)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize fee engine")
	}
	feeHandlers := fees.NewGinHandlers(feeEngine)
	featureHandlers := features.NewGinHandlers(gate)

	engine := match.NewEngine(db, match.Collaborators{
		Codec:      codec.New(chainID, verifyingContract),
		Verifier:   signature.NewVerifier(registryService, ledgerService),
		Validator:  validation.NewValidator(gate),
		Registry:   registryService,
		Fees:       feeEngine,
		Reputation: reputationService,
		Assets:     ledgerService,
		Payments:   ledgerService,
		Radar:      radar,
	}, match.Config{
		ReputationThreshold: envInt64("REPUTATION_THRESHOLD", 5),
	})
	matchHandlers := match.NewGinHandlers(engine)

	auctionService, err := auction.NewService(db, ledgerService, auction.Config{
		SellerFeeBps: envInt64("AUCTION_FEE_BPS", 250),
		Treasury:     envAddress("AUCTION_TREASURY", feeRecipient),
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize auction house")
	}
	auctionHandlers := auction.NewGinHandlers(auctionService)

	// Create and start auction sweeper
	auctionProcessor := auction.NewProcessor(auctionService)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go auctionProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, matchHandlers, auctionHandlers, feeHandlers, featureHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Order routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	matchHandlers *match.GinHandlers,
	auctionHandlers *auction.GinHandlers,
	feeHandlers *fees.GinHandlers,
	featureHandlers *features.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth())
		{
			orders.POST("/hash", matchHandlers.HashOrderHandler())
			orders.POST("/validate", matchHandlers.ValidateOrderHandler())
			orders.POST("/cancel", matchHandlers.CancelOrderHandler())
			orders.GET("/status/:digest", matchHandlers.OrderStatusHandler())
			orders.POST("/offers", matchHandlers.PlaceOfferHandler())
		}

		// Auction routes
		auctions := v1.Group("/auctions")
		auctions.Use(middleware.JWTAuth())
		{
			auctions.POST("", auctionHandlers.CreateAuctionHandler())
			auctions.GET("/:auction_id", auctionHandlers.GetAuctionHandler())
			auctions.POST("/:auction_id/bids", auctionHandlers.PlaceBidHandler())
			auctions.POST("/:auction_id/cancel", auctionHandlers.CancelAuctionHandler())
		}

		// Royalty configuration and feature flag queries
		royalties := v1.Group("/royalties")
		royalties.Use(middleware.JWTAuth())
		{
			royalties.POST("/get", feeHandlers.GetSmartRoyaltyHandler())
			royalties.POST("/set", feeHandlers.SetSmartRoyaltyHandler())
		}
		v1.GET("/features", featureHandlers.GetFlagsHandler())

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/match", matchHandlers.AtomicMatchHandler())
			internal.POST("/floor-flip", matchHandlers.FloorFlipHandler())
			internal.GET("/trades/:trade_id", matchHandlers.GetTradeHandler())
			internal.POST("/auctions/:auction_id/end", auctionHandlers.EndAuctionHandler())
			internal.POST("/features/global", featureHandlers.SetGlobalFlagsHandler())
			internal.POST("/features/user", featureHandlers.SetUserFlagsHandler())
		}
	}
}
