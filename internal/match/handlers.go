package match

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/seismic-labs/exchange-api/internal/types"
)

// GinHandlers contains HTTP handlers for order matching endpoints
type GinHandlers struct {
	engine *Engine
}

// NewGinHandlers creates a new set of HTTP handlers for matching endpoints
func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{
		engine: engine,
	}
}

// respond mirrors pkg/response without importing it: pkg/response
// depends on this package for the error taxonomy.
func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondErr(c *gin.Context, err error) {
	status := 400
	switch CodeOf(err) {
	case CodeOrderAlreadyConsumed, CodeAlreadyTerminal:
		status = 409
	case CodeIdentityMismatch, CodeNotMaker, CodeNotOwnerOrApproved,
		CodeAssetFlagged, CodeReputationTooLow:
		status = 403
	case CodeNoMatchingOffer:
		status = 404
	case CodeInternal:
		status = 500
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   gin.H{"code": string(CodeOf(err)), "message": err.Error()},
	})
}

type matchRequest struct {
	Buy             types.SignedOrder `json:"buy" binding:"required"`
	Sell            types.SignedOrder `json:"sell" binding:"required"`
	AttachedPayment int64             `json:"attached_payment"`
}

// AtomicMatchHandler handles POST requests to match a signed buy/sell pair
func (h *GinHandlers) AtomicMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req matchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"success": false, "error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
			return
		}

		result, err := h.engine.AtomicMatch(req.Buy, req.Sell, req.AttachedPayment)
		if err != nil {
			respondErr(c, err)
			return
		}
		respond(c, 201, result)
	}
}

type cancelRequest struct {
	Order     types.Order    `json:"order" binding:"required"`
	Requester common.Address `json:"requester" binding:"required"`
}

// CancelOrderHandler handles POST requests to cancel an order
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cancelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"success": false, "error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
			return
		}

		digest, err := h.engine.CancelOrder(&req.Order, req.Requester)
		if err != nil {
			respondErr(c, err)
			return
		}
		respond(c, 200, gin.H{"digest": digest.Hex(), "cancelled": true})
	}
}

// HashOrderHandler handles POST requests to compute an order digest so
// external signers can produce signatures off-chain
func (h *GinHandlers) HashOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var order types.Order
		if err := c.ShouldBindJSON(&order); err != nil {
			c.JSON(400, gin.H{"success": false, "error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
			return
		}
		respond(c, 200, gin.H{"digest": h.engine.HashOrder(&order).Hex()})
	}
}

// ValidateOrderHandler handles POST requests for read-only parameter checks
func (h *GinHandlers) ValidateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var order types.Order
		if err := c.ShouldBindJSON(&order); err != nil {
			c.JSON(400, gin.H{"success": false, "error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
			return
		}

		if err := h.engine.ValidateOrderParameters(&order); err != nil {
			respond(c, 200, gin.H{"valid": false, "reason": err.Error()})
			return
		}
		respond(c, 200, gin.H{"valid": true})
	}
}

// OrderStatusHandler handles GET requests for a digest's terminal state
// URL parameter: digest
func (h *GinHandlers) OrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		digest := common.HexToHash(c.Param("digest"))
		terminal, err := h.engine.IsOrderFinalizedOrCancelled(digest)
		if err != nil {
			respondErr(c, newError(CodeInternal, "", err))
			return
		}
		respond(c, 200, gin.H{"digest": digest.Hex(), "terminal": terminal})
	}
}

// PlaceOfferHandler handles POST requests to index a standing offer
func (h *GinHandlers) PlaceOfferHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var offer types.SignedOrder
		if err := c.ShouldBindJSON(&offer); err != nil {
			c.JSON(400, gin.H{"success": false, "error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
			return
		}

		row, err := h.engine.PlaceOffer(offer)
		if err != nil {
			respondErr(c, err)
			return
		}
		respond(c, 201, row)
	}
}

// FloorFlipHandler handles POST requests to liquidate a sell order
// against the best standing offer
func (h *GinHandlers) FloorFlipHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sell types.SignedOrder
		if err := c.ShouldBindJSON(&sell); err != nil {
			c.JSON(400, gin.H{"success": false, "error": gin.H{"code": "BAD_REQUEST", "message": err.Error()}})
			return
		}

		result, err := h.engine.ExecuteFloorFlip(sell)
		if err != nil {
			respondErr(c, err)
			return
		}
		respond(c, 201, result)
	}
}

// GetTradeHandler handles GET requests for a settled trade
// URL parameter: trade_id
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.engine.GetTrade(c.Param("trade_id"))
		if err != nil {
			c.JSON(404, gin.H{"success": false, "error": gin.H{"code": "NOT_FOUND", "message": "trade not found"}})
			return
		}
		respond(c, 200, trade)
	}
}
