package fees

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/seismic-labs/exchange-api/internal/types"
	"github.com/seismic-labs/exchange-api/pkg/response"
)

// GinHandlers contains HTTP handlers for royalty endpoints
type GinHandlers struct {
	engine *Engine
}

func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{
		engine: engine,
	}
}

type setRoyaltyRequest struct {
	Asset  types.AssetRef `json:"asset" binding:"required"`
	Setter common.Address `json:"setter" binding:"required"`
	Shares []RoyaltyShare `json:"shares" binding:"required"`
}

// SetSmartRoyaltyHandler handles POST requests to install a royalty split
func (h *GinHandlers) SetSmartRoyaltyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setRoyaltyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.engine.SetSmartRoyalty(req.Asset, req.Setter, req.Shares); err != nil {
			switch {
			case errors.Is(err, ErrNotAuthorized):
				response.Forbidden(c, err.Error())
			case errors.Is(err, ErrPercentageExceeded), errors.Is(err, ErrNoRecipients),
				errors.Is(err, ErrTooManyRecipients), errors.Is(err, ErrInvalidShare):
				response.BadRequest(c, err.Error())
			default:
				response.Handle(c, nil, err)
			}
			return
		}
		response.Success(c, gin.H{"asset": req.Asset.Key(), "recipients": len(req.Shares)})
	}
}

type getRoyaltyRequest struct {
	Asset types.AssetRef `json:"asset" binding:"required"`
}

// GetSmartRoyaltyHandler handles POST requests to read an asset's royalty split
func (h *GinHandlers) GetSmartRoyaltyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req getRoyaltyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		shares, err := h.engine.GetSmartRoyalty(req.Asset)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if shares == nil {
			response.NotFound(c, "no smart royalty set for asset")
			return
		}
		response.Success(c, shares)
	}
}
