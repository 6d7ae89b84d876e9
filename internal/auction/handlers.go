package auction

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/seismic-labs/exchange-api/internal/types"
	"github.com/seismic-labs/exchange-api/pkg/response"
)

// GinHandlers contains HTTP handlers for auction endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type createRequest struct {
	Authority    common.Address `json:"authority" binding:"required"`
	Asset        types.AssetRef `json:"asset" binding:"required"`
	PaymentToken common.Address `json:"payment_token"`
	MinimumPrice int64          `json:"minimum_price" binding:"required"`
	EndTime      int64          `json:"end_time" binding:"required"`
}

// CreateAuctionHandler handles POST requests to list an asset for auction
func (h *GinHandlers) CreateAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		auction, err := h.service.Create(req.Authority, req.Asset, req.PaymentToken, req.MinimumPrice, req.EndTime)
		if err != nil {
			if errors.Is(err, ErrNotOwner) {
				response.Forbidden(c, err.Error())
				return
			}
			response.BadRequest(c, err.Error())
			return
		}
		response.Success(c, auction)
	}
}

type bidRequest struct {
	Bidder common.Address `json:"bidder" binding:"required"`
	Amount int64          `json:"amount" binding:"required"`
}

// PlaceBidHandler handles POST requests to bid on an auction
// URL parameter: auction_id
func (h *GinHandlers) PlaceBidHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		bid, err := h.service.PlaceBid(c.Param("auction_id"), req.Bidder, req.Amount)
		if err != nil {
			switch {
			case errors.Is(err, ErrBidTooLow), errors.Is(err, ErrNotActive), errors.Is(err, ErrEnded):
				response.BadRequest(c, err.Error())
			default:
				response.Handle(c, nil, err)
			}
			return
		}
		response.Success(c, bid)
	}
}

// EndAuctionHandler handles POST requests to settle an ended auction
// URL parameter: auction_id
func (h *GinHandlers) EndAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settlement, err := h.service.End(c.Param("auction_id"))
		if err != nil {
			switch {
			case errors.Is(err, ErrNotEnded), errors.Is(err, ErrNotActive):
				response.BadRequest(c, err.Error())
			default:
				response.Handle(c, nil, err)
			}
			return
		}
		response.Success(c, settlement)
	}
}

type cancelAuctionRequest struct {
	Requester common.Address `json:"requester" binding:"required"`
}

// CancelAuctionHandler handles POST requests to cancel an active auction
// URL parameter: auction_id
func (h *GinHandlers) CancelAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cancelAuctionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.Cancel(c.Param("auction_id"), req.Requester); err != nil {
			switch {
			case errors.Is(err, ErrUnauthorized):
				response.Forbidden(c, err.Error())
			case errors.Is(err, ErrNotActive):
				response.BadRequest(c, err.Error())
			default:
				response.Handle(c, nil, err)
			}
			return
		}
		response.Success(c, gin.H{"cancelled": true})
	}
}

// GetAuctionHandler handles GET requests for auction status
// URL parameter: auction_id
func (h *GinHandlers) GetAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auction, err := h.service.Get(c.Param("auction_id"))
		response.Handle(c, auction, err)
	}
}
