package features

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/seismic-labs/exchange-api/internal/types"
	"github.com/seismic-labs/exchange-api/pkg/response"
)

// GinHandlers contains HTTP handlers for feature gate endpoints
type GinHandlers struct {
	gate *Gate
}

func NewGinHandlers(gate *Gate) *GinHandlers {
	return &GinHandlers{
		gate: gate,
	}
}

// GetFlagsHandler handles GET requests for the global capability mask
func (h *GinHandlers) GetFlagsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, gin.H{"global_mask": uint64(h.gate.GlobalMask())})
	}
}

type setGlobalRequest struct {
	Mask uint64 `json:"mask"`
}

// SetGlobalFlagsHandler handles POST requests to replace the global mask
func (h *GinHandlers) SetGlobalFlagsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setGlobalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		h.gate.SetGlobalFlags(types.FeatureFlags(req.Mask))
		response.Success(c, gin.H{"global_mask": req.Mask})
	}
}

type setUserRequest struct {
	Identity common.Address `json:"identity" binding:"required"`
	Mask     uint64         `json:"mask"`
}

// SetUserFlagsHandler handles POST requests to replace one identity's override
func (h *GinHandlers) SetUserFlagsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.gate.SetUserFlags(req.Identity, types.FeatureFlags(req.Mask)); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"identity": req.Identity.Hex(), "mask": req.Mask})
	}
}
