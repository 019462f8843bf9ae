package scoring

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletscope/internal/features"
	"github.com/mbd888/walletscope/internal/idgen"
	"github.com/mbd888/walletscope/internal/rules"
	"github.com/mbd888/walletscope/internal/validation"
)

// Handler provides the scoring HTTP endpoints.
type Handler struct {
	service        *Service
	defaultNetwork string
	batchSize      int
}

// NewHandler creates a scoring handler. batchSize caps addresses per
// batch request.
func NewHandler(service *Service, defaultNetwork string, batchSize int) *Handler {
	if defaultNetwork == "" {
		defaultNetwork = "ethereum"
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Handler{service: service, defaultNetwork: defaultNetwork, batchSize: batchSize}
}

// RegisterRoutes sets up scoring endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/score", validation.AddressQueryMiddleware(), h.GetScore)
	r.GET("/neighbors", validation.AddressQueryMiddleware(), h.GetNeighbors)
	r.POST("/score/batch", h.PostBatch)
}

type explainBlock struct {
	Version         string                     `json:"version"`
	BaseScore       float64                    `json:"baseScore"`
	RawContribution float64                    `json:"rawContribution"`
	Score           int                        `json:"score"`
	Confidence      float64                    `json:"confidence"`
	Parts           []rules.FactorContribution `json:"parts"`
	Signals         features.Vector            `json:"signals"`
}

// GetScore returns the risk score for a single address.
// GET /v1/score?address=0x...&network=ethereum&explain=true
func (h *Handler) GetScore(c *gin.Context) {
	address := c.Query("address")
	network := h.network(c)

	result, err := h.service.Score(c.Request.Context(), network, address)
	if err != nil {
		h.renderError(c, err)
		return
	}

	resp := gin.H{
		"address":    result.Address,
		"network":    result.Network,
		"score":      result.Score,
		"blocked":    result.Blocked,
		"reasons":    result.Reasons,
		"degraded":   result.Degraded,
		"confidence": result.Confidence,
		"cachedAt":   result.CachedAt,
	}
	if len(result.SanctionHits) > 0 {
		resp["sanctionHits"] = result.SanctionHits
	}
	if c.Query("explain") == "true" {
		resp["explain"] = explainBlock{
			Version:         h.service.Engine().Weights().Version,
			BaseScore:       result.BaseScore,
			RawContribution: result.RawContribution,
			Score:           result.Score,
			Confidence:      result.Confidence,
			Parts:           result.Factors,
			Signals:         result.Features,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetNeighbors returns the 1-hop counterparty graph for an address.
// GET /v1/neighbors?address=0x...&network=ethereum&limit=50
func (h *Handler) GetNeighbors(c *gin.Context) {
	address := c.Query("address")
	network := h.network(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	view, err := h.service.Neighbors(c.Request.Context(), network, address, limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// BatchRequest is the body of a batch scoring request.
type BatchRequest struct {
	Addresses []string `json:"addresses"`
	Network   string   `json:"network"`
}

// PostBatch scores up to batchSize addresses in one call.
// POST /v1/score/batch
func (h *Handler) PostBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'addresses' array",
		})
		return
	}
	if len(req.Addresses) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "At least one address is required",
		})
		return
	}
	if len(req.Addresses) > h.batchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "too_many_addresses",
			"message": "Maximum " + strconv.Itoa(h.batchSize) + " addresses per batch request",
		})
		return
	}

	network := req.Network
	if network == "" {
		network = h.defaultNetwork
	}

	items := h.service.ScoreBatch(c.Request.Context(), network, req.Addresses)

	succeeded := 0
	for _, item := range items {
		if item.Error == "" {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"batchId": idgen.WithPrefix("batch_"),
		"network": network,
		"results": items,
		"counts": gin.H{
			"total":     len(items),
			"succeeded": succeeded,
			"failed":    len(items) - succeeded,
		},
	})
}

func (h *Handler) network(c *gin.Context) string {
	if n := c.Query("network"); n != "" {
		return n
	}
	return h.defaultNetwork
}

func (h *Handler) renderError(c *gin.Context, err error) {
	if errors.Is(err, ErrInvalidAddress) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid hex address (0x + 40 hex chars)",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "scoring failed",
	})
}
