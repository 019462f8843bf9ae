package lists

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes list inspection and manual reload endpoints.
type Handler struct {
	registry *Registry
	onReload func()
}

// NewHandler creates a lists handler. onReload runs after a successful
// manual reload; the server uses it to flush score caches so new
// memberships take effect immediately. May be nil.
func NewHandler(registry *Registry, onReload func()) *Handler {
	return &Handler{registry: registry, onReload: onReload}
}

// RegisterRoutes sets up list endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/lists", h.GetLists)
	r.POST("/lists/reload", h.PostReload)
}

// GetLists describes every loaded list.
// GET /v1/lists
func (h *Handler) GetLists(c *gin.Context) {
	snap := h.registry.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":  snap.Version,
		"loadedAt": snap.LoadedAt,
		"lists":    snap.Infos(),
	})
}

// PostReload forces an immediate reload of every list source.
// POST /v1/lists/reload
func (h *Handler) PostReload(c *gin.Context) {
	err := h.registry.Reload(c.Request.Context())
	snap := h.registry.Snapshot()

	if h.onReload != nil {
		h.onReload()
	}

	resp := gin.H{
		"version":  snap.Version,
		"loadedAt": snap.LoadedAt,
		"lists":    snap.Infos(),
	}
	if err != nil {
		// Partial reload: lists that failed kept their previous entries.
		resp["warning"] = err.Error()
		c.JSON(http.StatusMultiStatus, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
