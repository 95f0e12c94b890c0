package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, h.Connectivity.Status())
}

type connectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// setConnectivity takes the browser's online/offline signal.
func (h *Handler) setConnectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "online flag required"})
		return
	}
	h.Connectivity.SetOnline(c.Request.Context(), *req.Online)
	c.JSON(http.StatusOK, h.Connectivity.Status())
}
