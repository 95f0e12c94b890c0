package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-civdef-map/internal/board"
	"github.com/mr1hm/go-civdef-map/internal/intel"
	"github.com/mr1hm/go-civdef-map/internal/models"
)

func (h *Handler) getIntel(c *gin.Context) {
	r := h.Intel.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"zones":          zonesToGeoJSON(r.Zones),
		"headlines":      nonNil(r.Headlines),
		"defcon":         r.Defcon,
		"officialAlerts": nonNil(r.OfficialAlerts),
		"fallback":       r.Fallback,
		"updatedAt":      r.UpdatedAt,
	})
}

func (h *Handler) getBroadcasts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": nonNil(h.Intel.Broadcasts())})
}

func (h *Handler) listMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.Board.Messages()})
}

type postMessageRequest struct {
	Text   string `json:"text" binding:"required"`
	Urgent bool   `json:"urgent"`
}

func (h *Handler) postMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text required"})
		return
	}

	msg, err := h.Board.Post(c.Request.Context(), req.Text, req.Urgent)
	var rej *board.RejectedError
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, msg)
	case errors.As(err, &rej):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        "message rejected",
			"reason":       rej.Verdict.Reason,
			"suggestedFix": rej.Verdict.SuggestedFix,
		})
	case errors.Is(err, board.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (h *Handler) getBroadcastConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.Intel.BroadcastConfig())
}

type broadcastConfigRequest struct {
	Enabled   *bool                     `json:"enabled" binding:"required"`
	Frequency int                       `json:"frequency"`
	Types     []models.BroadcastChannel `json:"types"`
}

func (h *Handler) setBroadcastConfig(c *gin.Context) {
	var req broadcastConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	applied, err := h.Intel.SetBroadcastConfig(models.BroadcastConfig{
		Enabled:   *req.Enabled,
		Frequency: req.Frequency,
		Types:     req.Types,
	})
	if errors.Is(err, intel.ErrInvalidBroadcastConfig) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, applied)
}
