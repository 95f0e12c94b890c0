package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-civdef-map/internal/describe"
	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/store"
	"github.com/mr1hm/go-civdef-map/internal/syncer"
)

func (h *Handler) listMarkers(c *gin.Context) {
	status := models.VerificationStatus(c.Query("status"))
	typ := models.MarkerType(c.Query("type"))

	all := h.Markers.All()
	markers := make([]models.Marker, 0, len(all))
	for _, m := range all {
		if status != "" && m.VerificationStatus != status {
			continue
		}
		if typ != "" && m.Type != typ {
			continue
		}
		markers = append(markers, m)
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, markersToGeoJSON(markers))
}

func (h *Handler) getMarker(c *gin.Context) {
	m, ok := h.Markers.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "marker not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) createMarker(c *gin.Context) {
	var d syncer.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	d.ID = ""
	h.submit(c, d, http.StatusCreated)
}

func (h *Handler) updateMarker(c *gin.Context) {
	var d syncer.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	d.ID = c.Param("id")
	h.submit(c, d, http.StatusOK)
}

func (h *Handler) submit(c *gin.Context, d syncer.Draft, okStatus int) {
	res, err := h.Coordinator.Submit(c.Request.Context(), d)
	switch {
	case errors.Is(err, syncer.ErrInvalidDraft), errors.Is(err, store.ErrInvalidPosition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "marker not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save marker"})
		return
	}

	if res.Outcome == syncer.OutcomeRejected {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        "submission rejected",
			"reason":       res.Verdict.Reason,
			"suggestedFix": res.Verdict.SuggestedFix,
		})
		return
	}
	c.JSON(okStatus, res)
}

func (h *Handler) deleteMarker(c *gin.Context) {
	if h.Markers.Remove(c.Request.Context(), c.Param("id")) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "marker not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) pendingMarkers(c *gin.Context) {
	pending := h.Coordinator.Pending()
	if pending == nil {
		pending = []models.Marker{}
	}
	c.JSON(http.StatusOK, gin.H{
		"markers": pending,
		"syncing": h.Coordinator.Syncing(),
	})
}

type syncRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) runSync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if !h.Connectivity.Online() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "offline, sync unavailable"})
		return
	}

	sum, err := h.Coordinator.Sync(c.Request.Context(), req.IDs)
	if errors.Is(err, syncer.ErrSyncInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

type discardRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (h *Handler) discardMarkers(c *gin.Context) {
	var req discardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids required"})
		return
	}
	n := h.Coordinator.Discard(c.Request.Context(), req.IDs)
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

type describeRequest struct {
	Name     string              `json:"name" binding:"required,max=80"`
	Position *models.Coordinates `json:"position" binding:"required"`
}

func (h *Handler) describeMarker(c *gin.Context) {
	var req describeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and position required"})
		return
	}
	if !req.Position.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": store.ErrInvalidPosition.Error()})
		return
	}
	if !h.Connectivity.Online() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "offline"})
		return
	}

	text, err := h.Describer.Describe(c.Request.Context(), req.Name, *req.Position)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "description unavailable", "description": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"description": text, "degraded": text == describe.Unavailable})
}
