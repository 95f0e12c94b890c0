package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/store"
)

func (h *Handler) listInventory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"items":     nonNil(h.Inventory.All()),
		"readiness": h.Inventory.Readiness(),
	})
}

type addItemRequest struct {
	Name     string                   `json:"name" binding:"required"`
	Category models.InventoryCategory `json:"category"`
	Qty      int                      `json:"qty"`
}

func (h *Handler) addInventoryItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}

	it, err := h.Inventory.Add(c.Request.Context(), models.InventoryItem{Name: req.Name, Category: req.Category, Qty: req.Qty})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, it)
}

func (h *Handler) toggleInventoryItem(c *gin.Context) {
	it, err := h.Inventory.Toggle(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrItemNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, it)
}

func (h *Handler) removeInventoryItem(c *gin.Context) {
	if err := h.Inventory.Remove(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
