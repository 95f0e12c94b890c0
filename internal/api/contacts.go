package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/roster"
	"github.com/mr1hm/go-civdef-map/internal/store"
)

func (h *Handler) listContacts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"contacts": nonNil(h.Contacts.All())})
}

func (h *Handler) addContact(c *gin.Context) {
	var contact models.EmergencyContact
	if err := c.ShouldBindJSON(&contact); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	saved, err := h.Contacts.Add(c.Request.Context(), contact)
	if errors.Is(err, store.ErrDuplicateID) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *Handler) removeContact(c *gin.Context) {
	if err := h.Contacts.Remove(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) shareContacts(c *gin.Context) {
	contacts := h.Contacts.All()
	encoded, err := roster.Encode(contacts)
	if err != nil {
		slog.Error("error encoding roster", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode roster"})
		return
	}
	link, err := roster.ShareURL(h.ShareBaseURL, contacts)
	if err != nil {
		slog.Error("error building share link", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build share link"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roster": encoded, "url": link})
}

// previewImport decodes a roster link without merging anything.
func (h *Handler) previewImport(c *gin.Context) {
	contacts, err := roster.Decode(c.Query(roster.QueryParam))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

type importRequest struct {
	Contacts []models.EmergencyContact `json:"contacts" binding:"required"`
}

func (h *Handler) importContacts(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contacts required"})
		return
	}
	n, err := h.Contacts.Import(c.Request.Context(), req.Contacts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
