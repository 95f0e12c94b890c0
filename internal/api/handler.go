package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-civdef-map/internal/board"
	"github.com/mr1hm/go-civdef-map/internal/connectivity"
	"github.com/mr1hm/go-civdef-map/internal/describe"
	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/intel"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
	"github.com/mr1hm/go-civdef-map/internal/store"
	"github.com/mr1hm/go-civdef-map/internal/syncer"
)

type Deps struct {
	Markers      *store.MarkerStore
	Contacts     *store.ContactStore
	Inventory    *store.InventoryStore
	Coordinator  *syncer.Coordinator
	Connectivity *connectivity.Monitor
	Intel        *intel.Manager
	Board        *board.Board
	Describer    describe.Describer
	Bus          *events.Bus

	ShareBaseURL string
	AdminKey     string
}

type Handler struct {
	Deps
}

func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", metrics.Handler())

	a := r.Group("/api")

	a.GET("/markers", h.listMarkers)
	a.GET("/markers/:id", h.getMarker)
	a.POST("/markers", h.createMarker)
	a.POST("/markers/describe", h.describeMarker)
	a.PUT("/markers/:id", h.updateMarker)
	a.DELETE("/markers/:id", AdminMiddleware(h.AdminKey), h.deleteMarker)

	a.GET("/sync/pending", h.pendingMarkers)
	a.POST("/sync", h.runSync)
	a.POST("/sync/discard", h.discardMarkers)

	a.GET("/connectivity", h.getConnectivity)
	a.PUT("/connectivity", h.setConnectivity)

	a.GET("/contacts", h.listContacts)
	a.POST("/contacts", h.addContact)
	a.DELETE("/contacts/:id", h.removeContact)
	a.GET("/contacts/share", h.shareContacts)
	a.GET("/contacts/import", h.previewImport)
	a.POST("/contacts/import", h.importContacts)

	a.GET("/inventory", h.listInventory)
	a.POST("/inventory", h.addInventoryItem)
	a.POST("/inventory/:id/toggle", h.toggleInventoryItem)
	a.DELETE("/inventory/:id", h.removeInventoryItem)

	a.GET("/intel", h.getIntel)
	a.GET("/broadcasts", h.getBroadcasts)
	a.GET("/broadcasts/config", h.getBroadcastConfig)
	a.PUT("/broadcasts/config", h.setBroadcastConfig)

	a.GET("/messages", h.listMessages)
	a.POST("/messages", h.postMessage)

	a.GET("/events", h.streamEvents)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
