package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 15 * time.Second

// streamEvents relays bus events as Server-Sent Events until the client
// goes away or the bus closes.
func (h *Handler) streamEvents(c *gin.Context) {
	id, ch := h.Bus.Subscribe()
	defer h.Bus.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Kind), e)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now()})
			return true
		}
	})
}
