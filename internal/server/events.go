package server

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/loykin/watchdog/internal/supervisor"
)

// eventBufferSize bounds the per-subscriber queue. A shell that stops
// reading drops events rather than blocking the supervisor.
const eventBufferSize = 256

// handleEvents streams supervisor events (status-changed, crash, log,
// max-restarts) to the client as server-sent events until it disconnects.
func (r *Router) handleEvents(c *gin.Context) {
	ch := make(chan supervisor.Event, eventBufferSize)
	unsubscribe := r.sup.OnEvent(func(e supervisor.Event) {
		select {
		case ch <- e:
		default: // slow consumer: drop
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		select {
		case e := <-ch:
			c.SSEvent(string(e.Type), e)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
