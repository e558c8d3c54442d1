package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// NewUpgrader accepts browser connections from the configured CORS origins.
// Requests without an Origin header (non-browser clients) are accepted too.
func NewUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// AnimationSocket subscribes the connection to every pipeline event until it
// disconnects.
func (h *Handlers) AnimationSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("AnimationSocket: WebSocket upgrade failed: %v", err)
		return
	}
	log.Debugf("AnimationSocket: Client connected from %s.", c.ClientIP())
	h.hub.HandleConnection(conn)
	log.Debugf("AnimationSocket: Client %s disconnected.", c.ClientIP())
}
