package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/oggyb/shaadimantra/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades an authenticated request. It must run behind auth.Gin.
// The handler blocks for the lifetime of the socket.
func (h *Hub) ServeWS() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := auth.FromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHORIZED", "message": auth.ErrMissingToken.Error()},
			})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Info("upgrade failed", "err", err)
			return
		}

		client := newClient(h, conn, p.UserID)
		if !h.add(client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(c.Request.Context())
	}
}
