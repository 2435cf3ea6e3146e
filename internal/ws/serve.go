package ws

import (
	"net/http"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/auth"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 处理 websocket 握手：认证失败直接拒绝升级，不产生半个会话；
// 认证通过后先在 Hub 登记身份，再开始处理任何事件。房间绑定不在
// 这里发生，由随后的 room:join 事件完成。
func Serve(g *Gateway, db *gorm.DB, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = auth.BearerToken(c)
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		user, err := auth.ResolveUser(db, token, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := NewClient(conn, user.ID, user.Username, user.DisplayName)
		g.hub.Register(client)
		log.Debug().Str("conn_id", client.ID).Uint("user_id", user.ID).Msg("ws connected")

		go client.writePump()
		client.readLoop(g.HandleMessage)
		g.Disconnect(client)
	}
}
