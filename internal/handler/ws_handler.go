package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/keyserver-api/internal/observability/logger"
	"github.com/yourusername/keyserver-api/internal/websocket"
)

// WSHandler подключает клиентов к потоку событий ключей
type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

// NewWSHandler создает обработчик WebSocket. allowedOrigins синхронизирован с CORS:
// пустой список, как и в CORS, разрешает любой origin.
func NewWSHandler(hub *websocket.Hub, allowedOrigins []string) *WSHandler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &WSHandler{
		hub: hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Не браузерный клиент (curl, keyctl, сервисы)
				if origin == "" || allowAll {
					return true
				}
				if _, ok := allowed[origin]; ok {
					return true
				}
				logger.L().Warn("websocket: rejected origin", zap.String("origin", origin))
				return false
			},
		},
	}
}

// HandleConnection апгрейдит соединение и регистрирует клиента в хабе
// GET /ws
func (h *WSHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой
		logger.From(c.Request.Context()).Debug("websocket upgrade failed", logger.Err(err))
		return
	}
	websocket.NewClient(h.hub, conn).StartPumps()
}
