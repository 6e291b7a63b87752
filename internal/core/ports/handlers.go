package ports

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	ListStreamers(c *gin.Context)
	GetStreamer(c *gin.Context)
	GetSnapshot(c *gin.Context)
	ListWatchlist(c *gin.Context)
	AddToWatchlist(c *gin.Context)
	RemoveFromWatchlist(c *gin.Context)
}

type WebSocketHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}
