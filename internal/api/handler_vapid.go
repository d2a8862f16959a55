package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-locker-backend/internal/apperr"
)

// GetVAPIDPublicKey returns the VAPID public key to the client.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, envelope{
			Code:    http.StatusServiceUnavailable,
			Message: "vapid keys are not configured",
		})
		return
	}
	respond(c, http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}

// Healthz answers GET /healthz after pinging the database.
func (h *Handler) Healthz(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		fail(c, apperr.Internal(err, "database unavailable"))
		return
	}
	respond(c, http.StatusOK, gin.H{"status": "ok"})
}
