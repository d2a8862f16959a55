package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/mw"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers a browser push subscription for the caller's pickup codes.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}

	sub := &model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		UserID:   mw.UserID(c),
	}
	if err := h.store.SaveSubscription(c.Request.Context(), sub); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"endpoint": sub.Endpoint})
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the caller's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.store.DeleteSubscription(c.Request.Context(), mw.UserID(c), req.Endpoint); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true // endpoints are compared undecoded
		}
	}
	return "", false
}

// GetSubscription reports whether an endpoint is registered for the caller.
// Without an endpoint it lists all of the caller's endpoints.
func (h *Handler) GetSubscription(c *gin.Context) {
	subs, err := h.store.ListSubscriptions(c.Request.Context(), mw.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}

	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok {
		endpoints := make([]string, len(subs))
		for i, s := range subs {
			endpoints[i] = s.Endpoint
		}
		respond(c, http.StatusOK, gin.H{"endpoints": endpoints})
		return
	}
	if raw == "" {
		fail(c, apperr.InvalidFields("invalid request", map[string]string{"endpoint": "is required"}))
		return
	}
	for _, s := range subs {
		if s.Endpoint == raw {
			respond(c, http.StatusOK, gin.H{"endpoint": s.Endpoint, "created_at": s.CreatedAt})
			return
		}
	}
	fail(c, apperr.NotFound("subscription not found"))
}
