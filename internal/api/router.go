package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"smart-locker-backend/internal/metrics"
	"smart-locker-backend/internal/mw"
)

// RouterConfig holds the HTTP-level knobs.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
	Verifier        *mw.JWTVerifier
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(metrics.Instrument())

	limit := rate.Limit(cfg.RateLimitPerSec)
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)
	invalidate := mw.Invalidate(cacheStore)
	authenticate := mw.Authenticate(cfg.Verifier)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")

	device := api.Group("/device")
	device.Use(mw.RateLimiter(limit, cfg.RateLimitBurst, mw.DeviceKey), invalidate)
	{
		device.POST("/heartbeat", h.DeviceHeartbeat)
		device.POST("/status", h.DeviceStatus)
		device.GET("/open/:device_id", h.DevicePollOpen)
		device.GET("/status/query/:device_id", h.DevicePollStatusQuery)
	}

	public := api.Group("")
	public.Use(mw.RateLimiter(limit, cfg.RateLimitBurst, mw.ClientIP))
	{
		public.GET("/cabinets", caching, h.ListCabinets)
		public.GET("/cabinets/available", caching, h.ListAvailableCabinets)
		public.GET("/cabinets/:cabinet_id", h.GetCabinet)
		public.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	user := api.Group("")
	user.Use(mw.RateLimiter(limit, cfg.RateLimitBurst, mw.ClientIP), authenticate, invalidate)
	{
		user.POST("/orders", h.CreateOrder)
		user.GET("/orders", h.ListOrders)
		user.GET("/orders/:id", h.GetOrder)
		user.POST("/orders/:id/pay", h.PayOrder)
		user.POST("/orders/:id/extend", h.ExtendOrder)
		user.POST("/orders/:id/cancel", h.CancelOrder)
		user.POST("/orders/:id/complete", h.CompleteOrder)
		user.POST("/open/by-code", h.OpenByCode)

		user.GET("/subscriptions", h.GetSubscription)
		user.PUT("/subscriptions", h.PutSubscription)
		user.DELETE("/subscriptions", h.DeleteSubscription)
	}

	admin := api.Group("/admin")
	admin.Use(authenticate, mw.RequireAdmin(), invalidate)
	{
		admin.GET("/cabinets", h.AdminListCabinets)
		admin.POST("/cabinets", h.AdminCreateCabinet)
		admin.PUT("/cabinets/:cabinet_id", h.AdminUpdateCabinet)

		admin.GET("/devices", h.AdminListDevices)
		admin.POST("/devices", h.AdminCreateDevice)
		admin.GET("/devices/:device_id", h.AdminGetDevice)
		admin.PUT("/devices/:device_id", h.AdminUpdateDevice)
		admin.GET("/devices/:device_id/logs", h.AdminDeviceLogs)
		admin.POST("/devices/:device_id/open", h.AdminOpenCabinet)
		admin.POST("/devices/:device_id/query", h.AdminQueryStatus)

		admin.GET("/alerts", h.AdminAlerts)
		admin.GET("/orders", h.AdminListOrders)
		admin.GET("/orders/:id", h.AdminGetOrder)
		admin.POST("/users/:user_id/credit", h.AdminCreditUser)
	}

	return r
}
