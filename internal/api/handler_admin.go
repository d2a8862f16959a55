package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smart-locker-backend/internal/alert"
	"smart-locker-backend/internal/apperr"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/order"
	"smart-locker-backend/internal/store"
)

// deviceView shows the derived status instead of the stored one.
type deviceView struct {
	*model.Device
	Status     model.DeviceStatus `json:"status"`
	Online     bool               `json:"online"`
	CabinetIDs []string           `json:"cabinet_ids"`
}

func (h *Handler) newDeviceView(d *model.Device, now time.Time) deviceView {
	return deviceView{
		Device:     d,
		Status:     d.EffectiveStatus(now, h.onlineWindow),
		Online:     d.IsOnline(now, h.onlineWindow),
		CabinetIDs: d.CabinetCodes(),
	}
}

type createDeviceRequest struct {
	DeviceID   string   `json:"device_id" binding:"required,max=50"`
	Name       string   `json:"name" binding:"max=100"`
	Station    string   `json:"station" binding:"required,max=50"`
	Location   string   `json:"location" binding:"max=100"`
	APIKey     string   `json:"api_key" binding:"max=64"`
	IsActive   *bool    `json:"is_active"`
	CabinetIDs []string `json:"cabinet_ids"`
}

// createdDevice is the only response that carries the api key.
type createdDevice struct {
	deviceView
	APIKey string `json:"api_key"`
}

// AdminCreateDevice handles POST /api/admin/devices.
func (h *Handler) AdminCreateDevice(c *gin.Context) {
	var req createDeviceRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	d := &model.Device{
		Code:     req.DeviceID,
		Name:     req.Name,
		Station:  req.Station,
		Location: req.Location,
		APIKey:   strings.TrimSpace(req.APIKey),
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := h.store.CreateDevice(ctx, d, req.CabinetIDs); err != nil {
		fail(c, err)
		return
	}
	created, err := h.store.GetDevice(ctx, d.Code)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, createdDevice{deviceView: h.newDeviceView(created, h.now()), APIKey: d.APIKey})
}

// AdminListDevices handles GET /api/admin/devices?station=&is_active=.
func (h *Handler) AdminListDevices(c *gin.Context) {
	f := store.DeviceFilter{Station: c.Query("station")}
	if raw := c.Query("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			fail(c, apperr.InvalidFields("invalid request", map[string]string{"is_active": "must be a boolean"}))
			return
		}
		f.IsActive = &active
	}
	devices, err := h.store.ListDevices(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	now := h.now()
	views := make([]deviceView, len(devices))
	for i := range devices {
		views[i] = h.newDeviceView(&devices[i], now)
	}
	respond(c, http.StatusOK, views)
}

// AdminGetDevice handles GET /api/admin/devices/:device_id.
func (h *Handler) AdminGetDevice(c *gin.Context) {
	d, err := h.store.GetDevice(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, h.newDeviceView(d, h.now()))
}

type updateDeviceRequest struct {
	Name       *string             `json:"name" binding:"omitempty,max=100"`
	Station    *string             `json:"station" binding:"omitempty,max=50"`
	Location   *string             `json:"location" binding:"omitempty,max=100"`
	IsActive   *bool               `json:"is_active"`
	Status     *model.DeviceStatus `json:"status"`
	CabinetIDs *[]string           `json:"cabinet_ids"`
}

// AdminUpdateDevice handles PUT /api/admin/devices/:device_id.
func (h *Handler) AdminUpdateDevice(c *gin.Context) {
	var req updateDeviceRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	d, err := h.store.GetDevice(ctx, c.Param("device_id"))
	if err != nil {
		fail(c, err)
		return
	}
	err = h.store.UpdateDevice(ctx, d, store.DeviceUpdate{
		Name:         req.Name,
		Station:      req.Station,
		Location:     req.Location,
		IsActive:     req.IsActive,
		Status:       req.Status,
		CabinetCodes: req.CabinetIDs,
	})
	if err != nil {
		fail(c, err)
		return
	}
	updated, err := h.store.GetDevice(ctx, d.Code)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, h.newDeviceView(updated, h.now()))
}

// AdminDeviceLogs handles GET /api/admin/devices/:device_id/logs?limit=.
func (h *Handler) AdminDeviceLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		fail(c, apperr.InvalidFields("invalid request", map[string]string{"limit": "must be between 1 and 1000"}))
		return
	}
	ctx := c.Request.Context()
	d, err := h.store.GetDevice(ctx, c.Param("device_id"))
	if err != nil {
		fail(c, err)
		return
	}
	logs, err := h.store.ListLogs(ctx, d.ID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, logs)
}

type operatorOpenRequest struct {
	CabinetID string `json:"cabinet_id" binding:"required,max=20"`
}

// AdminOpenCabinet handles POST /api/admin/devices/:device_id/open.
func (h *Handler) AdminOpenCabinet(c *gin.Context) {
	var req operatorOpenRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sync.OperatorOpen(c.Request.Context(), c.Param("device_id"), req.CabinetID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// AdminQueryStatus handles POST /api/admin/devices/:device_id/query.
func (h *Handler) AdminQueryStatus(c *gin.Context) {
	res, err := h.sync.DispatchStatusQuery(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

type alertsResponse struct {
	Alerts []alert.Alert       `json:"alerts"`
	Counts map[alert.Level]int `json:"counts"`
	Total  int                 `json:"total"`
}

// AdminAlerts handles GET /api/admin/alerts.
func (h *Handler) AdminAlerts(c *gin.Context) {
	alerts, err := h.alerts.Derive(c.Request.Context(), h.now())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, alertsResponse{Alerts: alerts, Counts: alert.Count(alerts), Total: len(alerts)})
}

// AdminListOrders handles GET /api/admin/orders?user_id=&status=&limit=.
func (h *Handler) AdminListOrders(c *gin.Context) {
	f := store.OrderFilter{Status: model.OrderStatus(c.Query("status"))}
	fields := map[string]string{}
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			fields["user_id"] = "must be a positive integer"
		}
		f.UserID = id
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			fields["limit"] = "must be a positive integer"
		}
		f.Limit = limit
	}
	if len(fields) > 0 {
		fail(c, apperr.InvalidFields("invalid request", fields))
		return
	}
	orders, err := h.orders.ListAll(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, orderViews(orders))
}

// AdminGetOrder handles GET /api/admin/orders/:id.
func (h *Handler) AdminGetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(c.Request.Context(), order.AnyUser, id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, newOrderView(o))
}

type creditRequest struct {
	Amount model.Cents `json:"amount" binding:"required,gt=0"`
}

// AdminCreditUser handles POST /api/admin/users/:user_id/credit.
func (h *Handler) AdminCreditUser(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	var req creditRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.EnsureUser(ctx, userID); err != nil {
		fail(c, err)
		return
	}
	u, err := h.store.CreditBalance(ctx, userID, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, u)
}
