package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
	"smart-locker-backend/internal/syncproto"
)

func cabinetFilter(c *gin.Context) store.CabinetFilter {
	return store.CabinetFilter{
		Station: c.Query("station"),
		Size:    model.CabinetSize(c.Query("size")),
		Status:  model.CabinetStatus(c.Query("status")),
	}
}

// ListCabinets handles GET /api/cabinets.
func (h *Handler) ListCabinets(c *gin.Context) {
	cabinets, err := h.store.ListCabinets(c.Request.Context(), cabinetFilter(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, cabinets)
}

// ListAvailableCabinets handles GET /api/cabinets/available. Responses are cached briefly.
func (h *Handler) ListAvailableCabinets(c *gin.Context) {
	f := cabinetFilter(c)
	f.Status = model.CabinetAvailable
	cabinets, err := h.store.ListCabinets(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, cabinets)
}

type cabinetDetail struct {
	*model.Cabinet
	DeviceCode string                       `json:"device_id,omitempty"`
	LockState  syncproto.CachedCabinetState `json:"lock_state"`
}

func newCabinetDetail(cab *model.Cabinet) cabinetDetail {
	d := cabinetDetail{Cabinet: cab, LockState: syncproto.CachedState(cab)}
	if cab.Device != nil {
		d.DeviceCode = cab.Device.Code
	}
	return d
}

// GetCabinet handles GET /api/cabinets/:cabinet_id.
func (h *Handler) GetCabinet(c *gin.Context) {
	cab, err := h.store.GetCabinet(c.Request.Context(), c.Param("cabinet_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, newCabinetDetail(cab))
}

type createCabinetRequest struct {
	CabinetID    string              `json:"cabinet_id" binding:"required,max=20"`
	Size         model.CabinetSize   `json:"size" binding:"required,oneof=small medium large"`
	Location     string              `json:"location" binding:"max=100"`
	Station      string              `json:"station" binding:"required,max=50"`
	Status       model.CabinetStatus `json:"status" binding:"omitempty,oneof=available maintenance offline"`
	PricePerHour *model.Cents        `json:"price_per_hour"`
}

// defaultPricePerHour applies when a new cabinet has no price.
const defaultPricePerHour model.Cents = 200

// AdminCreateCabinet handles POST /api/admin/cabinets.
func (h *Handler) AdminCreateCabinet(c *gin.Context) {
	var req createCabinetRequest
	if !bindJSON(c, &req) {
		return
	}
	cab := &model.Cabinet{
		Code:         req.CabinetID,
		Size:         req.Size,
		Location:     req.Location,
		Station:      req.Station,
		Status:       req.Status,
		PricePerHour: defaultPricePerHour,
	}
	if req.PricePerHour != nil {
		cab.PricePerHour = *req.PricePerHour
	}
	if err := h.store.CreateCabinet(c.Request.Context(), cab); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, newCabinetDetail(cab))
}

type updateCabinetRequest struct {
	Status       *model.CabinetStatus `json:"status"`
	PricePerHour *model.Cents         `json:"price_per_hour"`
	Location     *string              `json:"location" binding:"omitempty,max=100"`
}

// AdminUpdateCabinet handles PUT /api/admin/cabinets/:cabinet_id.
func (h *Handler) AdminUpdateCabinet(c *gin.Context) {
	var req updateCabinetRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	cab, err := h.store.GetCabinet(ctx, c.Param("cabinet_id"))
	if err != nil {
		fail(c, err)
		return
	}
	err = h.store.UpdateCabinet(ctx, cab, store.CabinetUpdate{
		Status:       req.Status,
		PricePerHour: req.PricePerHour,
		Location:     req.Location,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, newCabinetDetail(cab))
}

// AdminListCabinets handles GET /api/admin/cabinets.
func (h *Handler) AdminListCabinets(c *gin.Context) {
	cabinets, err := h.store.ListCabinets(c.Request.Context(), cabinetFilter(c))
	if err != nil {
		fail(c, err)
		return
	}
	details := make([]cabinetDetail, len(cabinets))
	for i := range cabinets {
		details[i] = newCabinetDetail(&cabinets[i])
	}
	respond(c, http.StatusOK, details)
}
