package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/mw"
)

// orderView adds the cabinet's external code to an order.
type orderView struct {
	*model.Order
	CabinetCode string            `json:"cabinet_id"`
	CabinetSize model.CabinetSize `json:"cabinet_size,omitempty"`
}

func newOrderView(o *model.Order) orderView {
	v := orderView{Order: o}
	if o.Cabinet != nil {
		v.CabinetCode = o.Cabinet.Code
		v.CabinetSize = o.Cabinet.Size
	}
	return v
}

func orderViews(orders []model.Order) []orderView {
	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = newOrderView(&orders[i])
	}
	return views
}

type createOrderRequest struct {
	CabinetID     string  `json:"cabinet_id" binding:"required,max=20"`
	DurationHours float64 `json:"duration_hours" binding:"required,gte=0.5"`
}

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	o, err := h.orders.Create(c.Request.Context(), mw.UserID(c), req.CabinetID, req.DurationHours)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, newOrderView(o))
}

// ListOrders handles GET /api/orders?status=.
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListMine(c.Request.Context(), mw.UserID(c), model.OrderStatus(c.Query("status")))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, orderViews(orders))
}

// GetOrder handles GET /api/orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(c.Request.Context(), mw.UserID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, newOrderView(o))
}

type payOrderRequest struct {
	PaymentMethod model.PaymentMethod `json:"payment_method" binding:"required,oneof=wechat alipay balance"`
}

// PayOrder handles POST /api/orders/:id/pay.
func (h *Handler) PayOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req payOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	o, err := h.orders.Pay(c.Request.Context(), mw.UserID(c), id, req.PaymentMethod)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, newOrderView(o))
}

type extendOrderRequest struct {
	AdditionalHours float64 `json:"additional_hours" binding:"required,gte=0.5"`
}

// ExtendOrder handles POST /api/orders/:id/extend.
func (h *Handler) ExtendOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req extendOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	o, err := h.orders.Extend(c.Request.Context(), mw.UserID(c), id, req.AdditionalHours)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, newOrderView(o))
}

// CancelOrder handles POST /api/orders/:id/cancel.
func (h *Handler) CancelOrder(c *gin.Context) {
	h.transition(c, h.orders.Cancel)
}

// CompleteOrder handles POST /api/orders/:id/complete.
func (h *Handler) CompleteOrder(c *gin.Context) {
	h.transition(c, h.orders.Complete)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, userID, orderID int64) (*model.Order, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := fn(c.Request.Context(), mw.UserID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, newOrderView(o))
}

type openByCodeRequest struct {
	CabinetID  string `json:"cabinet_id" binding:"required,max=20"`
	PickupCode string `json:"pickup_code" binding:"required,len=6,numeric"`
}

// OpenByCode handles POST /api/open/by-code.
func (h *Handler) OpenByCode(c *gin.Context) {
	var req openByCodeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.sync.OpenByCode(c.Request.Context(), req.CabinetID, req.PickupCode)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}
