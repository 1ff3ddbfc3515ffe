package handlers

import (
	"github.com/gin-gonic/gin"

	"prodflow/internal/domain/flow"
	"prodflow/internal/domain/order"
	"prodflow/internal/infrastructure/http/v1/dto"
)

// OrderHandler serves order intake, stage actions and read models.
type OrderHandler struct {
	*BaseHandler
	service *flow.Service
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(base *BaseHandler, service *flow.Service) *OrderHandler {
	return &OrderHandler{BaseHandler: base, service: service}
}

// Create handles POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	o, err := h.service.CreateOrder(c.Request.Context(), req.ToParams())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromOrder(o))
}

// List handles GET /orders
func (h *OrderHandler) List(c *gin.Context) {
	var q dto.ListOrdersQuery
	if !h.BindQuery(c, &q) {
		return
	}

	orders, err := h.service.ListOrders(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(dto.Map(orders, dto.FromOrder)))
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	o, err := h.service.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(o))
}

// Advance handles POST /orders/:id/actions
// The action table is chosen by the order's current facility.
func (h *OrderHandler) Advance(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ActionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	current, err := h.service.GetOrder(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	advance := h.service.AdvanceFacilityB
	if current.Track.Facility() == order.FacilityA {
		advance = h.service.AdvanceFacilityA
	}
	o, err := advance(ctx, orderID, order.Action(req.Action))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(o))
}

// Finalize handles POST /orders/:id/finalize
func (h *OrderHandler) Finalize(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.service.FinalizeOrder(ctx, orderID); err != nil {
		h.Error(c, err)
		return
	}
	o, err := h.service.GetOrder(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(o))
}

// Balance handles GET /orders/:id/balance
func (h *OrderHandler) Balance(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	view, err := h.service.GetBalance(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBalance(view))
}

// Movements handles GET /orders/:id/movements?limit=
func (h *OrderHandler) Movements(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	movements, err := h.service.ListMovements(c.Request.Context(), orderID, h.ParseIntQuery(c, "limit", 100))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(dto.Map(movements, dto.FromMovement)))
}

// RegisterRoutes mounts order routes on rg.
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/actions", h.Advance)
	rg.POST("/:id/finalize", h.Finalize)
	rg.GET("/:id/balance", h.Balance)
	rg.GET("/:id/movements", h.Movements)
}
