package handlers

import (
	"github.com/gin-gonic/gin"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/flow"
	"prodflow/internal/infrastructure/http/v1/dto"
)

// StockHandler serves stock deductions and product stock.
type StockHandler struct {
	*BaseHandler
	service *flow.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *flow.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, service: service}
}

// Deduct handles POST /orders/:id/deductions
func (h *StockHandler) Deduct(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.DeductRequest
	if !h.BindJSON(c, &body) {
		return
	}
	req, err := body.ToRequest(orderID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid lot code").WithDetail("lot_code", body.LotCode))
		return
	}

	d, err := h.service.DeductStock(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDeduction(*d))
}

// List handles GET /orders/:id/deductions?lot_code=|event_id=
// Reversed deductions are included and flagged.
func (h *StockHandler) List(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var (
		deductions []deduction.Deduction
		err        error
	)
	switch {
	case c.Query("lot_code") != "":
		code, ok := h.ParseLotCode(c, c.Query("lot_code"))
		if !ok {
			return
		}
		deductions, err = h.service.ListLotDeductions(ctx, orderID, code)
	default:
		filter := deduction.Filter{OrderID: orderID}
		if raw := c.Query("event_id"); raw != "" {
			eventID, perr := id.Parse(raw)
			if perr != nil {
				h.Error(c, apperror.NewValidation("invalid event_id format"))
				return
			}
			filter.EventID = eventID
		}
		deductions, err = h.service.ListDeductions(ctx, filter)
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(dto.Map(deductions, dto.FromDeduction)))
}

// Reverse handles POST /deductions/:id/reverse
func (h *StockHandler) Reverse(c *gin.Context) {
	deductionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.service.ReverseDeduction(c.Request.Context(), deductionID); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "deduction reversed")
}

// ProductStock handles GET /products/:tool/stock
func (h *StockHandler) ProductStock(c *gin.Context) {
	stock, err := h.service.ProductStock(c.Request.Context(), c.Param("tool"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProductStock(stock))
}

// RegisterRoutes mounts stock routes under /api/v1.
func (h *StockHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/orders/:id/deductions", h.Deduct)
	api.GET("/orders/:id/deductions", h.List)
	api.POST("/deductions/:id/reverse", h.Reverse)
	api.GET("/products/:tool/stock", h.ProductStock)
}
