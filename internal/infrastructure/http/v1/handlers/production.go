package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"prodflow/internal/core/id"
	"prodflow/internal/domain/flow"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
	"prodflow/internal/infrastructure/http/v1/dto"
)

// ProductionHandler serves production recording and lot movement.
type ProductionHandler struct {
	*BaseHandler
	service *flow.Service
}

// NewProductionHandler creates a new production handler.
func NewProductionHandler(base *BaseHandler, service *flow.Service) *ProductionHandler {
	return &ProductionHandler{BaseHandler: base, service: service}
}

// Record handles POST /orders/:id/production
func (h *ProductionHandler) Record(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.RecordProductionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	events, err := h.service.RecordProduction(c.Request.Context(), req.ToRequest(orderID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.NewList(dto.Map(events, dto.FromEvent)))
}

// Events handles GET /orders/:id/events?stage=
func (h *ProductionHandler) Events(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var stages []order.GranularStage
	for _, s := range c.QueryArray("stage") {
		stages = append(stages, order.GranularStage(s))
	}

	events, err := h.service.ListEvents(c.Request.Context(), orderID, stages...)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(dto.Map(events, dto.FromEvent)))
}

type lotMove func(ctx context.Context, orderID id.ID, code lotcode.Code) (production.Event, error)

func (h *ProductionHandler) moveLot(move lotMove) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := h.ParamID(c, "id")
		if !ok {
			return
		}
		var req dto.LotRequest
		if !h.BindJSON(c, &req) {
			return
		}
		code, ok := h.ParseLotCode(c, req.LotCode)
		if !ok {
			return
		}

		e, err := move(c.Request.Context(), orderID, code)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.FromEvent(e))
	}
}

// ApproveAll handles POST /orders/:id/lots/approve-all
func (h *ProductionHandler) ApproveAll(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	events, err := h.service.ApproveAllInspection(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(dto.Map(events, dto.FromEvent)))
}

// ReopenAll handles POST /orders/:id/lots/reopen-all
func (h *ProductionHandler) ReopenAll(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReopenAllRequest
	if !h.BindJSON(c, &req) {
		return
	}

	events, err := h.service.ReopenAll(c.Request.Context(), orderID, order.GranularStage(req.Stage))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(dto.Map(events, dto.FromEvent)))
}

// RegisterRoutes mounts production routes on an order group.
func (h *ProductionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/production", h.Record)
	rg.GET("/:id/events", h.Events)

	lots := rg.Group("/:id/lots")
	lots.POST("/approve", h.moveLot(h.service.ApproveInspectionLot))
	lots.POST("/finalize-packaging", h.moveLot(h.service.FinalizePackagingLot))
	lots.POST("/reopen", h.moveLot(h.service.ReopenLot))
	lots.POST("/approve-all", h.ApproveAll)
	lots.POST("/reopen-all", h.ReopenAll)
}
