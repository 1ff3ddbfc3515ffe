package dto

import (
	"time"

	"prodflow/internal/core/types"
	"prodflow/internal/domain/order"
)

// CreateOrderRequest is the intake payload.
type CreateOrderRequest struct {
	Number    string   `json:"number" binding:"required,max=64"`
	Client    string   `json:"client" binding:"max=200"`
	Tool      string   `json:"tool" binding:"max=200"`
	OrderedPc int64    `json:"ordered_pc" binding:"required,gt=0"`
	OrderedKg types.Kg `json:"ordered_kg"`
	Facility  string   `json:"facility" binding:"required,oneof=A B"`
}

// ToParams converts to domain params.
func (r CreateOrderRequest) ToParams() order.NewParams {
	return order.NewParams{
		Number:    r.Number,
		Client:    r.Client,
		Tool:      r.Tool,
		OrderedPc: r.OrderedPc,
		OrderedKg: r.OrderedKg,
		Facility:  order.Facility(r.Facility),
	}
}

// ActionRequest triggers an order-level stage action.
type ActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// ListOrdersQuery filters GET /orders.
type ListOrdersQuery struct {
	PaginationRequest
	Tool     string `form:"tool"`
	Facility string `form:"facility" binding:"omitempty,oneof=A B"`
	Status   string `form:"status" binding:"omitempty,oneof=active finalized"`
}

// ToFilter converts to the repository filter.
func (q ListOrdersQuery) ToFilter() order.ListFilter {
	q.Defaults()
	return order.ListFilter{
		Tool:     q.Tool,
		Facility: order.Facility(q.Facility),
		Status:   order.Status(q.Status),
		Limit:    q.PageSize,
		Offset:   q.Offset(),
	}
}

// OrderResponse is an order with its balance.
type OrderResponse struct {
	ID          string     `json:"id"`
	Number      string     `json:"number"`
	Client      string     `json:"client"`
	Tool        string     `json:"tool"`
	Facility    string     `json:"facility"`
	Stage       string     `json:"stage"`
	Status      string     `json:"status"`
	OrderedPc   int64      `json:"ordered_pc"`
	OrderedKg   string     `json:"ordered_kg"`
	AvailablePc int64      `json:"available_pc"`
	AvailableKg string     `json:"available_kg"`
	ProducedPc  int64      `json:"produced_pc"`
	ProducedKg  string     `json:"produced_kg"`
	Actions     []string   `json:"actions"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// FromOrder maps an order. Actions are empty once finalized.
func FromOrder(o *order.Order) OrderResponse {
	actions := []string{}
	if !o.IsFinalized() {
		for _, a := range order.Available(o.Track) {
			actions = append(actions, string(a))
		}
	}
	return OrderResponse{
		ID:          o.ID.String(),
		Number:      o.Number,
		Client:      o.Client,
		Tool:        o.Tool,
		Facility:    string(o.Track.Facility()),
		Stage:       o.Track.StageName(),
		Status:      string(o.Status),
		OrderedPc:   o.OrderedPc,
		OrderedKg:   Kg(o.OrderedKg),
		AvailablePc: o.AvailablePc,
		AvailableKg: Kg(o.AvailableKg),
		ProducedPc:  o.ProducedPc,
		ProducedKg:  Kg(o.ProducedKg),
		Actions:     actions,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		FinalizedAt: o.FinalizedAt,
	}
}
