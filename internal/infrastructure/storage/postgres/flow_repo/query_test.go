package flow_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
)

func TestOrderRepo_ListQuery(t *testing.T) {
	repo := NewOrderRepo(nil)

	tests := []struct {
		name     string
		filter   order.ListFilter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "no filter",
			filter:  order.ListFilter{},
			wantSQL: "FROM mfg_orders ORDER BY created_at DESC, id DESC",
		},
		{
			name:     "tool and status",
			filter:   order.ListFilter{Tool: "T-100", Status: order.StatusActive},
			wantSQL:  "FROM mfg_orders WHERE tool = $1 AND status = $2 ORDER BY created_at DESC, id DESC",
			wantArgs: []any{"T-100", "active"},
		},
		{
			name:     "facility with paging",
			filter:   order.ListFilter{Facility: order.FacilityB, Limit: 20, Offset: 40},
			wantSQL:  "FROM mfg_orders WHERE facility = $1 ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 40",
			wantArgs: []any{"B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.listQuery(tt.filter).ToSql()
			require.NoError(t, err)
			assert.Contains(t, sql, tt.wantSQL)
			if tt.wantArgs == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestOrderRepo_GetForUpdateLocksRow(t *testing.T) {
	repo := NewOrderRepo(nil)
	orderID := id.New()

	sql, args, err := repo.selectByID(orderID).Suffix("FOR UPDATE").ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE id = $1 FOR UPDATE")
	assert.Equal(t, []any{orderID.String()}, args)
}

func TestEventRepo_ListQuery_ToolJoin(t *testing.T) {
	repo := NewEventRepo(nil)
	orderID := id.New()

	sql, args, err := repo.listQuery(production.Filter{
		OrderID: orderID,
		Tool:    "T-100",
		Stages:  []order.GranularStage{order.StageAwaitingPackaging, order.StageShipToA},
	}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM mfg_production_events e JOIN mfg_orders o ON o.id = e.order_id")
	assert.Contains(t, sql, "WHERE o.tool = $1 AND e.order_id = $2 AND e.stage IN ($3,$4)")
	assert.Contains(t, sql, "ORDER BY e.created_at, e.id")
	assert.Equal(t, []any{"T-100", orderID.String(), string(order.StageAwaitingPackaging), string(order.StageShipToA)}, args)
}

func TestDeductionRepo_ListQuery_ExcludesReversed(t *testing.T) {
	repo := NewDeductionRepo(nil)
	eventID := id.New()

	sql, args, err := repo.listQuery(deduction.Filter{EventID: eventID}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE d.event_id = $1 AND d.reversed = $2")
	assert.Equal(t, []any{eventID.String(), false}, args)

	sql, _, err = repo.listQuery(deduction.Filter{EventID: eventID, IncludeReversed: true}).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "reversed =")
}

func TestRows_RoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 19, 14, 5, 0, 0, time.UTC)

	o, err := order.New(order.NewParams{
		Number: "OP-7", Tool: "T-100", OrderedPc: 100, OrderedKg: types.MustKg("25"), Facility: order.FacilityB,
	}, at)
	require.NoError(t, err)

	back, err := orderToRow(o).toDomain()
	require.NoError(t, err)
	assert.Equal(t, o.Track, back.Track)
	assert.Equal(t, o.AvailablePc, back.AvailablePc)
	assert.True(t, o.AvailableKg.Equal(back.AvailableKg))

	lot := lotcode.New("OP-7", lotcode.PurposeInspection, lotcode.BaseToken(at), 1, at)
	d := &deduction.Deduction{
		ID: id.New(), OrderID: o.ID, EventID: id.New(), LotCode: lot,
		Reason: deduction.ReasonSale, QuantityPc: 3, QuantityKg: types.MustKg("0.75"), CreatedAt: at,
	}
	row := deductionToRow(d)
	assert.Nil(t, row.ReversedBy)

	gotD, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, lot, gotD.LotCode)
	assert.Equal(t, "", gotD.ReversedBy)

	_, err = orderRow{Facility: "Z", Stage: "x"}.toDomain()
	assert.Error(t, err)
	_, err = eventRow{LotCode: "garbage"}.toDomain()
	assert.Error(t, err)
}
