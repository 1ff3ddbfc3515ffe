package flow_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
	"prodflow/internal/infrastructure/storage/postgres"
)

type eventRow struct {
	ID          id.ID     `db:"id"`
	OrderID     id.ID     `db:"order_id"`
	Stage       string    `db:"stage"`
	QuantityPc  int64     `db:"quantity_pc"`
	QuantityKg  types.Kg  `db:"quantity_kg"`
	LotCode     string    `db:"lot_code"`
	ExternalLot string    `db:"external_lot"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
	Note        string    `db:"note"`
	Operator    string    `db:"operator"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

var eventColumns = postgres.Columns[eventRow]()

func eventToRow(e *production.Event) eventRow {
	return eventRow{
		ID:          e.ID,
		OrderID:     e.OrderID,
		Stage:       string(e.Stage),
		QuantityPc:  e.QuantityPc,
		QuantityKg:  e.QuantityKg,
		LotCode:     e.Lot.String(),
		ExternalLot: e.ExternalLot,
		StartedAt:   e.StartedAt,
		FinishedAt:  e.FinishedAt,
		Note:        e.Note,
		Operator:    e.Operator,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (r eventRow) toDomain() (production.Event, error) {
	lot, err := lotcode.Parse(r.LotCode)
	if err != nil {
		return production.Event{}, fmt.Errorf("event %s: %w", r.ID, err)
	}
	return production.Event{
		ID:          r.ID,
		OrderID:     r.OrderID,
		Stage:       order.GranularStage(r.Stage),
		QuantityPc:  r.QuantityPc,
		QuantityKg:  r.QuantityKg,
		Lot:         lot,
		ExternalLot: r.ExternalLot,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Note:        r.Note,
		Operator:    r.Operator,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// EventRepo implements production.Repository.
type EventRepo struct {
	base
}

var _ production.Repository = (*EventRepo)(nil)

// NewEventRepo creates the production ledger repository.
func NewEventRepo(txManager *postgres.TxManager) *EventRepo {
	return &EventRepo{base{txManager: txManager}}
}

// Append inserts a new event.
func (r *EventRepo) Append(ctx context.Context, e *production.Event) error {
	q := r.Builder().Insert(eventsTable).SetMap(postgres.StructToMap(eventToRow(e)))
	_, err := r.exec(ctx, q, "insert production event")
	return err
}

// List returns events oldest first.
func (r *EventRepo) List(ctx context.Context, f production.Filter) ([]production.Event, error) {
	var rows []eventRow
	if err := r.selectAll(ctx, &rows, r.listQuery(f), "production events"); err != nil {
		return nil, err
	}
	out := make([]production.Event, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *EventRepo) listQuery(f production.Filter) squirrel.SelectBuilder {
	q := r.Builder().Select(prefixed("e", eventColumns)...).From(eventsTable + " e")
	if f.Tool != "" {
		q = q.Join(ordersTable + " o ON o.id = e.order_id").Where(squirrel.Eq{"o.tool": f.Tool})
	}
	if !id.IsNil(f.OrderID) {
		q = q.Where(squirrel.Eq{"e.order_id": f.OrderID})
	}
	if len(f.Stages) > 0 {
		stages := make([]string, len(f.Stages))
		for i, s := range f.Stages {
			stages[i] = string(s)
		}
		q = q.Where(squirrel.Eq{"e.stage": stages})
	}
	return q.OrderBy("e.created_at", "e.id")
}

// Relabel moves the event only while it still sits at FromStage.
func (r *EventRepo) Relabel(ctx context.Context, rl production.Relabel) error {
	q := r.Builder().Update(eventsTable).
		Set("stage", string(rl.Stage)).
		Set("lot_code", rl.Lot.String()).
		Set("external_lot", rl.ExternalLot).
		Set("updated_at", rl.At).
		Where(squirrel.Eq{"id": rl.EventID}).
		Where(squirrel.Eq{"stage": string(rl.FromStage)})

	n, err := r.exec(ctx, q, "relabel production event")
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNoPendingLot(string(rl.FromStage), "").WithDetail("event_id", rl.EventID.String())
	}
	return nil
}
