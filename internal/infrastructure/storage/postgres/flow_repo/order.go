package flow_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/order"
	"prodflow/internal/infrastructure/storage/postgres"
)

type orderRow struct {
	ID               id.ID      `db:"id"`
	Number           string     `db:"number"`
	Client           string     `db:"client"`
	Tool             string     `db:"tool"`
	OrderedPc        int64      `db:"ordered_pc"`
	OrderedKg        types.Kg   `db:"ordered_kg"`
	AvailablePc      int64      `db:"available_pc"`
	AvailableKg      types.Kg   `db:"available_kg"`
	ProducedPc       int64      `db:"produced_pc"`
	ProducedKg       types.Kg   `db:"produced_kg"`
	Facility         string     `db:"facility"`
	Stage            string     `db:"stage"`
	Status           string     `db:"status"`
	BalanceUpdatedAt time.Time  `db:"balance_updated_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
	FinalizedAt      *time.Time `db:"finalized_at"`
}

var orderColumns = postgres.Columns[orderRow]()

func orderToRow(o *order.Order) orderRow {
	return orderRow{
		ID:               o.ID,
		Number:           o.Number,
		Client:           o.Client,
		Tool:             o.Tool,
		OrderedPc:        o.OrderedPc,
		OrderedKg:        o.OrderedKg,
		AvailablePc:      o.AvailablePc,
		AvailableKg:      o.AvailableKg,
		ProducedPc:       o.ProducedPc,
		ProducedKg:       o.ProducedKg,
		Facility:         string(o.Track.Facility()),
		Stage:            o.Track.StageName(),
		Status:           string(o.Status),
		BalanceUpdatedAt: o.BalanceUpdatedAt,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		FinalizedAt:      o.FinalizedAt,
	}
}

func (r orderRow) toDomain() (*order.Order, error) {
	track, err := order.ParseTrack(r.Facility, r.Stage)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", r.ID, err)
	}
	return &order.Order{
		ID:               r.ID,
		Number:           r.Number,
		Client:           r.Client,
		Tool:             r.Tool,
		OrderedPc:        r.OrderedPc,
		OrderedKg:        r.OrderedKg,
		AvailablePc:      r.AvailablePc,
		AvailableKg:      r.AvailableKg,
		ProducedPc:       r.ProducedPc,
		ProducedKg:       r.ProducedKg,
		Track:            track,
		Status:           order.Status(r.Status),
		BalanceUpdatedAt: r.BalanceUpdatedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		FinalizedAt:      r.FinalizedAt,
	}, nil
}

// OrderRepo implements order.Repository.
type OrderRepo struct {
	base
}

var _ order.Repository = (*OrderRepo)(nil)

// NewOrderRepo creates the order repository.
func NewOrderRepo(txManager *postgres.TxManager) *OrderRepo {
	return &OrderRepo{base{txManager: txManager}}
}

// Create inserts o. A duplicate order number is CONFLICT.
func (r *OrderRepo) Create(ctx context.Context, o *order.Order) error {
	q := r.Builder().Insert(ordersTable).SetMap(postgres.StructToMap(orderToRow(o)))
	_, err := r.exec(ctx, q, "insert order")
	if apperror.Is(err, apperror.CodeConflict) {
		return apperror.NewConflict("order number already exists").WithDetail("number", o.Number)
	}
	return err
}

func (r *OrderRepo) selectByID(orderID id.ID) squirrel.SelectBuilder {
	return r.Builder().Select(orderColumns...).From(ordersTable).Where(squirrel.Eq{"id": orderID})
}

// Get reads an order without locking.
func (r *OrderRepo) Get(ctx context.Context, orderID id.ID) (*order.Order, error) {
	var row orderRow
	if err := r.get(ctx, &row, r.selectByID(orderID), "order", orderID); err != nil {
		return nil, err
	}
	return row.toDomain()
}

// GetForUpdate row-locks the order. Callers hold a transaction.
func (r *OrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*order.Order, error) {
	var row orderRow
	if err := r.get(ctx, &row, r.selectByID(orderID).Suffix("FOR UPDATE"), "order", orderID); err != nil {
		return nil, err
	}
	return row.toDomain()
}

// UpdateBalance writes balance, track and status when balance_updated_at
// still matches expected.
func (r *OrderRepo) UpdateBalance(ctx context.Context, o *order.Order, expected time.Time) error {
	row := orderToRow(o)
	q := r.Builder().Update(ordersTable).
		SetMap(map[string]any{
			"available_pc":       row.AvailablePc,
			"available_kg":       row.AvailableKg,
			"produced_pc":        row.ProducedPc,
			"produced_kg":        row.ProducedKg,
			"facility":           row.Facility,
			"stage":              row.Stage,
			"status":             row.Status,
			"balance_updated_at": row.BalanceUpdatedAt,
			"updated_at":         row.UpdatedAt,
			"finalized_at":       row.FinalizedAt,
		}).
		Where(squirrel.Eq{"id": o.ID}).
		Where(squirrel.Eq{"balance_updated_at": expected})

	n, err := r.exec(ctx, q, "update order balance")
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewConcurrencyConflict("order", o.ID)
	}
	return nil
}

// UpdateState writes track, status and finalized_at.
func (r *OrderRepo) UpdateState(ctx context.Context, o *order.Order) error {
	row := orderToRow(o)
	q := r.Builder().Update(ordersTable).
		SetMap(map[string]any{
			"facility":     row.Facility,
			"stage":        row.Stage,
			"status":       row.Status,
			"updated_at":   row.UpdatedAt,
			"finalized_at": row.FinalizedAt,
		}).
		Where(squirrel.Eq{"id": o.ID})

	n, err := r.exec(ctx, q, "update order state")
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("order", o.ID)
	}
	return nil
}

// List returns orders newest first.
func (r *OrderRepo) List(ctx context.Context, f order.ListFilter) ([]*order.Order, error) {
	var rows []orderRow
	if err := r.selectAll(ctx, &rows, r.listQuery(f), "orders"); err != nil {
		return nil, err
	}
	out := make([]*order.Order, 0, len(rows))
	for _, row := range rows {
		o, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *OrderRepo) listQuery(f order.ListFilter) squirrel.SelectBuilder {
	q := r.Builder().Select(orderColumns...).From(ordersTable)
	if f.Tool != "" {
		q = q.Where(squirrel.Eq{"tool": f.Tool})
	}
	if f.Facility != "" {
		q = q.Where(squirrel.Eq{"facility": string(f.Facility)})
	}
	if f.Status != "" {
		q = q.Where(squirrel.Eq{"status": string(f.Status)})
	}
	q = q.OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}
