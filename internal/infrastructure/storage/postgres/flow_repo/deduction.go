package flow_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/infrastructure/storage/postgres"
)

type deductionRow struct {
	ID         id.ID      `db:"id"`
	OrderID    id.ID      `db:"order_id"`
	EventID    id.ID      `db:"event_id"`
	LotCode    string     `db:"lot_code"`
	Reason     string     `db:"reason"`
	QuantityPc int64      `db:"quantity_pc"`
	QuantityKg types.Kg   `db:"quantity_kg"`
	Note       string     `db:"note"`
	Operator   string     `db:"operator"`
	Reversed   bool       `db:"reversed"`
	ReversedAt *time.Time `db:"reversed_at"`
	ReversedBy *string    `db:"reversed_by"`
	CreatedAt  time.Time  `db:"created_at"`
}

var deductionColumns = postgres.Columns[deductionRow]()

func deductionToRow(d *deduction.Deduction) deductionRow {
	row := deductionRow{
		ID:         d.ID,
		OrderID:    d.OrderID,
		EventID:    d.EventID,
		LotCode:    d.LotCode.String(),
		Reason:     string(d.Reason),
		QuantityPc: d.QuantityPc,
		QuantityKg: d.QuantityKg,
		Note:       d.Note,
		Operator:   d.Operator,
		Reversed:   d.Reversed,
		ReversedAt: d.ReversedAt,
		CreatedAt:  d.CreatedAt,
	}
	if d.ReversedBy != "" {
		row.ReversedBy = &d.ReversedBy
	}
	return row
}

func (r deductionRow) toDomain() (deduction.Deduction, error) {
	lot, err := lotcode.Parse(r.LotCode)
	if err != nil {
		return deduction.Deduction{}, fmt.Errorf("deduction %s: %w", r.ID, err)
	}
	d := deduction.Deduction{
		ID:         r.ID,
		OrderID:    r.OrderID,
		EventID:    r.EventID,
		LotCode:    lot,
		Reason:     deduction.Reason(r.Reason),
		QuantityPc: r.QuantityPc,
		QuantityKg: r.QuantityKg,
		Note:       r.Note,
		Operator:   r.Operator,
		Reversed:   r.Reversed,
		ReversedAt: r.ReversedAt,
		CreatedAt:  r.CreatedAt,
	}
	if r.ReversedBy != nil {
		d.ReversedBy = *r.ReversedBy
	}
	return d, nil
}

// DeductionRepo implements deduction.Repository.
type DeductionRepo struct {
	base
}

var _ deduction.Repository = (*DeductionRepo)(nil)

// NewDeductionRepo creates the deduction repository.
func NewDeductionRepo(txManager *postgres.TxManager) *DeductionRepo {
	return &DeductionRepo{base{txManager: txManager}}
}

// Append inserts a new deduction.
func (r *DeductionRepo) Append(ctx context.Context, d *deduction.Deduction) error {
	q := r.Builder().Insert(deductionsTable).SetMap(postgres.StructToMap(deductionToRow(d)))
	_, err := r.exec(ctx, q, "insert deduction")
	return err
}

// Get reads one deduction.
func (r *DeductionRepo) Get(ctx context.Context, deductionID id.ID) (*deduction.Deduction, error) {
	q := r.Builder().Select(deductionColumns...).From(deductionsTable).Where(squirrel.Eq{"id": deductionID})

	var row deductionRow
	if err := r.get(ctx, &row, q, "deduction", deductionID.String()); err != nil {
		return nil, err
	}
	d, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// List returns deductions oldest first.
func (r *DeductionRepo) List(ctx context.Context, f deduction.Filter) ([]deduction.Deduction, error) {
	var rows []deductionRow
	if err := r.selectAll(ctx, &rows, r.listQuery(f), "deductions"); err != nil {
		return nil, err
	}
	out := make([]deduction.Deduction, 0, len(rows))
	for _, row := range rows {
		d, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *DeductionRepo) listQuery(f deduction.Filter) squirrel.SelectBuilder {
	q := r.Builder().Select(prefixed("d", deductionColumns)...).From(deductionsTable + " d")
	if f.Tool != "" {
		q = q.Join(ordersTable + " o ON o.id = d.order_id").Where(squirrel.Eq{"o.tool": f.Tool})
	}
	if !id.IsNil(f.OrderID) {
		q = q.Where(squirrel.Eq{"d.order_id": f.OrderID})
	}
	if !id.IsNil(f.EventID) {
		q = q.Where(squirrel.Eq{"d.event_id": f.EventID})
	}
	if !f.IncludeReversed {
		q = q.Where(squirrel.Eq{"d.reversed": false})
	}
	return q.OrderBy("d.created_at", "d.id")
}

// MarkReversed flips the flag once. A second reversal is CONFLICT.
func (r *DeductionRepo) MarkReversed(ctx context.Context, deductionID id.ID, by string, at time.Time) error {
	q := r.Builder().Update(deductionsTable).
		Set("reversed", true).
		Set("reversed_at", at).
		Set("reversed_by", by).
		Where(squirrel.Eq{"id": deductionID}).
		Where(squirrel.Eq{"reversed": false})

	n, err := r.exec(ctx, q, "reverse deduction")
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// Distinguish a missing row from one already reversed.
	if _, err := r.Get(ctx, deductionID); err != nil {
		return err
	}
	return apperror.NewConflict("deduction is already reversed").
		WithDetail("deduction_id", deductionID.String())
}
