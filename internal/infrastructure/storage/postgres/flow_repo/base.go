// Package flow_repo provides PostgreSQL implementations of the order,
// production ledger and deduction repositories.
package flow_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"prodflow/internal/core/apperror"
	"prodflow/internal/infrastructure/storage/postgres"
)

const (
	ordersTable     = "mfg_orders"
	eventsTable     = "mfg_production_events"
	deductionsTable = "mfg_deductions"
)

// base carries what every repository needs.
type base struct {
	txManager *postgres.TxManager
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (base) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (b base) querier(ctx context.Context) postgres.Querier {
	return b.txManager.GetQuerier(ctx)
}

func (b base) exec(ctx context.Context, q squirrel.Sqlizer, what string) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", what, err)
	}
	tag, err := b.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.Classify(fmt.Errorf("%s: %w", what, err))
	}
	return tag.RowsAffected(), nil
}

// get scans exactly one row into dst. A missing row becomes NOT_FOUND.
func (b base) get(ctx context.Context, dst any, q squirrel.Sqlizer, entity string, key any) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Get(ctx, b.querier(ctx), dst, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(entity, key)
		}
		return postgres.Classify(fmt.Errorf("get %s: %w", entity, err))
	}
	return nil
}

func (b base) selectAll(ctx context.Context, dst any, q squirrel.Sqlizer, entity string) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, b.querier(ctx), dst, sql, args...); err != nil {
		return postgres.Classify(fmt.Errorf("select %s: %w", entity, err))
	}
	return nil
}

// prefixed qualifies columns with a table alias for joined queries.
func prefixed(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}
