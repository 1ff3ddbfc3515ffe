package context

import (
	"context"
)

// DefaultOperator is recorded when a request carries no operator identity.
const DefaultOperator = "Operador"

// Operator identifies the person performing a shop-floor action.
// Identity is trusted as supplied by the calling frontend.
type Operator struct {
	ID   string
	Name string
}

type operatorContextKey struct{}

// WithOperator adds Operator to context.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// GetOperator returns Operator from context.
func GetOperator(ctx context.Context) *Operator {
	if v, ok := ctx.Value(operatorContextKey{}).(*Operator); ok {
		return v
	}
	return nil
}

// OperatorName returns the display name stored on movements and events.
// Falls back to the operator id, then to DefaultOperator.
func OperatorName(ctx context.Context) string {
	op := GetOperator(ctx)
	switch {
	case op == nil:
		return DefaultOperator
	case op.Name != "":
		return op.Name
	case op.ID != "":
		return op.ID
	default:
		return DefaultOperator
	}
}
