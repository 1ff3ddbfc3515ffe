package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperatorName(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, DefaultOperator, OperatorName(ctx))

	assert.Equal(t, "op-7", OperatorName(WithOperator(ctx, &Operator{ID: "op-7"})))
	assert.Equal(t, "Maria", OperatorName(WithOperator(ctx, &Operator{ID: "op-7", Name: "Maria"})))
	assert.Equal(t, DefaultOperator, OperatorName(WithOperator(ctx, &Operator{})))
}

func TestTrace_RoundTrip(t *testing.T) {
	ctx := WithTrace(context.Background(), &TraceContext{RequestID: "req-1"})
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "", GetRequestID(context.Background()))
}
