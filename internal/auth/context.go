package auth

import "context"

type contextKey string

const contextKeyOperator contextKey = "operator"

// WithOperator stores the authenticated operator on ctx.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, contextKeyOperator, op)
}

// OperatorFromContext returns the operator stored by Require.
func OperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(contextKeyOperator).(*Operator)
	return op, ok && op != nil
}
