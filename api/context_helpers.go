package api

import "context"

// OperatorFromCtx returns the operator stored by OperatorMiddleware.
func OperatorFromCtx(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok && op.ID != ""
}

// RequestedByFromCtx is the audit label of the caller, or "" outside an
// authenticated request.
func RequestedByFromCtx(ctx context.Context) string {
	if op, ok := OperatorFromCtx(ctx); ok {
		return op.Label()
	}
	return ""
}
