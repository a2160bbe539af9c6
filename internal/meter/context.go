package meter

import (
	"context"

	"github.com/pdfsuite/gateway/internal/plan"
)

// Decision is the request-scoped admission context produced by the gate and
// consumed by the proxy. It is discarded when the request completes.
type Decision struct {
	UserID   string // empty for anonymous traffic
	Email    string
	ClientIP string
	Tier     plan.Tier
	MaxPages int64 // 0 = unlimited
}

type contextKey string

const decisionKey contextKey = "decision"

// WithDecision attaches an admission decision to the context.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// GetDecision returns the admission decision attached by the gate, if any.
func GetDecision(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey).(Decision)
	return d, ok
}
