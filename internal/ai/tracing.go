package ai

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"auto-trade/internal/trace"
)

type tracedOracle struct {
	next Oracle
	name string
}

var _ Oracle = (*tracedOracle)(nil)

// WithTracing 为每次决策调用记录一个 span。
func WithTracing(next Oracle, name string) Oracle {
	if next == nil {
		return nil
	}
	return &tracedOracle{next: next, name: name}
}

func (t *tracedOracle) Decide(ctx context.Context, req Request) (Decision, error) {
	ctx, span := trace.StartSpan(ctx, "oracle.decide",
		attribute.String("oracle", t.name),
		attribute.String("kind", string(req.Kind)),
		attribute.String("symbol", req.Market.Symbol),
		attribute.Int("positions", len(req.Positions)),
	)

	decision, err := t.next.Decide(ctx, req)
	if err != nil {
		trace.EndWithError(span, err)
		return Decision{}, err
	}

	span.SetAttributes(
		attribute.String("action", string(decision.Headline())),
		attribute.Float64("confidence", decision.Confidence()),
		attribute.String("source", string(decision.Source)),
	)
	span.End()
	return decision, nil
}
