package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for the evaluation domain.
var (
	AttrModelID         = attribute.Key("unifiedaai.model.id")
	AttrEngineType      = attribute.Key("unifiedaai.engine.type")
	AttrVerdict         = attribute.Key("unifiedaai.verdict")
	AttrChainID         = attribute.Key("unifiedaai.chain.id")
	AttrDecisionRef     = attribute.Key("unifiedaai.decision.ref")
	AttrImpactAttribute = attribute.Key("unifiedaai.impact.attribute")
)

// EvaluationAttrs describes one evaluation run.
func EvaluationAttrs(modelID, engineType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrModelID.String(modelID),
		AttrEngineType.String(engineType),
	}
}

// ChainAttrs describes an operation scoped to one decision chain.
func ChainAttrs(chainID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrChainID.String(chainID),
	}
}

// ImpactAttrs describes one impact scan.
func ImpactAttrs(chainID, attributeName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrChainID.String(chainID),
		AttrImpactAttribute.String(attributeName),
	}
}

// AddSpanEvent attaches an event to the span in ctx, if any.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
