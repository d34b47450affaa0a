package graph

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startRunSpan starts a span for a whole graph run.
func (e *Executor) startRunSpan(ctx context.Context) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "graph.run")
	span.SetAttributes(
		attribute.String("agent.name", e.cfg.Name),
		attribute.Int("graph.limit", e.cfg.Limit),
	)
	return ctx, span
}

func (e *Executor) endRunSpan(span trace.Span, s *AgentState, err error) {
	span.SetAttributes(
		attribute.Int("graph.steps", s.Step),
		attribute.String("graph.final_node", string(s.Node)),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startNodeSpan starts a span for one node execution.
func (e *Executor) startNodeSpan(ctx context.Context, node Node, step int) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "node."+string(node))
	span.SetAttributes(
		attribute.String("node.name", string(node)),
		attribute.Int("node.step", step),
	)
	return ctx, span
}

func (e *Executor) endNodeSpan(span trace.Span, next Node, err error) {
	span.SetAttributes(attribute.String("node.next", string(next)))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
