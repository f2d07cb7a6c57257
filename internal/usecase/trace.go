package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var usecaseTracer = otel.Tracer("livefeed-updater/internal/usecase")

// startCycleSpan opens the root span of one poll cycle. The updater has no
// inbound requests, so every cycle starts its own trace.
func startCycleSpan(ctx context.Context, iteration int64) (context.Context, trace.Span) {
	return usecaseTracer.Start(ctx, "live_update.cycle",
		trace.WithNewRoot(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int64("live_update.iteration", iteration)),
	)
}

func finishCycleSpan(span trace.Span, report CycleReport) {
	span.SetAttributes(
		attribute.Int64("live_update.cycle", report.Cycle),
		attribute.String("live_update.outcome", string(report.Outcome)),
		attribute.Int("live_update.accepted", report.Accepted),
		attribute.Int("live_update.rejected", report.Rejected),
		attribute.Int("live_update.inserted", report.Merge.Inserted),
		attribute.Int("live_update.updated", report.Merge.Updated),
		attribute.Int("live_update.removed", report.Merge.Removed),
		attribute.Int("live_update.records", report.Records),
		attribute.Bool("live_update.persisted", report.Persisted),
	)
	if report.Err != nil {
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, report.Err.Error())
	}
	span.End()
}
