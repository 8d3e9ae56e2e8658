// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package pool

import (
	"context"

	"github.com/vk/benchgrid/internal/run"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func startJobSpan(ctx context.Context, tracer trace.Tracer, d *run.Descriptor) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("run.id", d.Key()),
		attribute.String("run.campaign", d.Campaign()),
		attribute.String("run.outdir", d.OutputDir()),
	}
	for _, p := range d.Params() {
		attrs = append(attrs, attribute.String("run.param."+p.Axis, p.Value))
	}
	return tracer.Start(ctx, "pool.job", trace.WithAttributes(attrs...))
}

func finishJobSpan(span trace.Span, o *run.Outcome) {
	span.SetAttributes(
		attribute.String("run.status", string(o.Status)),
		attribute.Int("run.exit_code", o.ExitCode),
	)
	if o.Status != run.StatusSucceeded {
		span.SetStatus(codes.Error, o.Err)
	}
}
