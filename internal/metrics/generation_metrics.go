package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("generation-metrics")

// GenerationMetrics provides metrics collection for the generation pipeline
// and its upstream calls.
type GenerationMetrics struct {
	generationsCompleted    metric.Int64Counter
	generationsFailed       metric.Int64Counter
	generationDuration      metric.Float64Histogram
	generationTokens        metric.Int64Histogram
	inferenceAttempts       metric.Int64Counter
	curationCacheHits       metric.Int64Counter
	curationCacheMisses     metric.Int64Counter
	curationDegraded        metric.Int64Counter
}

// NewGenerationMetrics creates a new generation metrics collector.
func NewGenerationMetrics() (*GenerationMetrics, error) {
	generationsCompleted, err := meter.Int64Counter(
		"apex.generations.completed",
		metric.WithDescription("Total number of generations completed successfully"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	generationsFailed, err := meter.Int64Counter(
		"apex.generations.failed",
		metric.WithDescription("Total number of generations that failed"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	generationDuration, err := meter.Float64Histogram(
		"apex.generation.duration",
		metric.WithDescription("Duration of one generation pipeline run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	generationTokens, err := meter.Int64Histogram(
		"apex.generation.tokens",
		metric.WithDescription("Completion tokens produced per generation"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	inferenceAttempts, err := meter.Int64Counter(
		"apex.inference.attempts",
		metric.WithDescription("Inference runtime call attempts, including retries"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	curationCacheHits, err := meter.Int64Counter(
		"apex.curation.cache_hits",
		metric.WithDescription("Curation cache hits"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	curationCacheMisses, err := meter.Int64Counter(
		"apex.curation.cache_misses",
		metric.WithDescription("Curation cache misses"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	curationDegraded, err := meter.Int64Counter(
		"apex.curation.degraded",
		metric.WithDescription("Curation calls that fell back to the raw prompt"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	return &GenerationMetrics{
		generationsCompleted: generationsCompleted,
		generationsFailed:    generationsFailed,
		generationDuration:   generationDuration,
		generationTokens:     generationTokens,
		inferenceAttempts:    inferenceAttempts,
		curationCacheHits:    curationCacheHits,
		curationCacheMisses:  curationCacheMisses,
		curationDegraded:     curationDegraded,
	}, nil
}

// RecordGenerationCompleted records one successful pipeline run.
func (gm *GenerationMetrics) RecordGenerationCompleted(ctx context.Context, kind, model string, duration time.Duration, tokens int) {
	if gm == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("model", model),
	)
	gm.generationsCompleted.Add(ctx, 1, attrs)
	gm.generationDuration.Record(ctx, duration.Seconds(), attrs)
	gm.generationTokens.Record(ctx, int64(tokens), attrs)
}

// RecordGenerationFailed records one failed pipeline run.
func (gm *GenerationMetrics) RecordGenerationFailed(ctx context.Context, kind, model, errorKind string, duration time.Duration) {
	if gm == nil {
		return
	}
	gm.generationsFailed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("model", model),
			attribute.String("error.kind", errorKind),
		),
	)
	gm.generationDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("model", model),
		),
	)
}

// RecordInferenceAttempt records one call attempt against the runtime.
func (gm *GenerationMetrics) RecordInferenceAttempt(ctx context.Context, model, status string) {
	if gm == nil {
		return
	}
	gm.inferenceAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("status", status),
		),
	)
}

// RecordCacheLookup records a curation cache hit or miss.
func (gm *GenerationMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if gm == nil {
		return
	}
	if hit {
		gm.curationCacheHits.Add(ctx, 1)
		return
	}
	gm.curationCacheMisses.Add(ctx, 1)
}

// RecordCurationDegraded records a curation call that returned the raw
// prompt unchanged.
func (gm *GenerationMetrics) RecordCurationDegraded(ctx context.Context) {
	if gm == nil {
		return
	}
	gm.curationDegraded.Add(ctx, 1)
}
