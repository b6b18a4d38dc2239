package inference

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/academic-apex/apex-strategist/internal/config"
	"github.com/academic-apex/apex-strategist/internal/metrics"
	"github.com/academic-apex/apex-strategist/internal/models"
)

// GenerateOptions are the per-call sampling options. Pointer fields
// distinguish "not set" from zero; unset fields fall back to runtime
// defaults. Timeout overrides the configured per-attempt timeout when
// positive.
type GenerateOptions struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Generation is the successful outcome of a generate call.
type Generation struct {
	Text         string
	Model        string
	TokenCount   int
	PromptTokens int
}

// Client is the resilient interface to the local inference runtime. Errors
// returned by Generate and ListModels always carry a *models.ErrorInfo
// classification.
type Client interface {
	// TestConnection issues a lightweight liveness probe. It fails closed:
	// any network or protocol error yields false, never an error.
	TestConnection(ctx context.Context) bool
	// ListModels returns the models the runtime reports. A reachable runtime
	// with zero models yields an empty slice and no error.
	ListModels(ctx context.Context) ([]string, error)
	// Generate performs one generation with bounded retry on transient
	// failures. Structural failures (ModelNotFound, InvalidResponse) are
	// never retried.
	Generate(ctx context.Context, prompt, model string, opts GenerateOptions) (*Generation, error)
	// GenerateStream streams chunks through fn. A single attempt is made:
	// chunks already delivered cannot be unsent, so replaying after a
	// mid-stream failure would duplicate output.
	GenerateStream(ctx context.Context, prompt, model string, opts GenerateOptions, fn func(chunk string) error) (*Generation, error)
}

// generateInput is the clamped request handed to a transport.
type generateInput struct {
	Prompt      string
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

// transport is one wire protocol to an inference runtime. Implementations
// classify every failure as a *models.ErrorInfo before returning it.
type transport interface {
	name() string
	ping(ctx context.Context) error
	listModels(ctx context.Context) ([]string, error)
	generate(ctx context.Context, in generateInput) (*Generation, error)
	generateStream(ctx context.Context, in generateInput, fn func(chunk string) error) (*Generation, error)
}

// RuntimeClient wraps a transport with timeouts, clamping, bounded retry
// with exponential backoff and jitter, and a circuit breaker.
type RuntimeClient struct {
	transport        transport
	defaultModel     string
	generateTimeout  time.Duration
	probeTimeout     time.Duration
	maxAttempts      int
	backoffBase      time.Duration
	backoffCap       time.Duration
	maxTokensCeiling int
	breaker          *gobreaker.CircuitBreaker
	tracer           trace.Tracer
	metrics          *metrics.GenerationMetrics

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a RuntimeClient for the configured backend, mirroring
// the curator/runtime split: the curation service talks to its own model
// through the same kind of client.
func NewClient(cfg *config.Config, gm *metrics.GenerationMetrics) (*RuntimeClient, error) {
	var tr transport
	var err error
	switch cfg.InferenceBackend {
	case "ollama":
		tr, err = newOllamaTransport(cfg.OllamaHost, cfg.GenerateTimeout)
	case "openai":
		tr, err = newOpenAITransport(cfg.OllamaHost, cfg.InferenceAPIKey, cfg.GenerateTimeout)
	default:
		return nil, fmt.Errorf("unknown inference backend %q", cfg.InferenceBackend)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("backend", tr.name()).Str("host", cfg.OllamaHost).Str("model", cfg.DefaultModel).Msg("inference client created")

	return newRuntimeClient(tr, cfg, gm), nil
}

func newRuntimeClient(tr transport, cfg *config.Config, gm *metrics.GenerationMetrics) *RuntimeClient {
	settings := gobreaker.Settings{
		Name:        "inference-runtime",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &RuntimeClient{
		transport:        tr,
		defaultModel:     cfg.DefaultModel,
		generateTimeout:  cfg.GenerateTimeout,
		probeTimeout:     cfg.ProbeTimeout,
		maxAttempts:      maxAttempts,
		backoffBase:      cfg.BackoffBase,
		backoffCap:       cfg.BackoffCap,
		maxTokensCeiling: cfg.MaxTokensCeiling,
		breaker:          gobreaker.NewCircuitBreaker(settings),
		tracer:           otel.Tracer("inference-client"),
		metrics:          gm,
		sleep:            sleepCtx,
	}
}

// TestConnection issues the version/liveness probe and fails closed.
func (c *RuntimeClient) TestConnection(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "inference.test_connection")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	if err := c.transport.ping(ctx); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("reachable", false))
		return false
	}
	span.SetAttributes(attribute.Bool("reachable", true))
	return true
}

// ListModels lists the models available on the runtime.
func (c *RuntimeClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := c.tracer.Start(ctx, "inference.list_models")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	names, err := c.transport.listModels(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("model_count", len(names)))
	return names, nil
}

// Generate performs the generation call with clamping and bounded retry.
func (c *RuntimeClient) Generate(ctx context.Context, prompt, model string, opts GenerateOptions) (*Generation, error) {
	ctx, span := c.tracer.Start(ctx, "inference.generate")
	defer span.End()

	in := c.clamp(prompt, model, opts)
	span.SetAttributes(attribute.String("model", in.Model))

	timeout := c.generateTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	var lastErr *models.ErrorInfo
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		gen, err := c.attempt(ctx, in, timeout)
		if err == nil {
			c.metrics.RecordInferenceAttempt(ctx, in.Model, "success")
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return gen, nil
		}

		lastErr = models.AsErrorInfo(err)
		c.metrics.RecordInferenceAttempt(ctx, in.Model, string(lastErr.Kind))
		if !lastErr.Retryable {
			span.RecordError(lastErr)
			return nil, lastErr
		}

		if attempt < c.maxAttempts-1 {
			delay := c.backoff(attempt)
			log.Warn().
				Str("model", in.Model).
				Str("kind", string(lastErr.Kind)).
				Dur("delay", delay).
				Int("attempt", attempt+1).
				Int("max_attempts", c.maxAttempts).
				Msg("transient inference failure, backing off")
			if err := c.sleep(ctx, delay); err != nil {
				break
			}
		}
	}

	span.RecordError(lastErr)
	return nil, lastErr
}

// GenerateStream streams one generation through fn without retry.
func (c *RuntimeClient) GenerateStream(ctx context.Context, prompt, model string, opts GenerateOptions, fn func(chunk string) error) (*Generation, error) {
	ctx, span := c.tracer.Start(ctx, "inference.generate_stream")
	defer span.End()

	in := c.clamp(prompt, model, opts)
	span.SetAttributes(attribute.String("model", in.Model))

	timeout := c.generateTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gen, err := c.transport.generateStream(ctx, in, fn)
	if err != nil {
		info := models.AsErrorInfo(err)
		c.metrics.RecordInferenceAttempt(ctx, in.Model, string(info.Kind))
		span.RecordError(info)
		return nil, info
	}
	c.metrics.RecordInferenceAttempt(ctx, in.Model, "success")
	return gen, nil
}

// attempt performs one breaker-guarded transport call with its own timeout.
func (c *RuntimeClient) attempt(ctx context.Context, in generateInput, timeout time.Duration) (*Generation, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.transport.generate(attemptCtx, in)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, models.NewErrorInfo(models.ErrKindNetworkUnavailable, "inference runtime circuit breaker open")
		}
		return nil, err
	}
	return result.(*Generation), nil
}

// clamp bounds the sampling options before they go on the wire: temperature
// and top_p to [0,1], max_tokens to the configured ceiling.
func (c *RuntimeClient) clamp(prompt, model string, opts GenerateOptions) generateInput {
	in := generateInput{
		Prompt:    prompt,
		Model:     model,
		MaxTokens: c.maxTokensCeiling,
	}
	if in.Model == "" {
		in.Model = c.defaultModel
	}
	if opts.Temperature != nil {
		t := clampUnit(*opts.Temperature)
		in.Temperature = &t
	}
	if opts.TopP != nil {
		p := clampUnit(*opts.TopP)
		in.TopP = &p
	}
	if opts.MaxTokens != nil && *opts.MaxTokens > 0 && *opts.MaxTokens < c.maxTokensCeiling {
		in.MaxTokens = *opts.MaxTokens
	}
	return in
}

// backoff returns the exponential delay for the given attempt with ±50%
// jitter, capped at backoffCap.
func (c *RuntimeClient) backoff(attempt int) time.Duration {
	delay := c.backoffBase << uint(attempt)
	if delay > c.backoffCap || delay <= 0 {
		delay = c.backoffCap
	}
	half := delay / 2
	return half + rand.N(delay-half+1)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
