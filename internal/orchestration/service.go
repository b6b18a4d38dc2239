package orchestration

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/academic-apex/apex-strategist/internal/inference"
	"github.com/academic-apex/apex-strategist/internal/metrics"
	"github.com/academic-apex/apex-strategist/internal/models"
)

// PromptCurator refines raw prompts. Implementations must degrade rather
// than fail: on any error the raw prompt comes back with curated=false.
type PromptCurator interface {
	Curate(ctx context.Context, raw, instruction string) (refined string, curated bool)
}

// ArtifactStore persists completed artifacts.
type ArtifactStore interface {
	Enabled() bool
	SaveNote(kind models.Kind, subject, model, content string) (string, error)
}

// Service runs the generation pipeline: curate, generate, validate, persist.
// Every request gets a result envelope, failed ones included.
type Service struct {
	client  inference.Client
	curator PromptCurator
	store   ArtifactStore
	tracer  trace.Tracer
	metrics *metrics.GenerationMetrics
}

// NewService creates the generation orchestrator.
func NewService(client inference.Client, curator PromptCurator, store ArtifactStore, gm *metrics.GenerationMetrics) *Service {
	return &Service{
		client:  client,
		curator: curator,
		store:   store,
		tracer:  otel.Tracer("generation-orchestrator"),
		metrics: gm,
	}
}

// Generate runs one request through the full pipeline and always returns a
// result envelope. The returned error is non-nil only for pipeline-internal
// faults, never for a failed generation.
func (s *Service) Generate(ctx context.Context, req *models.GenerationRequest) *models.GenerationResult {
	ctx, span := s.tracer.Start(ctx, "orchestration.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", req.ID.String()),
		attribute.String("kind", string(req.Kind())),
	)

	start := time.Now()
	run := &pipelineRun{state: StateReceived, req: req}

	result := s.run(ctx, run)
	result.Elapsed = time.Since(start)

	if result.Success {
		s.metrics.RecordGenerationCompleted(ctx, string(req.Kind()), result.ModelUsed, result.Elapsed, result.TokenCount)
		log.Info().
			Str("request_id", req.ID.String()).
			Str("kind", string(req.Kind())).
			Str("model", result.ModelUsed).
			Int("tokens", result.TokenCount).
			Dur("elapsed", result.Elapsed).
			Msg("generation completed")
	} else {
		errKind := ""
		if result.Error != nil {
			errKind = string(result.Error.Kind)
		}
		s.metrics.RecordGenerationFailed(ctx, string(req.Kind()), result.ModelUsed, errKind, result.Elapsed)
		log.Warn().
			Str("request_id", req.ID.String()).
			Str("kind", string(req.Kind())).
			Str("error_kind", errKind).
			Dur("elapsed", result.Elapsed).
			Msg("generation failed")
	}
	return result
}

// GenerateQuiz is a convenience wrapper for quiz generation.
func (s *Service) GenerateQuiz(ctx context.Context, subject string, params models.QuizParams, model string, useCuration bool) (*models.GenerationResult, error) {
	return s.generateKind(ctx, subject, params, model, useCuration)
}

// GenerateStudyPlan is a convenience wrapper for study plan generation.
func (s *Service) GenerateStudyPlan(ctx context.Context, subject string, params models.StudyPlanParams, model string, useCuration bool) (*models.GenerationResult, error) {
	return s.generateKind(ctx, subject, params, model, useCuration)
}

// GenerateCode is a convenience wrapper for code module generation.
func (s *Service) GenerateCode(ctx context.Context, subject string, params models.CodeParams, model string, useCuration bool) (*models.GenerationResult, error) {
	return s.generateKind(ctx, subject, params, model, useCuration)
}

func (s *Service) generateKind(ctx context.Context, subject string, params models.Params, model string, useCuration bool) (*models.GenerationResult, error) {
	req, err := models.NewGenerationRequest(subject, params, useCuration)
	if err != nil {
		return nil, err
	}
	req.Model = model
	return s.Generate(ctx, req), nil
}

// GenerateStream runs a free-form generation streaming chunks through fn.
// Streaming skips validation and persistence and makes a single attempt.
func (s *Service) GenerateStream(ctx context.Context, req *models.GenerationRequest, fn func(chunk string) error) *models.GenerationResult {
	ctx, span := s.tracer.Start(ctx, "orchestration.generate_stream")
	defer span.End()
	span.SetAttributes(attribute.String("request_id", req.ID.String()))

	start := time.Now()
	run := &pipelineRun{state: StateReceived, req: req}

	prompt := buildPrompt(req)
	curated := false
	if req.UseCuration {
		if err := run.advance(StateCurating); err != nil {
			return s.failResult(ctx, run, start, models.NewErrorInfo(models.ErrKindUpstreamError, err.Error()))
		}
		prompt, curated = s.curator.Curate(ctx, prompt, curationInstruction(req.Kind()))
	}

	if err := run.advance(StateGenerating); err != nil {
		return s.failResult(ctx, run, start, models.NewErrorInfo(models.ErrKindUpstreamError, err.Error()))
	}

	gen, err := s.client.GenerateStream(ctx, prompt, req.Model, inference.GenerateOptions{}, fn)
	if err != nil {
		return s.failResult(ctx, run, start, models.AsErrorInfo(err))
	}

	run.mustAdvance(StateValidating)
	run.mustAdvance(StateCompleted)

	result := &models.GenerationResult{
		RequestID:  req.ID,
		Success:    true,
		Content:    gen.Text,
		ModelUsed:  gen.Model,
		TokenCount: gen.TokenCount,
		Curated:    curated,
		Validation: models.ValidationOutcome{Valid: true},
		Elapsed:    time.Since(start),
	}
	s.metrics.RecordGenerationCompleted(ctx, string(req.Kind()), result.ModelUsed, result.Elapsed, result.TokenCount)
	return result
}

// pipelineRun tracks the lifecycle state of one request.
type pipelineRun struct {
	state State
	req   *models.GenerationRequest
}

func (r *pipelineRun) advance(next State) error {
	if err := validateTransition(r.state, next); err != nil {
		return err
	}
	log.Debug().
		Str("request_id", r.req.ID.String()).
		Str("from", string(r.state)).
		Str("to", string(next)).
		Msg("request state transition")
	r.state = next
	return nil
}

// mustAdvance is for transitions the state table guarantees. A failure here
// means the table itself is wrong.
func (r *pipelineRun) mustAdvance(next State) {
	if err := r.advance(next); err != nil {
		panic(err)
	}
}

func (s *Service) run(ctx context.Context, run *pipelineRun) *models.GenerationResult {
	req := run.req
	prompt := buildPrompt(req)

	curated := false
	if req.UseCuration {
		run.mustAdvance(StateCurating)
		prompt, curated = s.curator.Curate(ctx, prompt, curationInstruction(req.Kind()))
	}

	run.mustAdvance(StateGenerating)
	gen, err := s.client.Generate(ctx, prompt, req.Model, inference.GenerateOptions{})
	if err != nil {
		run.mustAdvance(StateFailed)
		return &models.GenerationResult{
			RequestID: req.ID,
			Curated:   curated,
			Error:     models.AsErrorInfo(err),
		}
	}

	run.mustAdvance(StateValidating)
	outcome := validateContent(req, gen.Text)
	if !outcome.Valid {
		run.mustAdvance(StateFailed)
		// Content is kept so callers can inspect what the model produced.
		return &models.GenerationResult{
			RequestID:  req.ID,
			Content:    gen.Text,
			ModelUsed:  gen.Model,
			TokenCount: gen.TokenCount,
			Curated:    curated,
			Validation: outcome,
			Error:      models.NewErrorInfo(models.ErrKindValidationFailed, outcome.Detail),
		}
	}

	run.mustAdvance(StateCompleted)
	result := &models.GenerationResult{
		RequestID:  req.ID,
		Success:    true,
		Content:    gen.Text,
		ModelUsed:  gen.Model,
		TokenCount: gen.TokenCount,
		Curated:    curated,
		Validation: outcome,
	}

	// Persistence failures only annotate the result; the artifact itself
	// already exists and is returned to the caller either way.
	if s.store != nil && s.store.Enabled() && req.Kind() != models.KindGeneric {
		path, err := s.store.SaveNote(req.Kind(), req.Subject, gen.Model, gen.Text)
		if err != nil {
			log.Warn().Err(err).Str("request_id", req.ID.String()).Msg("vault save failed")
		} else {
			result.VaultPath = path
			result.VaultSaved = true
		}
	}

	return result
}

func (s *Service) failResult(ctx context.Context, run *pipelineRun, start time.Time, info *models.ErrorInfo) *models.GenerationResult {
	if run.state != StateFailed {
		if err := run.advance(StateFailed); err != nil {
			log.Error().Err(err).Msg("failed to mark request failed")
		}
	}
	result := &models.GenerationResult{
		RequestID: run.req.ID,
		Error:     info,
		Elapsed:   time.Since(start),
	}
	s.metrics.RecordGenerationFailed(ctx, string(run.req.Kind()), run.req.Model, string(info.Kind), result.Elapsed)
	return result
}
