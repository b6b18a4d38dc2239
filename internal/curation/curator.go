package curation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/academic-apex/apex-strategist/internal/config"
	"github.com/academic-apex/apex-strategist/internal/metrics"
	"github.com/academic-apex/apex-strategist/internal/models"
)

// Curator refines raw prompts through the external curation service. It
// degrades instead of failing: any curation error returns the original
// prompt unchanged so generation always proceeds.
type Curator struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      *ttlcache.Cache[string, models.CurationEntry]
	tracer     trace.Tracer
	metrics    *metrics.GenerationMetrics
}

type curateRequest struct {
	Prompt      string `json:"prompt"`
	Instruction string `json:"instruction"`
}

type curateResponse struct {
	Refined string `json:"refined"`
	Success bool   `json:"success"`
}

// NewCurator creates a curator with a bounded refinement cache. Expired
// entries are dropped lazily at lookup time; when the cache is full the
// oldest entry is evicted first.
func NewCurator(cfg *config.Config, gm *metrics.GenerationMetrics) *Curator {
	cache := ttlcache.New[string, models.CurationEntry](
		ttlcache.WithTTL[string, models.CurationEntry](cfg.CacheTTL),
		ttlcache.WithCapacity[string, models.CurationEntry](cfg.CacheCapacity),
		ttlcache.WithDisableTouchOnHit[string, models.CurationEntry](),
	)

	settings := gobreaker.Settings{
		Name:    "curator-service",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &Curator{
		baseURL:    cfg.CuratorURL,
		httpClient: &http.Client{Timeout: cfg.CurateTimeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		cache:      cache,
		tracer:     otel.Tracer("prompt-curator"),
		metrics:    gm,
	}
}

// Curate refines raw with the given instruction. The second return reports
// whether refinement was actually applied; on any failure raw comes back
// verbatim with curated=false.
func (c *Curator) Curate(ctx context.Context, raw, instruction string) (string, bool) {
	ctx, span := c.tracer.Start(ctx, "curation.curate")
	defer span.End()

	key := cacheKey(raw, instruction)
	if item := c.cache.Get(key); item != nil {
		c.metrics.RecordCacheLookup(ctx, true)
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return item.Value().RefinedPrompt, true
	}
	c.metrics.RecordCacheLookup(ctx, false)
	span.SetAttributes(attribute.Bool("cache_hit", false))

	refined, err := c.callService(ctx, raw, instruction)
	if err != nil {
		c.metrics.RecordCurationDegraded(ctx)
		span.RecordError(err)
		log.Warn().Err(err).Msg("prompt curation degraded, using raw prompt")
		return raw, false
	}

	c.cache.Set(key, models.CurationEntry{
		RawPrompt:     raw,
		Instruction:   instruction,
		RefinedPrompt: refined,
		CreatedAt:     time.Now(),
	}, ttlcache.DefaultTTL)

	return refined, true
}

// HealthCheck probes the curation service liveness endpoint.
func (c *Curator) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("curator service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("curator service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// CacheLen reports the number of live cache entries.
func (c *Curator) CacheLen() int {
	c.cache.DeleteExpired()
	return c.cache.Len()
}

func (c *Curator) callService(ctx context.Context, raw, instruction string) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doCurate(ctx, raw, instruction)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("curator circuit breaker open")
		}
		return "", err
	}
	return result.(string), nil
}

func (c *Curator) doCurate(ctx context.Context, raw, instruction string) (string, error) {
	body, err := json.Marshal(curateRequest{Prompt: raw, Instruction: instruction})
	if err != nil {
		return "", fmt.Errorf("failed to marshal curate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/curate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create curate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("curate call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("curate call returned status %d: %s", resp.StatusCode, string(payload))
	}

	var out curateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode curate response: %w", err)
	}
	if !out.Success || out.Refined == "" {
		return "", fmt.Errorf("curator declined to refine the prompt")
	}
	return out.Refined, nil
}

// cacheKey derives a fixed-length key from the prompt and instruction. The
// NUL separator keeps ("ab","c") and ("a","bc") from colliding.
func cacheKey(raw, instruction string) string {
	h := sha256.New()
	h.Write([]byte(raw))
	h.Write([]byte{0})
	h.Write([]byte(instruction))
	return hex.EncodeToString(h.Sum(nil))
}
