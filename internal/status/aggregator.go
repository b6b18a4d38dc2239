package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/academic-apex/apex-strategist/internal/models"
)

// InferenceProber is the slice of the inference client the aggregator needs.
type InferenceProber interface {
	TestConnection(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
}

// CuratorProber checks the curation service.
type CuratorProber interface {
	HealthCheck(ctx context.Context) error
}

// VaultProber checks artifact persistence.
type VaultProber interface {
	Enabled() bool
	Writable() error
}

// Aggregator polls the subsystems and serves the latest HealthSnapshot.
// Snapshots are rebuilt wholesale and swapped under the lock, so a reader
// never observes a half-updated report.
type Aggregator struct {
	inference InferenceProber
	curator   CuratorProber
	vault     VaultProber
	interval  time.Duration
	tracer    trace.Tracer

	mu       sync.RWMutex
	snapshot models.HealthSnapshot
}

// NewAggregator creates an aggregator. Until the first poll completes it
// serves the unknown-health snapshot.
func NewAggregator(inference InferenceProber, curator CuratorProber, vault VaultProber, interval time.Duration) *Aggregator {
	return &Aggregator{
		inference: inference,
		curator:   curator,
		vault:     vault,
		interval:  interval,
		tracer:    otel.Tracer("status-aggregator"),
		snapshot:  models.UnknownHealth(),
	}
}

// Snapshot returns the most recent health report.
func (a *Aggregator) Snapshot() models.HealthSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Check probes every subsystem once and stores the fused snapshot. The
// remote probes run concurrently; the vault probe is local filesystem work
// and runs inline.
func (a *Aggregator) Check(ctx context.Context) models.HealthSnapshot {
	ctx, span := a.tracer.Start(ctx, "status.check")
	defer span.End()

	snap := models.HealthSnapshot{
		ModelsAvailable: []string{},
		Issues:          []string{},
	}

	var (
		wg          sync.WaitGroup
		modelNames  []string
		curatorErr  error
		inferenceUp bool
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		inferenceUp = a.inference.TestConnection(ctx)
		if inferenceUp {
			names, err := a.inference.ListModels(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("model listing failed during status check")
				return
			}
			modelNames = names
		}
	}()
	go func() {
		defer wg.Done()
		curatorErr = a.curator.HealthCheck(ctx)
	}()
	wg.Wait()

	snap.InferenceReachable = inferenceUp
	if modelNames != nil {
		snap.ModelsAvailable = modelNames
	}
	snap.CuratorReachable = curatorErr == nil

	var vaultErr error
	if a.vault.Enabled() {
		vaultErr = a.vault.Writable()
		snap.VaultWritable = vaultErr == nil
	}

	// Issues are composed in a fixed order so consumers can diff reports.
	if !snap.InferenceReachable {
		snap.Issues = append(snap.Issues, "inference runtime is unreachable")
	} else if len(snap.ModelsAvailable) == 0 {
		snap.Issues = append(snap.Issues, "inference runtime has no models pulled")
	}
	if curatorErr != nil {
		snap.Issues = append(snap.Issues, fmt.Sprintf("curator service unavailable: %v", curatorErr))
	}
	if !a.vault.Enabled() {
		snap.Issues = append(snap.Issues, "vault persistence is not configured")
	} else if vaultErr != nil {
		snap.Issues = append(snap.Issues, fmt.Sprintf("vault is not writable: %v", vaultErr))
	}

	snap.CheckedAt = time.Now()
	span.SetAttributes(
		attribute.Bool("healthy", snap.Healthy()),
		attribute.Int("issue_count", len(snap.Issues)),
	)

	a.mu.Lock()
	a.snapshot = snap
	a.mu.Unlock()

	return snap
}

// Run polls on the configured interval until ctx is canceled. An immediate
// first check replaces the unknown snapshot as soon as possible.
func (a *Aggregator) Run(ctx context.Context) {
	a.Check(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("status aggregator stopped")
			return
		case <-ticker.C:
			a.Check(ctx)
		}
	}
}
