package curation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academic-apex/apex-strategist/internal/config"
)

func newTestCurator(t *testing.T, handler http.HandlerFunc, ttl time.Duration) (*Curator, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		CuratorURL:    server.URL,
		CurateTimeout: 2 * time.Second,
		CacheTTL:      ttl,
		CacheCapacity: 8,
	}
	return NewCurator(cfg, nil), server
}

func curateHandler(calls *atomic.Int64, refined string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		calls.Add(1)
		json.NewEncoder(w).Encode(curateResponse{Refined: refined, Success: true})
	}
}

func TestCurate_RefinesPrompt(t *testing.T) {
	var calls atomic.Int64
	curator, _ := newTestCurator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/curate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req curateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "raw prompt", req.Prompt)
		assert.Equal(t, "make it crisp", req.Instruction)

		json.NewEncoder(w).Encode(curateResponse{Refined: "crisp prompt", Success: true})
	}, time.Minute)

	refined, curated := curator.Curate(context.Background(), "raw prompt", "make it crisp")
	assert.True(t, curated)
	assert.Equal(t, "crisp prompt", refined)
	assert.Equal(t, int64(1), calls.Load())
}

func TestCurate_CacheHitSkipsService(t *testing.T) {
	var calls atomic.Int64
	curator, _ := newTestCurator(t, curateHandler(&calls, "refined"), time.Minute)

	for i := 0; i < 3; i++ {
		refined, curated := curator.Curate(context.Background(), "same prompt", "same instruction")
		assert.True(t, curated)
		assert.Equal(t, "refined", refined)
	}
	assert.Equal(t, int64(1), calls.Load(), "repeat lookups must come from the cache")

	// A different instruction is a different cache entry.
	_, curated := curator.Curate(context.Background(), "same prompt", "other instruction")
	assert.True(t, curated)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCurate_ExpiredEntryRefetches(t *testing.T) {
	var calls atomic.Int64
	curator, _ := newTestCurator(t, curateHandler(&calls, "refined"), 10*time.Millisecond)

	curator.Curate(context.Background(), "prompt", "instruction")
	time.Sleep(30 * time.Millisecond)
	curator.Curate(context.Background(), "prompt", "instruction")

	assert.Equal(t, int64(2), calls.Load(), "expired entries must not be served")
}

func TestCurate_DegradesWhenServiceDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	cfg := &config.Config{
		CuratorURL:    server.URL,
		CurateTimeout: time.Second,
		CacheTTL:      time.Minute,
		CacheCapacity: 8,
	}
	curator := NewCurator(cfg, nil)
	server.Close()

	refined, curated := curator.Curate(context.Background(), "raw prompt", "instruction")
	assert.False(t, curated)
	assert.Equal(t, "raw prompt", refined, "degraded curation returns the prompt verbatim")
	assert.Equal(t, 0, curator.CacheLen(), "failures are never cached")
}

func TestCurate_DegradesOnServiceError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server_error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "declined_refinement",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(curateResponse{Success: false})
			},
		},
		{
			name: "malformed_response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curator, _ := newTestCurator(t, tt.handler, time.Minute)

			refined, curated := curator.Curate(context.Background(), "raw prompt", "instruction")
			assert.False(t, curated)
			assert.Equal(t, "raw prompt", refined)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	healthy, _ := newTestCurator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}, time.Minute)
	assert.NoError(t, healthy.HealthCheck(context.Background()))

	sick, _ := newTestCurator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, time.Minute)
	assert.Error(t, sick.HealthCheck(context.Background()))
}

func TestCacheKey_SeparatorPreventsCollisions(t *testing.T) {
	assert.NotEqual(t, cacheKey("ab", "c"), cacheKey("a", "bc"))
	assert.Equal(t, cacheKey("a", "b"), cacheKey("a", "b"))
}
