package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	_ "go.uber.org/automaxprocs"

	"github.com/academic-apex/apex-strategist/internal/config"
	"github.com/academic-apex/apex-strategist/internal/curation"
	"github.com/academic-apex/apex-strategist/internal/gateway"
	"github.com/academic-apex/apex-strategist/internal/inference"
	"github.com/academic-apex/apex-strategist/internal/metrics"
	"github.com/academic-apex/apex-strategist/internal/orchestration"
	"github.com/academic-apex/apex-strategist/internal/status"
	"github.com/academic-apex/apex-strategist/internal/vault"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := initTracer(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}

	gm, err := metrics.NewGenerationMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Wire the pipeline: inference runtime, prompt curator, vault writer.
	client, err := inference.NewClient(cfg, gm)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create inference client")
	}
	curator := curation.NewCurator(cfg, gm)
	vaultWriter := vault.NewWriter(cfg.VaultPath)

	orchestrator := orchestration.NewService(client, curator, vaultWriter, gm)
	aggregator := status.NewAggregator(client, curator, vaultWriter, cfg.StatusInterval)

	pollCtx, stopPolling := context.WithCancel(context.Background())
	defer stopPolling()
	go aggregator.Run(pollCtx)

	handler := gateway.NewHandler(orchestrator, aggregator)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gateway.RequestLogging())

	router.GET("/health", handler.Health)

	api := router.Group("/api")
	api.GET("/status", handler.GetStatus)

	generate := api.Group("/generate")
	generate.Use(gateway.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	generate.POST("/quiz", handler.GenerateQuiz)
	generate.POST("/study-plan", handler.GenerateStudyPlan)
	generate.POST("/code", handler.GenerateCode)

	api.GET("/ws/generate", handler.StreamGenerate)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GenerateTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting apex-strategist API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	stopPolling()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// initTracer initializes OpenTelemetry tracing with a stdout exporter.
func initTracer() error {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return nil
}
