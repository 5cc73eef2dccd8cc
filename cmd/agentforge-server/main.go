package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/bcrosbie/agentforge/internal/config"
	"github.com/bcrosbie/agentforge/internal/logger"
	"github.com/bcrosbie/agentforge/internal/service"
	"github.com/bcrosbie/agentforge/internal/store"
	"github.com/bcrosbie/agentforge/internal/tracing"
	grpcx "github.com/bcrosbie/agentforge/internal/transport/grpc"
	httpx "github.com/bcrosbie/agentforge/internal/transport/http"
)

const (
	unaryDeadline   = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	appLogger, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.Setup(ctx, cfg.Tracer)
	if err != nil {
		fatal(appLogger, "tracer setup failed", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			appLogger.Warn("tracer shutdown warning", "error", err)
		}
	}()

	journal, err := store.Open(store.Options{
		Driver:      cfg.JournalDriver,
		File:        cfg.JournalFile,
		DatabaseURL: cfg.DatabaseURL,
		Logger:      appLogger.With("component", "journal"),
	})
	if err != nil {
		fatal(appLogger, "journal setup failed", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Warn("journal close warning", "error", err)
		}
	}()
	if err := journal.Load(ctx); err != nil {
		fatal(appLogger, "journal initialization failed", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := service.New(service.Options{
		Engine:        cfg.Engine,
		JournalDriver: cfg.JournalDriver,
		Journal:       journal,
		Registerer:    registry,
		Logger:        appLogger,
	})
	if err != nil {
		fatal(appLogger, "engine setup failed", err)
	}
	defer func() { _ = engine.Close() }()
	engine.Start(ctx)

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		fatal(appLogger, "failed to listen on "+cfg.GRPCAddr, err)
	}

	rpcLogger := appLogger.With("component", "grpc")
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcx.RecoveryUnaryInterceptor(rpcLogger),
			grpcx.DeadlineUnaryInterceptor(unaryDeadline),
			grpcx.MetricsUnaryInterceptor(engine),
			grpcx.LoggingUnaryInterceptor(rpcLogger),
			grpcx.ErrorUnaryInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			grpcx.RecoveryStreamInterceptor(rpcLogger),
			grpcx.MetricsStreamInterceptor(engine),
			grpcx.LoggingStreamInterceptor(rpcLogger),
			grpcx.ErrorStreamInterceptor(),
		),
	)
	grpcx.RegisterEngineServer(server, grpcx.NewEngineHandler(engine))

	healthService := health.NewServer()
	healthService.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthService)

	if cfg.EnableReflection {
		reflection.Register(server)
	}

	var httpServer *http.Server
	if strings.TrimSpace(cfg.HTTPAddr) != "" {
		httpServer = httpx.NewServer(cfg.HTTPAddr, engine, registry, appLogger.With("component", "http"))
	}

	serveErr := make(chan error, 2)
	go func() {
		appLogger.Info("AgentForge gRPC server listening", "addr", cfg.GRPCAddr, "journal", cfg.JournalDriver)
		if err := server.Serve(listener); err != nil {
			serveErr <- err
		}
	}()
	if httpServer != nil {
		go func() {
			appLogger.Info("AgentForge HTTP dashboard listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		appLogger.Info("shutdown signal received; draining servers")
	case err := <-serveErr:
		appLogger.Error("server failed", "error", err)
	}
	healthService.Shutdown()
	_ = engine.Close()
	waitForShutdown(appLogger, server, httpServer)
}

func waitForShutdown(logger *slog.Logger, server *grpc.Server, httpServer *http.Server) {
	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("gRPC server stopped gracefully")
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful timeout reached; forcing stop")
		server.Stop()
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown warning", "error", err)
		}
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
