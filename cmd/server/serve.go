package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-proc-requisitions/internal/client"
	"github.com/pesio-ai/be-proc-requisitions/internal/handler"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/config"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/metrics"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/tracing"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository/memory"
	"github.com/pesio-ai/be-proc-requisitions/internal/scheduler"
	"github.com/pesio-ai/be-proc-requisitions/internal/service"
)

func newServeCommand() *cobra.Command {
	var (
		memoryMode bool
		seedPath   string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers and the escalation scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), memoryMode, seedPath)
		},
	}
	cmd.Flags().BoolVar(&memoryMode, "memory", false, "use the in-memory store instead of PostgreSQL")
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML fixture loaded into the in-memory store")
	return cmd
}

func runServe(parent context.Context, memoryMode bool, seedPath string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Bool("memory", memoryMode).
		Msg("Starting Requisition Approval Service")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(cfg.Service.Name, cfg.Service.Version, cfg.Tracing.OutputFile)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	m := metrics.New()

	var (
		store   service.ApprovalStore
		pgStore *repository.Store
		pinger  handler.Pinger
	)
	if memoryMode {
		mem := memory.New()
		if seedPath != "" {
			if err := loadSeed(mem, seedPath); err != nil {
				return err
			}
			log.Info().Str("seed", seedPath).Msg("In-memory store seeded")
		}
		store = mem
	} else {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		log.Info().Msg("Database connection established")
		pgStore = repository.NewStore(db)
		store = pgStore
		pinger = db
	}

	var notifier service.EscalationNotifier
	if cfg.NATS.URL != "" {
		publisher, nc, err := client.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, cfg.Service.Name, log.Component("nats"))
		if err != nil {
			return err
		}
		defer func() { _ = nc.Drain() }()
		notifier = publisher
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS notification publisher ready")
	} else {
		log.Warn().Msg("NATS_URL not set; escalation notifications disabled")
	}

	c := buildCore(ctx, cfg, store, ruleSource(cfg.Rules, pgStore), notifier, m, log)

	if cfg.Escalation.Enabled {
		lease, closeLease, err := escalationLease(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		defer closeLease()
		runner := scheduler.NewRunner(c.escalation, lease, cfg.Escalation.Interval, log.Component("scheduler"))
		go runner.Run(ctx)
	}

	// HTTP
	httpHandler := handler.NewHTTPHandler(c.router, c.escalation, c.override, pinger, m.Handler(), log.Component("http"))
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      httpHandler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	// gRPC
	grpcServer := newGRPCServer(cfg, c, log)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("create gRPC listener: %w", err)
	}
	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
	return nil
}

func newGRPCServer(cfg *config.Config, c *core, log *logger.Logger) *grpc.Server {
	grpcLog := log.Component("grpc").Logger
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.RecoveryInterceptor(grpcLog),
		handler.LoggingInterceptor(grpcLog),
		handler.RateLimitInterceptor(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	))
	handler.NewGRPCHandler(c.router, c.escalation, c.override, grpcLog).Register(s)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)
	reflection.Register(s) // Enable reflection for debugging
	return s
}

// escalationLease returns a redis-backed lease when REDIS_URL is set so only
// one replica escalates per interval.
func escalationLease(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (scheduler.Lease, func(), error) {
	if cfg.URL == "" {
		return scheduler.AlwaysLease{}, func() {}, nil
	}
	rdb, err := scheduler.OpenRedis(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	host, _ := os.Hostname()
	owner := fmt.Sprintf("%s-%d", host, os.Getpid())
	log.Info().Str("key", cfg.LeaseKey).Str("owner", owner).Msg("Escalation lease backed by redis")
	return scheduler.NewRedisLease(rdb, cfg.LeaseKey, owner, cfg.LeaseTTL), func() { _ = rdb.Close() }, nil
}
