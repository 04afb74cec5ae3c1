package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-procurement/internal/client"
	"github.com/pesio-ai/be-procurement/internal/handler"
	"github.com/pesio-ai/be-procurement/internal/platform/config"
	"github.com/pesio-ai/be-procurement/internal/platform/database"
	"github.com/pesio-ai/be-procurement/internal/platform/logger"
	"github.com/pesio-ai/be-procurement/internal/platform/messaging"
	"github.com/pesio-ai/be-procurement/internal/platform/middleware"
	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/repository/memstore"
	"github.com/pesio-ai/be-procurement/internal/service"
	"github.com/pesio-ai/be-procurement/internal/workflow"
)

const devJWTSecret = "procurement-dev-secret"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Procurement Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage backend
	var store repository.Transactor
	var dbCheck handler.HealthChecker
	switch cfg.Database.Backend {
	case "memory":
		store = memstore.New()
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
	default:
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		if cfg.Database.AutoMigrate {
			applied, err := db.Migrate(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to apply migrations")
			}
			log.Info().Strs("applied", applied).Msg("Database migrations up to date")
		}
		store = repository.NewStore(db)
		dbCheck = db
	}

	// Notification transport
	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		nc, err := messaging.Connect(ctx, messaging.Config{
			URL:      cfg.NATS.URL,
			Name:     cfg.Service.Name,
			Stream:   cfg.NATS.Stream,
			Subjects: []string{cfg.NATS.SubjectPrefix + ".>"},
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		notifier = client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log.Component("notifications").Logger)
		log.Info().Str("url", cfg.NATS.URL).Str("stream", cfg.NATS.Stream).Msg("NATS notification publisher ready")
	} else {
		log.Warn().Msg("NATS_URL not set; notifications disabled")
	}

	// Blob store
	var blobs service.BlobStore
	var uploadDir string
	switch cfg.Storage.Driver {
	case "gcs":
		gcs, err := client.NewGCSBlobStore(ctx, cfg.Storage.Bucket, cfg.Storage.CredentialsFile, cfg.Storage.PublicBaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS blob store")
		}
		defer gcs.Close()
		blobs = gcs
		log.Info().Str("bucket", cfg.Storage.Bucket).Msg("Using GCS blob store")
	default:
		local, err := client.NewLocalBlobStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create local blob store")
		}
		blobs = local
		if cfg.Storage.PublicBaseURL == "" {
			uploadDir = cfg.Storage.LocalDir
		}
		log.Info().Str("dir", cfg.Storage.LocalDir).Msg("Using local blob store")
	}

	// Identity
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = devJWTSecret
		log.Warn().Msg("JWT_SECRET not set; using the development secret")
	}
	verifier := client.NewTokenVerifier(secret, cfg.Auth.Issuer)

	// Initialize services
	svc := handler.Services{
		Vendors:  service.NewVendorService(store, notifier, cfg.Workflow.VendorAutoApprove, log.Component("vendors")),
		Requests: service.NewRequestService(store, blobs, notifier, cfg.Workflow.Currency, log.Component("requests")),
		Payments: service.NewPaymentService(store, blobs, notifier,
			workflow.PaymentPolicy{Limit: cfg.Workflow.ApprovalLimit},
			cfg.Workflow.ReceiptRequired, log.Component("payments")),
		Audit:   service.NewAuditService(store, log.Component("audit")),
		Reports: service.NewReportService(store, log.Component("reports")),
	}

	log.Info().
		Str("approval_limit", cfg.Workflow.ApprovalLimit.String()).
		Str("currency", cfg.Workflow.Currency).
		Bool("vendor_auto_approve", cfg.Workflow.VendorAutoApprove).
		Bool("receipt_required", cfg.Workflow.ReceiptRequired).
		Msg("Workflow policy loaded")

	// Setup HTTP routes
	router := mux.NewRouter()
	httpHandler := handler.NewHTTPHandler(svc, verifier, log.Component("http"))
	if dbCheck != nil {
		httpHandler.WithHealthCheck("database", dbCheck)
	}
	httpHandler.Routes(router)
	if uploadDir != "" {
		router.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))
	}

	// Apply middleware
	var h http.Handler = router
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcLog := log.Component("grpc").Logger
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.UnaryRecovery(grpcLog),
		handler.UnaryRequestLogger(grpcLog),
	))
	handler.NewGRPCHandler(svc, verifier, grpcLog).Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
