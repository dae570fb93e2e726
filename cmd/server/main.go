// Command nextbest-server starts the NextBest gRPC server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	v1 "github.com/and161185/nextbest/api/nextbest/v1"
	"github.com/and161185/nextbest/internal/authz"
	"github.com/and161185/nextbest/internal/config"
	"github.com/and161185/nextbest/internal/limiter"
	"github.com/and161185/nextbest/internal/logging"
	"github.com/and161185/nextbest/internal/metrics"
	grpcserver "github.com/and161185/nextbest/internal/server/grpc"
	"github.com/and161185/nextbest/internal/server/ops"
	"github.com/and161185/nextbest/internal/service"
	"github.com/and161185/nextbest/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, opens the store and serves gRPC plus the ops port.
func main() {
	cfgPath := flag.String("config", "", "config file (YAML); "+config.PathEnvVar+" also works")
	addr := flag.String("addr", "", "override server.grpc_addr")
	dev := flag.Bool("dev", false, "enable server reflection (dev only)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Server.GRPCAddr = *addr
	}
	if *dev {
		cfg.Server.Reflection = true
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.GRPCAddr),
		zap.String("driver", cfg.Database.Driver),
	)

	if cfg.Auth.JWTKey == "" {
		logger.Fatal("missing jwt signing key (auth.jwt_key or NEXTBEST_AUTH__JWT_KEY)")
	}

	creds := insecure.NewCredentials()
	if !cfg.Server.Insecure {
		creds, err = credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Database, limiter.Settings{
		Window:   cfg.Auth.LoginWindow,
		MaxFails: cfg.Auth.MaxFailures,
		BlockFor: cfg.Auth.BlockFor,
	})
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	signKey := []byte(cfg.Auth.JWTKey)
	authSvc := service.NewAuthService(store.Accounts, service.AuthConfig{
		SignKey:    signKey,
		AccessTTL:  cfg.Auth.AccessTTL,
		Iterations: cfg.Auth.Iterations,
	}, store.Limiter, logger.Named("auth"))
	libSvc := service.NewLibraryService(store.Library, logger.Named("library"))

	z, err := authz.New()
	if err != nil {
		logger.Fatal("authz", zap.Error(err))
	}
	m := metrics.New()

	// gRPC server with interceptors
	s := grpc.NewServer(
		grpc.Creds(creds),
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.MetricsUnary(m),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(authSvc, z, signKey),
		),
	)

	app := grpcserver.New(authSvc, libSvc, signKey, logger, m)
	v1.RegisterNextBestServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(v1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Server.Reflection {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.GRPCAddr), zap.Bool("tls", !cfg.Server.Insecure))
		errCh <- s.Serve(lis)
	}()

	var opsSrv *http.Server
	if cfg.Server.HTTPAddr != "" {
		probe := func(ctx context.Context) error {
			_, err := authSvc.NeedsBootstrap(ctx)
			return err
		}
		opsSrv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           ops.NewRouter(m, probe, logger.Named("ops")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("ops listening", zap.String("addr", cfg.Server.HTTPAddr))
			if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if opsSrv != nil {
			_ = opsSrv.Shutdown(shutdownCtx)
		}
		// graceful shutdown
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		_ = store.Close()
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
