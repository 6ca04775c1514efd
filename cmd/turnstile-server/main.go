package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/turnstile/internal/config"
	"github.com/BrandonDHaskell/turnstile/internal/db"
	"github.com/BrandonDHaskell/turnstile/internal/grpcapi"
	"github.com/BrandonDHaskell/turnstile/internal/httpapi"
	"github.com/BrandonDHaskell/turnstile/internal/live"
	"github.com/BrandonDHaskell/turnstile/internal/logging"
	"github.com/BrandonDHaskell/turnstile/internal/notify"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/service"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store/memory"
	sqlitestore "github.com/BrandonDHaskell/turnstile/internal/turnstile/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "turnstile", cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(c)
	}()

	// Store
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer closeStore()

	// Fan-out
	hub := live.NewHub(logger)
	defer hub.Close()

	publishers := notify.Multi{hub}
	if cfg.AMQPURL != "" {
		amqpPub, err := notify.NewAMQPPublisher(notify.AMQPConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp publisher")
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("amqp fan-out enabled")
	}

	// Services
	registrationSvc := service.NewRegistrationService(st)
	scanSvc := service.NewScanService(st, publishers, logger)
	lookupSvc := service.NewLookupService(st)

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger,
		Addr:           cfg.HTTPAddr,
		Registration:   registrationSvc,
		Scan:           scanSvc,
		Lookup:         lookupSvc,
		Health:         st,
		Live:           hub,
		ScanRatePerSec: cfg.ScanRatePerSec,
		ScanBurst:      cfg.ScanBurst,
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.Env).Str("store", cfg.Store).Msg("listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	// gRPC health
	grpcDone := make(chan struct{})
	if cfg.GRPCAddr != "" {
		hs, err := grpcapi.New(cfg.GRPCAddr, st, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("grpc health")
		}
		go func() {
			defer close(grpcDone)
			if err := hs.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("grpc health error")
				stop()
			}
		}()
	} else {
		close(grpcDone)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-grpcDone
	logger.Info().Msg("stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	if cfg.Store == "memory" {
		logger.Warn().Msg("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return nil, nil, err
	}

	n, err := db.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	logger.Info().Int("applied", n).Str("path", cfg.DBPath).Msg("migrations")

	if cfg.Env == "dev" {
		if err := seed(ctx, conn, cfg, logger); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}

	writer := db.NewWorker(conn)
	return sqlitestore.New(conn, writer), func() {
		writer.Close()
		_ = conn.Close()
	}, nil
}

func seed(ctx context.Context, conn *sql.DB, cfg config.Config, logger zerolog.Logger) error {
	pairs := cfg.SeedPairs()
	if len(pairs) == 0 {
		return nil
	}
	opt := db.SeedDevOptions{Identities: make([]db.SeedIdentity, 0, len(pairs))}
	for _, p := range pairs {
		opt.Identities = append(opt.Identities, db.SeedIdentity{StudentID: p.StudentID, Name: p.Name})
	}
	n, err := db.SeedDev(ctx, conn, opt)
	if err != nil {
		return err
	}
	logger.Info().Int("inserted", n).Msg("seeded dev identities")
	return nil
}
