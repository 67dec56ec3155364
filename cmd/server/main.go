package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Schera-ole/hostagent/internal/audit"
	"github.com/Schera-ole/hostagent/internal/config"
	"github.com/Schera-ole/hostagent/internal/handler"
	"github.com/Schera-ole/hostagent/internal/logger"
	"github.com/Schera-ole/hostagent/internal/migration"
	"github.com/Schera-ole/hostagent/internal/repository"
	"github.com/Schera-ole/hostagent/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	serverConfig, err := config.NewServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(serverConfig.LogLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, serverConfig, log); err != nil {
		log.Errorw("collector stopped with error", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, serverConfig *config.ServerConfig, log *zap.SugaredLogger) error {
	storage, err := newStorage(ctx, serverConfig, log)
	if err != nil {
		return err
	}
	defer storage.Close()

	auditLogger, stopAudit := audit.Setup(*serverConfig, log)
	defer stopAudit()

	collectorService := service.NewCollectorService(storage, auditLogger)
	if err := collectorService.RegisterAgents(ctx, serverConfig.AgentTokens, log); err != nil {
		return fmt.Errorf("failed to register agents: %w", err)
	}

	srv := &http.Server{
		Addr:              serverConfig.Address,
		Handler:           handler.Router(collectorService, log, serverConfig),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("collector listening", "address", serverConfig.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down collector")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newStorage(ctx context.Context, serverConfig *config.ServerConfig, log *zap.SugaredLogger) (repository.Repository, error) {
	if serverConfig.DatabaseDSN == "" {
		log.Info("using in-memory storage")
		return repository.NewMemStorage(), nil
	}
	if err := migration.RunMigrations(ctx, serverConfig.DatabaseDSN, serverConfig.MigrationsDir, log); err != nil {
		return nil, err
	}
	storage, err := repository.NewDBStorage(serverConfig.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Info("using postgres storage")
	return storage, nil
}
