// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/palisade/internal/api"
	"github.com/tomtom215/palisade/internal/audit"
	"github.com/tomtom215/palisade/internal/authc"
	"github.com/tomtom215/palisade/internal/cluster"
	"github.com/tomtom215/palisade/internal/config"
	"github.com/tomtom215/palisade/internal/logging"
	"github.com/tomtom215/palisade/internal/supervisor"
	"github.com/tomtom215/palisade/internal/supervisor/services"
	"github.com/tomtom215/palisade/internal/transport"
)

//nolint:gocyclo // sequential startup wiring
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.Logging())

	logging.Info().
		Str("config_path", cfg.Path).
		Str("node", cfg.Server.NodeName).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting Palisade")

	// === STORAGE ===

	clusterDB, err := cluster.Open(cfg.Cluster)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cluster store")
	}
	defer closeDB("cluster", clusterDB)

	store, err := cluster.NewStore(clusterDB, cfg.Cluster)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize cluster store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error releasing cluster store")
		}
	}()

	auditStore, auditDB, err := openAuditStore(cfg.Audit)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit store")
	}
	if auditDB != nil {
		defer closeDB("audit", auditDB)
	}
	auditLogger, err := audit.NewLogger(auditStore, cfg.Audit.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create audit logger")
	}
	defer func() {
		if err := auditLogger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}()

	// === SECURITY ===

	blockedIPs, err := authc.NewIPBlockRegistry(cfg.Auth.BlockedIPs, cfg.Auth.FailureListener.BlockExpiry)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid blocked_ips")
	}
	blockedUsers, err := authc.NewUserBlockRegistry(cfg.Auth.BlockedUsers, cfg.Auth.FailureListener.BlockExpiry)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid blocked_users")
	}

	gw := newGateway(cluster.NewExecutor(store, cfg.Server.NodeName), auditLogger)
	gw.handler = transport.NewHandler(transport.Options{
		Admins:       gw,
		Auditor:      auditLogger,
		BlockedIPs:   blockedIPs,
		BlockedUsers: blockedUsers,
		Failures:     authc.NewFailureListener(cfg.Auth.FailureListener, blockedIPs),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configStore := config.NewStore(cfg)
	initial, err := gw.apply(ctx, configStore.Current())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to install security configuration")
	}

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	resources, err := supervisor.NewResourceSupervisor(tree)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create resource supervisor")
	}
	if err := resources.Sync(cfg.Generation, initial); err != nil {
		logging.Fatal().Err(err).Msg("Failed to register generation resources")
	}

	configStore.OnChange(func(ctx context.Context, next *config.Config) error {
		desired, err := gw.apply(ctx, next)
		if err != nil {
			return err
		}
		// the new generation is live; failures here only leak old resources
		if err := resources.Sync(next.Generation, desired); err != nil {
			logging.Error().Err(err).Uint64("generation", next.Generation).Msg("Failed to swap generation resources")
		}
		return nil
	})

	router, err := api.NewRouter(api.Deps{
		Auth:    gw.handler,
		Roles:   gw.evaluator,
		Tenants: gw,
		Client:  gw,
		Status: func() api.Status {
			return api.Status{
				Initialized: gw.evaluator.IsInitialized() && gw.handler.Generation() > 0,
				Generation:  gw.Generation(),
				Node:        cfg.Server.NodeName,
				Components:  resources.Statuses(),
			}
		},
	}, api.Config{
		RateLimitRequests: cfg.Server.RateLimitReqs,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		RateLimitDisabled: cfg.Server.RateLimitDisabled,
		RequestTimeout:    cfg.Server.Timeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create API router")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree.AddStorageService(store)
	tree.AddStorageService(auditLogger)
	if cfg.Path != "" {
		tree.AddControlService(config.NewWatcher(configStore, cfg.Path))
	} else {
		logging.Info().Msg("No configuration file, hot reload disabled")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	// === RUN ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Palisade stopped gracefully")
}

// openAuditStore returns the configured audit store. The badger database is
// returned for the caller to close; it is nil for the memory store.
func openAuditStore(cfg config.AuditConfig) (audit.Store, *badger.DB, error) {
	if cfg.Store != "badger" {
		return audit.NewMemoryStore(cfg.MemoryMaxEvents), nil, nil
	}
	dbCfg := cluster.DefaultConfig()
	dbCfg.Path = cfg.Path
	db, err := cluster.Open(dbCfg)
	if err != nil {
		return nil, nil, err
	}
	return audit.NewBadgerStore(db), db, nil
}

func closeDB(name string, db *badger.DB) {
	if err := db.Close(); err != nil {
		logging.Error().Err(err).Str("db", name).Msg("Error closing database")
	}
}
