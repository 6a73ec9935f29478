package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/analyst/config"
	"github.com/mohammad-safakhou/analyst/internal/agent"
	"github.com/mohammad-safakhou/analyst/internal/search"
	srv "github.com/mohammad-safakhou/analyst/internal/server"
	"github.com/mohammad-safakhou/analyst/internal/store"
	"github.com/mohammad-safakhou/analyst/internal/telemetry"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	var migrateFirst bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			return runServer(cmd.Context(), cfg, migrateFirst)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	serve.Flags().BoolVar(&migrateFirst, "migrate", false, "apply migrations from file://migrations before serving")
	return serve
}

func runServer(ctx context.Context, cfg *config.Config, migrateFirst bool) error {
	if err := cfg.Server.Validate(); err != nil {
		return err
	}
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	if migrateFirst {
		if err := store.Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer st.Close()

	rdb, err := newRedis(ctx, cfg.Storage.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	services, err := newServices(cfg, rdb)
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	blobs, err := newBlobs(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("blob storage: %w", err)
	}

	idx, err := search.NewIndex()
	if err != nil {
		return err
	}
	defer idx.Close()
	if err := reindex(ctx, st, idx); err != nil {
		logger.Printf("search reindex: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orch := agent.NewOrchestrator(services, agent.WithMetrics(telemetry.NewMetrics(reg)))

	e := srv.New(srv.Deps{
		Repo:           st,
		Blobs:          blobs,
		Index:          idx,
		Runner:         orch,
		Catalog:        catalog,
		Gatherer:       reg,
		Secret:         []byte(cfg.Server.JWTSecret),
		TokenTTL:       cfg.Server.TokenTTL,
		SecureCookies:  cfg.Server.SecureCookies,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		SampleRows:     cfg.Agents.SampleRows,
		Logger:         logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s (%d agents)", cfg.Server.Address, catalog.Len())
		errCh <- e.Start(cfg.Server.Address)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

// reindex warms the in-memory search index from stored successful analyses.
func reindex(ctx context.Context, st *store.Store, idx *search.Index) error {
	items, err := st.ListRecentAnalyses(ctx, 0)
	if err != nil {
		return err
	}
	for _, a := range items {
		if a.Status != store.StatusDone {
			continue
		}
		if err := idx.Add(search.Document{ID: a.ID, UserID: a.UserID, Goal: a.Goal, Plan: a.Plan, Code: a.FinalCode}); err != nil {
			return err
		}
	}
	return nil
}
