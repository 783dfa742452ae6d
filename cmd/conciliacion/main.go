// cmd/conciliacion/main.go
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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"conciliacion-service/internal/api/handlers"
	"conciliacion-service/internal/api/responses"
	"conciliacion-service/internal/config"
	"conciliacion-service/internal/core/conciliacion"
	"conciliacion-service/internal/core/ingest"
	"conciliacion-service/internal/core/status"
	"conciliacion-service/internal/logger"
	"conciliacion-service/internal/metrics"
	"conciliacion-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	responses.InitLogger(log)

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	st, err := store.New(db)
	if err != nil {
		log.Fatal("failed to prepare store", zap.Error(err))
	}
	defer st.Close()

	ctx := context.Background()
	cache := store.NewResultCache(ctx, cfg.Redis, log)
	m := metrics.New()

	svc := conciliacion.NewService(conciliacion.Options{
		Tolerance: cfg.Reconciliation.AmountTolerance,
		Policy: status.Policy{
			EarlyDays: cfg.Reconciliation.EarlyDays,
			GraceDays: cfg.Reconciliation.GraceDays,
		},
	}, cache, log.Named("conciliacion"), m)

	restore(ctx, st, cache, svc, log)

	handler := handlers.NewReconciliationHandler(ingest.NewService(), st, svc, m, log.Named("api"), cfg.Upload.MaxBytes)
	router := setupRouter(cfg, handler, m, log)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("starting conciliacion service", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}

// restore seeds the cache with the last snapshot and publishes a result for
// the stored datasets, so the API answers from the first request.
func restore(ctx context.Context, st *store.Store, cache conciliacion.ResultCache, svc *conciliacion.Service, log *zap.Logger) {
	if snap, err := st.LatestSnapshot(ctx); err == nil {
		if err := cache.Set(ctx, snap.Hash, snap); err != nil {
			log.Warn("failed to seed result cache", zap.Error(err))
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Warn("failed to load last snapshot", zap.Error(err))
	}

	src, err := st.LoadSources(ctx)
	if err != nil {
		log.Warn("failed to load stored datasets", zap.Error(err))
		return
	}
	if _, err := svc.Reconcile(ctx, src); err != nil {
		log.Warn("initial reconciliation failed", zap.Error(err))
	}
}

func setupRouter(cfg *config.Config, handler *handlers.ReconciliationHandler, m *metrics.Metrics, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware(log.Named("http")))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "service": cfg.App.Name})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}
