package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/docdesk/cmd/api-gateway/middleware"
	"github.com/lgulliver/docdesk/cmd/api-gateway/routes"
	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/internal/history"
	"github.com/lgulliver/docdesk/internal/jobs"
	"github.com/lgulliver/docdesk/internal/session"
	"github.com/lgulliver/docdesk/internal/storage"
	"github.com/lgulliver/docdesk/internal/tools"
	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// app is the assembled service graph
type app struct {
	cfg      *config.Config
	registry *session.Registry
	runner   *jobs.Runner
	pool     *jobs.PoolScheduler
	sweeper  *session.Sweeper
	deps     *routes.Dependencies
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close resource")
		}
	}
}

// newApp wires storage, the session registry, the tools, job history and the
// job runner from cfg
func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	blobs, err := storage.NewStorageFactory(&cfg.Storage).CreateStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	store, err := a.sessionStore()
	if err != nil {
		a.close()
		return nil, err
	}
	a.registry = session.NewRegistry(store, blobs)

	toolset, err := tools.NewToolset(&cfg.Tools, tools.NewCommandRunner())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize tools: %w", err)
	}

	var recorder history.Recorder = history.NopRecorder{}
	var stats routes.StatsProviderInterface
	if cfg.History.Driver != "none" && cfg.History.Driver != "" {
		db, err := common.NewDatabase(&cfg.History, &cfg.Database)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		service := history.NewService(db.DB)
		if err := service.AutoMigrate(); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to migrate job history: %w", err)
		}
		recorder = service
		stats = service
	}

	a.pool = jobs.NewPoolScheduler(cfg.Jobs.MaxConcurrent)
	a.runner = jobs.NewRunner(a.registry, toolset, a.pool, recorder, cfg.Jobs.ToolTimeout)
	a.sweeper = session.NewSweeper(a.registry, &cfg.Session, a.runner)

	a.deps = &routes.Dependencies{
		Sessions: a.registry,
		Blobs:    blobs,
		Runner:   a.runner,
		Prober:   toolset,
		Stats:    stats,
		Uploads:  routes.NewUploadPolicy(&cfg.Storage),
	}
	return a, nil
}

func (a *app) sessionStore() (session.Store, error) {
	switch a.cfg.Registry.Backend {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		cache, err := common.NewCache(&a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cache.Close)
		// entries outlive the sweeper's terminal deadline so it always finds them
		ttl := a.cfg.Session.Timeout * time.Duration(a.cfg.Session.TerminalMultiplier+1)
		return session.NewRedisStore(cache, a.cfg.Registry.KeyPrefix, ttl), nil
	default:
		return nil, fmt.Errorf("unsupported registry backend: %s", a.cfg.Registry.Backend)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().Msg("Starting docdesk API gateway")

	a, err := newApp(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.sweeper.Run(ctx)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      setupRouter(a.deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error().Err(err).Msg("server failed")
		return err
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := a.pool.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("in_flight", a.runner.InFlight()).Msg("running jobs cancelled at shutdown")
	}

	log.Info().Msg("Server shutdown complete")
	return nil
}

func setupRouter(deps *routes.Dependencies) *gin.Engine {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	routes.Register(router, deps)

	return router
}
