package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zanzhit/station_recorder/internal/config"
	authhandler "github.com/zanzhit/station_recorder/internal/http-server/handlers/auth"
	camerashandler "github.com/zanzhit/station_recorder/internal/http-server/handlers/cameras"
	livehandler "github.com/zanzhit/station_recorder/internal/http-server/handlers/live"
	recordhandler "github.com/zanzhit/station_recorder/internal/http-server/handlers/record"
	stationshandler "github.com/zanzhit/station_recorder/internal/http-server/handlers/stations"
	usershandler "github.com/zanzhit/station_recorder/internal/http-server/handlers/users"
	authmiddleware "github.com/zanzhit/station_recorder/internal/http-server/middleware/auth"
	"github.com/zanzhit/station_recorder/internal/http-server/middleware/download"
	"github.com/zanzhit/station_recorder/internal/http-server/middleware/logger"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
	"github.com/zanzhit/station_recorder/internal/metrics"
	authservice "github.com/zanzhit/station_recorder/internal/services/auth"
	cameraservice "github.com/zanzhit/station_recorder/internal/services/cameras"
	"github.com/zanzhit/station_recorder/internal/services/capture"
	"github.com/zanzhit/station_recorder/internal/services/feed"
	"github.com/zanzhit/station_recorder/internal/services/presence"
	"github.com/zanzhit/station_recorder/internal/services/scan"
	stationservice "github.com/zanzhit/station_recorder/internal/services/stations"
	usersservice "github.com/zanzhit/station_recorder/internal/services/users"
	"github.com/zanzhit/station_recorder/internal/storage/postgres"
	authstorage "github.com/zanzhit/station_recorder/internal/storage/postgres/auth"
	camerastorage "github.com/zanzhit/station_recorder/internal/storage/postgres/cameras"
	sessionstorage "github.com/zanzhit/station_recorder/internal/storage/postgres/sessions"
	stationstorage "github.com/zanzhit/station_recorder/internal/storage/postgres/stations"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting application", slog.String("env", cfg.Env), slog.String("address", cfg.HTTPServer.Address))

	cfg.DB.Password = os.Getenv("POSTGRES_PASSWORD")
	if cfg.DB.Password == "" {
		panic("POSTGRES_PASSWORD is required")
	}

	if cfg.Secret == "" {
		panic("JWT_SECRET is required")
	}

	storage, err := postgres.New(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer storage.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	authStorage := authstorage.New(storage)
	cameraStorage := camerastorage.New(storage)
	stationStorage := stationstorage.New(storage)
	sessionStorage := sessionstorage.New(storage)

	authService := authservice.New(log, authStorage, authStorage, cfg.TokenTTL, cfg.Secret)
	if err := authService.CreateInitialAdmin(ctx); err != nil {
		log.Warn("initial admin is not configured", sl.Err(err))
	}

	cameraService := cameraservice.New(log, cameraStorage, cameraStorage, cameraStorage)

	classifier, err := scan.New(cfg.Scan.OrderPattern, scan.Policy(cfg.Scan.DifferentCodePolicy))
	if err != nil {
		panic(err)
	}

	supervisor := capture.New(log, capture.NewExecLauncher(log), capture.NewRegistry(), capture.Options{
		Root:        cfg.Recording.Root,
		URLPrefix:   cfg.Recording.URLPrefix,
		Binary:      cfg.Recording.FFmpegPath,
		Extension:   cfg.Recording.Extension,
		GracePeriod: cfg.Recording.GracePeriod,
		KillWait:    cfg.Recording.KillWait,
		CheckStream: cfg.Recording.CheckStream,
		Observer:    m,
	})

	// the hub needs the tracker and the tracker needs the orchestrator, so
	// events go through a forwarder set once everything exists
	events := &forwarder{}

	orchestrator := stationservice.New(log, classifier, supervisor, stationStorage, authStorage, sessionStorage, events, m)
	tracker := presence.New(log, orchestrator)
	userService := usersservice.New(log, authStorage, orchestrator)
	hub := livehandler.New(log, tracker, m)
	events.target = hub

	// sessions left open by a previous run have no process behind them
	if n, err := orchestrator.Sweep(ctx); err != nil {
		log.Error("failed to sweep stale sessions", sl.Err(err))
	} else if n > 0 {
		log.Warn("closed stale sessions", slog.Int("count", n))
	}

	authHandler := authhandler.New(log, authService)
	cameraHandler := camerashandler.New(log, cameraService)
	recordHandler := recordhandler.New(log, orchestrator)
	stationHandler := stationshandler.New(log, orchestrator)
	userHandler := usershandler.New(log, userService)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(logger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(metrics.RequestMiddleware(m))

	router.Handle("/metrics", m.Handler())
	router.Handle(cfg.Recording.URLPrefix+"/*", download.NoWriteTimeout(
		http.StripPrefix(cfg.Recording.URLPrefix, http.FileServer(http.Dir(cfg.Recording.Root))),
	))

	router.Post("/auth/login", authHandler.Login)

	router.Group(func(r chi.Router) {
		r.Use(authmiddleware.JWTAuth(cfg.Secret))

		r.Get("/ws/live", hub.Live)

		r.Route("/record", func(r chi.Router) {
			r.Post("/scan", recordHandler.Scan)
			r.Post("/stop", recordHandler.Stop)
			r.Get("/recording-status", recordHandler.RecordingStatus)
			r.Get("/sessions", recordHandler.Sessions)
			r.With(download.NoWriteTimeout).Get("/sessions/export", recordHandler.ExportSessions)
			r.With(authmiddleware.AdminRequired).Delete("/sessions/{id}", recordHandler.DeleteSession)
		})

		r.Get("/stations", stationHandler.Stations)
		r.Post("/stations/occupy", stationHandler.Occupy)
		r.Post("/stations/release", stationHandler.Release)
		r.Get("/cameras", cameraHandler.Cameras)
		r.Get("/cameras/{id}", cameraHandler.Camera)

		r.Group(func(r chi.Router) {
			r.Use(authmiddleware.AdminRequired)

			r.Post("/auth/register", authHandler.RegisterNewUser)
			r.Get("/users", userHandler.Users)
			r.Delete("/users/{id}", userHandler.DeleteUser)
			r.Post("/cameras", cameraHandler.SaveCamera)
			r.Put("/cameras/{id}", cameraHandler.UpdateCamera)
			r.Delete("/cameras/{id}", cameraHandler.DeleteCamera)
			r.Post("/stations", stationHandler.CreateStation)
			r.Delete("/stations/{id}", stationHandler.DeleteStation)
			r.Post("/stations/set-cameras", stationHandler.SetCameras)
			r.Post("/stations/force-release", stationHandler.ForceRelease)
		})
	})

	if cfg.Recording.SweepInterval > 0 {
		go runSweeper(ctx, log, orchestrator, cfg.Recording.SweepInterval)
	}

	if cfg.Feed.Enabled {
		runner := feed.New(log,
			feed.NewCommandDetector(log, cfg.Feed.DetectorPath, cfg.Feed.DetectorArgs),
			orchestrator,
			orchestrator,
			feed.Options{
				Debounce:        cfg.Feed.Debounce,
				RefreshInterval: cfg.Feed.RefreshInterval,
			},
		)

		go func() {
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("vision feed stopped", sl.Err(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", sl.Err(err))
			stop()
		}
	}()

	log.Info("server started")

	<-ctx.Done()

	log.Info("stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop server", sl.Err(err))
	}

	if err := orchestrator.StopAll(shutdownCtx); err != nil {
		log.Error("failed to stop recordings", sl.Err(err))
	}

	log.Info("server stopped")
}

func runSweeper(ctx context.Context, log *slog.Logger, orchestrator *stationservice.Orchestrator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := orchestrator.Sweep(ctx)
			if err != nil {
				log.Error("failed to sweep sessions", sl.Err(err))

				continue
			}
			if n > 0 {
				log.Warn("closed sessions without a capture process", slog.Int("count", n))
			}
		}
	}
}

type forwarder struct {
	target stationservice.Publisher
}

func (f *forwarder) Publish(e stationservice.Event) {
	if f.target != nil {
		f.target.Publish(e)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
