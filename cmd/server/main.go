package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/members-area/internal/config"
	"github.com/iliyamo/members-area/internal/database"
	"github.com/iliyamo/members-area/internal/form"
	"github.com/iliyamo/members-area/internal/handler"
	"github.com/iliyamo/members-area/internal/logger"
	"github.com/iliyamo/members-area/internal/middleware"
	"github.com/iliyamo/members-area/internal/queue"
	"github.com/iliyamo/members-area/internal/repository"
	"github.com/iliyamo/members-area/internal/router"
	"github.com/iliyamo/members-area/internal/service"
	"github.com/iliyamo/members-area/internal/session"
	"github.com/iliyamo/members-area/internal/view"
)

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		logger.New(0).Fatal("failed to load config", "error", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatal("failed to connect to mysql", "error", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("failed to migrate", "error", err)
	}

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect to redis", "error", err)
	}
	defer rdb.Close()

	sessions := session.NewManager(rdb, cfg.Session)
	events := service.NewPublisher(cfg.Audit, log)
	if cfg.Audit.Enabled {
		go func() {
			if err := queue.NewConsumer(cfg.Audit, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	renderer, err := view.NewRenderer()
	if err != nil {
		log.Fatal("failed to parse templates", "error", err)
	}
	forms := form.NewValidator()

	h := handler.New(handler.Deps{
		Cfg:      cfg,
		Users:    repository.NewUserRepo(db),
		Sessions: sessions,
		Forms:    forms,
		Events:   events,
		Log:      log,
	})

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Renderer = renderer
	e.HTTPErrorHandler = h.HTTPErrorHandler
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				log.Warn("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "error", v.Error)
				return nil
			}
			log.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	router.RegisterRoutes(e)
	router.RegisterPages(e, h, sessions, middleware.NewTokenBucket(cfg.RateLimit, rdb, log))

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
