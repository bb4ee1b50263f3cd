package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/handlers"
	"folio/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	settings, err := config.Load(os.Getenv("FOLIO_SETTINGS"))
	if err != nil {
		config.NewLogger("info", "text").Fatalf("load settings: %v", err)
	}
	logger := config.NewLogger(settings.LogLevel, settings.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	openCtx, openCancel := context.WithTimeout(ctx, 5*time.Second)
	db, err := database.Open(openCtx, settings.DatabaseURL)
	openCancel()
	if err != nil {
		logger.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := database.New(db, logger)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatalf("migrate failed: %v", err)
	}

	refresher, err := service.NewFromSettings(settings, repo, logger)
	if err != nil {
		logger.Fatalf("refresh service: %v", err)
	}
	if err := refresher.Load(ctx); err != nil {
		logger.Warnf("stored report not loaded: %v", err)
	}

	if settings.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	rg := gin.New()
	rg.Use(gin.Recovery())
	handlers.NewHandler(refresher, logger).Register(rg)

	srv := &http.Server{Addr: ":" + settings.Port, Handler: rg}
	go func() {
		<-ctx.Done()
		shutdown, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = srv.Shutdown(shutdown)
	}()

	logger.Infof("server starting on :%s", settings.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server failed: %v", err)
	}
	logger.Info("server stopped")
}
