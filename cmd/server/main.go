package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mind-weather/internal/app"
	"github.com/suPer8Hu/mind-weather/internal/config"
	"github.com/suPer8Hu/mind-weather/internal/httpapi"
	"github.com/suPer8Hu/mind-weather/internal/logging"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
	"github.com/suPer8Hu/mind-weather/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage")
	}
	defer storage.Close()

	deps := reflection.Deps{
		Store:            storage.Store,
		Assistant:        app.NewAssistant(ctx, cfg, logger),
		Narrator:         app.NewNarrator(cfg, storage.Redis, logger),
		Transcriber:      app.NewTranscriber(cfg, logger),
		Logger:           logging.Component(logger, "flow"),
		NarrationTimeout: cfg.NarrationTimeout,
	}

	if cfg.CategorizeAsync {
		if cfg.StoreBackend == app.BackendMemory {
			logger.Warn().Msg("CATEGORIZE_ASYNC ignored with the memory backend, the worker cannot see its sessions")
		} else if pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
			logger.Warn().Err(err).Msg("rabbitmq unavailable, categorizing inline")
		} else {
			defer pub.Close()
			deps.Dispatcher = pub
			logger.Info().Str("queue", cfg.RabbitQueue).Msg("categorization dispatched to worker")
		}
	}

	svc := reflection.NewService(deps)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(svc, cfg, logging.Component(logger, "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
