package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/mind-weather/internal/app"
	"github.com/suPer8Hu/mind-weather/internal/config"
	"github.com/suPer8Hu/mind-weather/internal/logging"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
	"github.com/suPer8Hu/mind-weather/internal/store/rabbitmq"
	"github.com/suPer8Hu/mind-weather/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component(logger, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StoreBackend == app.BackendMemory {
		log.Fatal().Msg("worker needs a shared store, STORE_BACKEND=memory is process local")
	}
	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage")
	}
	defer storage.Close()

	svc := reflection.NewService(reflection.Deps{
		Store:     storage.Store,
		Assistant: app.NewAssistant(ctx, cfg, logger),
		Logger:    logging.Component(logger, "finish"),
	})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit channel")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatal().Err(err).Msg("queue declare")
	}

	// strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal().Err(err).Msg("qos")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume")
	}

	h := worker.NewHandler(svc, rabbitmq.NewChannelPublisher(nil, ch, cfg.RabbitQueue), 3, 10*time.Second, log)
	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for d := range jobs {
				h.Handle(ctx, d)
			}
		}()
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error().Msg("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}
