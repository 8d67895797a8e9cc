// Package worker consumes categorize jobs.
package worker

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
	"github.com/suPer8Hu/mind-weather/internal/store/rabbitmq"
)

type Finisher interface {
	FinishSession(ctx context.Context, sessionID string) (*reflection.Session, error)
}

type Retrier interface {
	PublishRetry(ctx context.Context, job rabbitmq.CategorizeJob, delay time.Duration) error
}

type Handler struct {
	svc         Finisher
	retry       Retrier
	maxAttempts int
	retryDelay  time.Duration
	logger      zerolog.Logger
}

// NewHandler builds a handler. retry may be nil, in which case failed jobs
// go straight to the dead-letter queue.
func NewHandler(svc Finisher, retry Retrier, maxAttempts int, retryDelay time.Duration, logger zerolog.Logger) *Handler {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Second
	}
	return &Handler{svc: svc, retry: retry, maxAttempts: maxAttempts, retryDelay: retryDelay, logger: logger}
}

// Handle settles one delivery. Bad messages and sessions that cannot be
// finished are dead-lettered; other failures are retried with a delay until
// maxAttempts is reached.
func (h *Handler) Handle(ctx context.Context, d amqp.Delivery) {
	job, err := rabbitmq.DecodeCategorizeJob(d.Body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("bad message")
		_ = d.Nack(false, false)
		return
	}
	log := h.logger.With().Str("session_id", job.SessionID).Int("attempt", job.Attempt).Logger()

	start := time.Now()
	_, err = h.svc.FinishSession(ctx, job.SessionID)
	cost := time.Since(start)

	switch {
	case err == nil:
		if cost > 2*time.Second {
			log.Info().Dur("cost", cost).Msg("slow categorize job")
		}
		if err := d.Ack(false); err != nil {
			log.Error().Err(err).Msg("ack failed")
		}
		return

	case errors.Is(err, reflection.ErrNotFound), errors.Is(err, reflection.ErrNoThoughts):
		log.Warn().Err(err).Msg("categorize job cannot complete")
		_ = d.Nack(false, false)
		return

	case ctx.Err() != nil:
		// shutting down; leave the job for the next consumer
		_ = d.Nack(false, true)
		return
	}

	if h.retry != nil && job.Attempt+1 < h.maxAttempts {
		rerr := h.retry.PublishRetry(ctx, job, h.retryDelay)
		if rerr == nil {
			log.Warn().Err(err).Dur("cost", cost).Msg("categorize job failed, retry scheduled")
			_ = d.Ack(false)
			return
		}
		log.Error().Err(rerr).Msg("retry publish failed")
	}
	log.Error().Err(err).Dur("cost", cost).Msg("categorize job failed")
	_ = d.Nack(false, false)
}
