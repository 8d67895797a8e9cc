// Package app wires configuration into the collaborators shared by the
// server, the worker and mindctl.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/ai"
	"github.com/suPer8Hu/mind-weather/internal/assistant"
	"github.com/suPer8Hu/mind-weather/internal/config"
	"github.com/suPer8Hu/mind-weather/internal/db"
	"github.com/suPer8Hu/mind-weather/internal/logging"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
	"github.com/suPer8Hu/mind-weather/internal/speech"
	"github.com/suPer8Hu/mind-weather/internal/store/redisstore"
)

const (
	BackendRelational = "relational"
	BackendKV         = "kv"
	BackendMemory     = "memory"
)

// Storage is the opened persistence backend. Redis is set whenever a Redis
// connection was made, so the narration cache can share it.
type Storage struct {
	Store reflection.Store
	Redis *redis.Client

	closers []func() error
}

func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// OpenStorage opens the backend named by STORE_BACKEND. The relational
// schema is migrated on open. Redis is also dialled for the relational
// backend, but failing to reach it there only disables the audio cache.
func OpenStorage(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Storage, error) {
	s := &Storage{}
	log := logging.Component(logger, "storage")

	switch cfg.StoreBackend {
	case "", BackendRelational:
		gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sqlDB.Close)
		if err := db.Migrate(gdb); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		s.Store = reflection.NewRepo(gdb)

		if rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, narration cache disabled")
		} else {
			s.Redis = rdb
			s.closers = append(s.closers, rdb.Close)
		}

	case BackendKV:
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		s.Redis = rdb
		s.closers = append(s.closers, rdb.Close)
		s.Store = redisstore.New(rdb, cfg.RedisPrefix)

	case BackendMemory:
		s.Store = reflection.NewMemStore()

	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND=%q", cfg.StoreBackend)
	}

	log.Info().Str("backend", cfg.StoreBackend).Bool("redis", s.Redis != nil).Msg("storage ready")
	return s, nil
}

// NewAssistant resolves the configured provider. When it cannot be built the
// app runs without one and every assistant call takes its fallback path.
func NewAssistant(ctx context.Context, cfg config.Config, logger zerolog.Logger) reflection.Assistant {
	log := logging.Component(logger, "assistant")
	p, err := ai.NewDefaultRegistry(cfg).Get(ctx, cfg.AIProvider, cfg.AIModel)
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.AIProvider).Msg("assistant disabled")
		return nil
	}
	log.Info().Str("provider", cfg.AIProvider).Str("model", cfg.AIModel).Msg("assistant ready")
	return assistant.New(p, log)
}

// NewNarrator builds the ElevenLabs narrator, cached in Redis when rdb is set.
func NewNarrator(cfg config.Config, rdb *redis.Client, logger zerolog.Logger) reflection.Narrator {
	log := logging.Component(logger, "narration")
	el := speech.NewElevenLabs(speech.ElevenLabsConfig{
		APIKey:  cfg.ElevenLabsAPIKey,
		VoiceID: cfg.ElevenLabsVoiceID,
		ModelID: cfg.ElevenLabsModelID,
	}, log)
	if rdb == nil {
		return el
	}
	return speech.NewCachedNarrator(el, redisstore.NewAudioCache(rdb, cfg.RedisPrefix), el.Voice(), cfg.NarrationCacheTTL, log)
}

func NewTranscriber(cfg config.Config, logger zerolog.Logger) reflection.Transcriber {
	return speech.NewWhisper(speech.WhisperConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.WhisperModel,
		BaseURL: cfg.OpenAIBaseURL,
	}, logging.Component(logger, "transcription"))
}
