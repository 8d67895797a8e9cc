package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/metrics"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

// Cache stores rendered audio by key.
type Cache interface {
	GetAudio(ctx context.Context, key string) ([]byte, bool, error)
	SetAudio(ctx context.Context, key string, audio []byte, ttl time.Duration) error
}

// CachedNarrator serves repeated prompts from a cache. Cache failures are
// logged and fall through to the narrator.
type CachedNarrator struct {
	next   reflection.Narrator
	cache  Cache
	voice  string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedNarrator wraps next. voice distinguishes audio rendered with
// different voice settings.
func NewCachedNarrator(next reflection.Narrator, cache Cache, voice string, ttl time.Duration, logger zerolog.Logger) *CachedNarrator {
	return &CachedNarrator{next: next, cache: cache, voice: voice, ttl: ttl, logger: logger}
}

func CacheKey(voice, text string) string {
	sum := sha256.Sum256([]byte(voice + "\x00" + text))
	return "narration:" + hex.EncodeToString(sum[:])
}

func (c *CachedNarrator) Narrate(ctx context.Context, text string) ([]byte, error) {
	key := CacheKey(c.voice, text)
	audio, ok, err := c.cache.GetAudio(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn().Err(err).Msg("narration cache read failed")
		metrics.NarrationCache.WithLabelValues("error").Inc()
	case ok:
		metrics.NarrationCache.WithLabelValues("hit").Inc()
		return audio, nil
	default:
		metrics.NarrationCache.WithLabelValues("miss").Inc()
	}

	audio, err = c.next.Narrate(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetAudio(ctx, key, audio, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("narration cache write failed")
	}
	return audio, nil
}
